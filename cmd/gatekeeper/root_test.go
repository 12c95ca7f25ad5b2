package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"run":      false,
		"validate": false,
		"version":  false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered on root", name)
		}
	}
}

func TestVersionCommandExists(t *testing.T) {
	if versionCmd.Use != "version" {
		t.Errorf("versionCmd.Use = %q, want version", versionCmd.Use)
	}
	if versionCmd.Run == nil {
		t.Error("versionCmd.Run should not be nil")
	}
}

func TestValidateCommandAcceptsGoodConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  upstream_url: "http://graph:9000"
store:
  backend: memory
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	origCfg := cfgFile
	cfgFile = path
	defer func() { cfgFile = origCfg }()

	if err := validateConfig(validateCmd, nil); err != nil {
		t.Errorf("validateConfig failed on a good config: %v", err)
	}
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
admission:
  memory_threshold: 250
store:
  backend: cassandra
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	origCfg := cfgFile
	cfgFile = path
	defer func() { cfgFile = origCfg }()

	if err := validateConfig(validateCmd, nil); err == nil {
		t.Error("expected validateConfig to fail on out-of-range threshold and unknown backend")
	}
}

func TestValidateCommandRequiresConfigFlag(t *testing.T) {
	origCfg := cfgFile
	cfgFile = ""
	defer func() { cfgFile = origCfg }()

	if err := validateConfig(validateCmd, nil); err == nil {
		t.Error("expected an error when no config file is given")
	}
}

func TestRunDryRunValidatesOnly(t *testing.T) {
	origCfg := cfgFile
	origDry := runFlags.dryRun
	cfgFile = ""
	runFlags.dryRun = true
	defer func() {
		cfgFile = origCfg
		runFlags.dryRun = origDry
	}()

	if err := runGatekeeper(runCmd, nil); err != nil {
		t.Errorf("dry run with defaults failed: %v", err)
	}
}
