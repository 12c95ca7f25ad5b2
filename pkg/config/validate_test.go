package config

import (
	"strings"
	"testing"

	"arbor-hq/gatekeeper/pkg/limits"
)

func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.Admission.MemoryThreshold = -1
	cfg.Store.Backend = "etcd"

	err := Validate(cfg)
	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("expected 3 field errors, got %d: %v", len(verr.Errors), verr)
	}
	if !strings.Contains(verr.Error(), "server.listen_address") {
		t.Errorf("error text missing field path: %s", verr.Error())
	}
}

func TestValidate_UpstreamURL(t *testing.T) {
	cfg := validConfig()
	cfg.Server.UpstreamURL = "not a url"
	if err := Validate(cfg); err == nil {
		t.Error("expected a relative upstream URL to fail")
	}

	cfg.Server.UpstreamURL = "http://graph-service:8000"
	if err := Validate(cfg); err != nil {
		t.Errorf("expected an absolute upstream URL to pass: %v", err)
	}
}

func TestValidate_RepositoryCaps(t *testing.T) {
	cfg := validConfig()
	cfg.Limits.RepositoryCaps = map[string]map[limits.OperationType]limits.VolumeCap{
		"r": {limits.OpRead: {Hourly: 100, Daily: 10}},
	}
	if err := Validate(cfg); err == nil {
		t.Error("expected a daily cap below the hourly cap to fail")
	}

	cfg.Limits.RepositoryCaps["r"][limits.OpRead] = limits.VolumeCap{Hourly: 10, Daily: 100}
	if err := Validate(cfg); err != nil {
		t.Errorf("expected sane caps to pass: %v", err)
	}
}

func TestValidate_FailurePolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Limits.FailurePolicy = "maybe"
	if err := Validate(cfg); err == nil {
		t.Error("expected an unknown failure policy to fail")
	}
}
