// Package config defines the gatekeeper configuration model and loading.
//
// Configuration is read once at startup from a YAML file, filled in with
// defaults, overridden from the environment, and validated. The limits
// tables can additionally be hot-reloaded through the Watcher; everything
// else requires a restart.
package config
