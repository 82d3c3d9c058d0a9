// Package config loads the vaultline control-plane configuration from
// a YAML file, with CLI flag values taking precedence over whatever
// the file specifies (spec SPEC_FULL.md §2 "Configuration").
package config
