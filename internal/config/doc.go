// Package config handles configuration loading, parsing, and validation
// from defaults, an optional YAML file and OPCORE_ prefixed environment
// variables. Environment variables take precedence over file values, which
// take precedence over defaults.
package config
