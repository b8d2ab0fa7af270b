// Package config loads and validates the certwatch YAML configuration.
//
// Precedence: built-in defaults, then the config file, then environment
// variables (CERTWATCH_LISTEN, CERTWATCH_LOG_LEVEL).
package config
