// Package config provides configuration loading and validation for the meeting capture agent.
// It handles YAML-based configuration layered over built-in defaults, environment
// overrides for secrets, and per-section validation.
package config
