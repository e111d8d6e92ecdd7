// Package config loads the streamwatch YAML configuration. Values may
// reference environment variables with ${VAR} syntax; references are
// expanded before the file is parsed.
package config
