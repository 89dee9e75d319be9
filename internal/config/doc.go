// Package config loads and validates the symphony server configuration.
//
// Configuration is a YAML file with ${ENV_VAR} expansion, covering the
// observer listen address, the history database path, completion service
// credentials, the default assistant participant, the registered tool
// services with their descriptor files, per-call timeouts, and logging.
package config
