// Package config loads the runtime configuration from a YAML file and
// the environment. Environment variables win over file values so secrets
// never need to live on disk.
package config
