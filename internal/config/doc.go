// Package config loads the gateway's YAML configuration.
//
// Loading order: an optional .env file is read into the environment, ${VAR}
// references in the YAML are expanded, defaults fill unset fields, then
// Validate checks the result.
package config
