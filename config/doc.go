// Package config loads the application configuration and API
// credentials.
//
// The app config is a TOML file naming the data directory, the default
// model, and heartbeat defaults. Credentials live in a separate
// credentials.toml restricted to owner read-only; environment variables
// override the file so deployments can skip it entirely.
package config
