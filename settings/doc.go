// Package settings loads araki's layered configuration.
//
// Layers, lowest priority first: built-in defaults, config.toml in the
// user configuration directory, araki.toml in the working directory,
// and ARAKI_* environment variables (dots in keys become underscores,
// so push.remote is ARAKI_PUSH_REMOTE). Missing files are skipped.
package settings
