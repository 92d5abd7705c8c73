// Package config loads, normalizes, and validates camrelay configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours the environment variables the relay has always
// accepted (FTP_HOST, FTP_PORT, FTP_USER, FTP_PASS, BOT_TOKEN, CHAT_ID,
// TARGET_FPS, DELETE_AFTER_SUCCESS) plus NTFY_TOPIC. Environment values only
// fill settings the file leaves empty.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
