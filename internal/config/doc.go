// Package config loads, normalizes, and validates scriptlab configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment fallbacks such as OPENROUTER_API_KEY and GEMINI_API_KEY. The
// Config type centralizes every knob the daemon and CLI need: directories,
// the HTTP listener, text and media provider routing, and generation limits.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical provider names, and clear validation errors.
package config
