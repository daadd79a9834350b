// Package config loads, normalizes, and validates subvoice configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SUBVOICE_LLM_API_KEY. Numeric knobs such as the worker pool size and retry
// budget are range checked through struct tags so that a bad value surfaces as
// a single readable error naming the TOML key.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
