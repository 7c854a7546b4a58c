// Package config provides configuration loading and validation for the voxgate pipeline.
// It handles YAML-based configuration layered over built-in defaults, with per-section
// validation of thresholds, weight vectors, model sources and storage backends.
package config
