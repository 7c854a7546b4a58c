// Package pipeline is the entry point of the audio analysis pipeline. A
// Service takes raw uploads through ingestion, quality gating and the
// model capabilities, then enrolls, matches or classifies and records
// every decision.
package pipeline
