// Package vad provides an energy and zero-crossing voice activity heuristic.
// It classifies fixed-duration frames, groups active frames into segments and
// reports the active-frame ratio used by the quality gate.
package vad
