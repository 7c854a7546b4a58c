// Package affect turns a classifier probability distribution into a
// dominant label with intensity, complexity and presentation tiers.
package affect
