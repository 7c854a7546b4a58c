// Package enrollment keeps per-identity sample bookkeeping: slot
// assignment, the sample cap, removal and completeness.
package enrollment
