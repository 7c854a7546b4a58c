// Package audit keeps an append-only trail of recognition, verification,
// enrollment and affect decisions.
package audit
