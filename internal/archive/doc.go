// Package archive stores raw uploaded audio in an S3-compatible bucket.
package archive
