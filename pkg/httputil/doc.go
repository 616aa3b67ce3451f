// Package httputil provides HTTP plumbing shared across wheelhouse: retry
// with exponential backoff for transient failures, and [RangeFile], a
// seekable view of a remote HTTP resource backed by byte-range requests.
package httputil
