package storage

import "io"

// BlobStore holds the original sheet scans. The scoring core never reads
// pixel data; images pass through here to the vision pipeline and back to
// the dashboard for review.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	SignedURL(key string) (string, error) // fs returns "file://..." for dev
}
