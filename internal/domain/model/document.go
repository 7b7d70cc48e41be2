package model

import "time"

// DocumentRef is an immutable pointer to a source artifact owned by the
// upstream upload service. The engine never reads the bytes itself; it hands
// the reference to the inference boundary along with a page sub-range.
type DocumentRef struct {
	ID          string
	TenantID    string
	Title       string
	Pages       int
	SizeBytes   int64
	Fingerprint string // content hash; keys the active-job lock and call cache
	UploadedAt  time.Time
}
