// Package types holds the models shared between the debrid service, the
// provider client and the HTTP layer.
package types

import "time"

// ResolutionToken carries everything needed to resolve one infohash + file
// index pair into a playable URL. It is built once at the HTTP boundary and
// passed through the pipeline as-is.
type ResolutionToken struct {
	APIKey    string
	InfoHash  string
	FileIndex int
	ClientIP  string // optional, forwarded to the remote for geo enforcement
}

// AvailabilityFile is one file of a cached torrent as reported by the bulk
// cache check.
type AvailabilityFile struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

// AvailabilityEntry records what is known about one infohash. A hash is
// instantly playable iff its entry carries a non-empty file list.
type AvailabilityEntry struct {
	Cached    bool               `json:"cached"`
	Files     []AvailabilityFile `json:"files,omitempty"`
	CheckedAt time.Time          `json:"checked_at"`
}

// IsCached reports whether the entry marks the hash as instantly playable.
func (e AvailabilityEntry) IsCached() bool {
	return e.Cached && len(e.Files) > 0
}

// File is one file within a remote torrent record. Id is empty when the
// remote omits per-file identifiers.
type File struct {
	Id   string `json:"id,omitempty"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Torrent is the account-scoped record the remote service maintains for a
// submitted magnet. Files preserve the remote listing's native order.
type Torrent struct {
	Id       string    `json:"id"`
	InfoHash string    `json:"info_hash"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Size     int64     `json:"size"`
	Added    time.Time `json:"added"`
	Files    []File    `json:"files"`
}

// DownloadLink is a short-lived direct URL for one file of a remote torrent.
type DownloadLink struct {
	Link      string    `json:"link"`
	Generated time.Time `json:"generated"`
}
