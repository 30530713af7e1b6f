package utils

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/blake2b"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".wmv": {},
	".flv": {}, ".webm": {}, ".m4v": {}, ".mpg": {}, ".mpeg": {},
	".ts": {}, ".m2ts": {},
}

// IsVideoFile reports whether the filename carries a known video extension.
func IsVideoFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := videoExtensions[ext]
	return ok
}

var infohashRx = regexp.MustCompile(`^[a-f0-9]{40}$`)

// NormalizeInfohash lowercases the hash and validates it is 40 hex characters.
func NormalizeInfohash(hash string) (string, bool) {
	h := strings.ToLower(strings.TrimSpace(hash))
	return h, infohashRx.MatchString(h)
}

// ConstructMagnet builds a magnet link for an infohash.
func ConstructMagnet(infohash string) (string, error) {
	var h metainfo.Hash
	if err := h.FromHexString(infohash); err != nil {
		return "", fmt.Errorf("invalid infohash %q: %w", infohash, err)
	}
	m := metainfo.Magnet{InfoHash: h}
	return m.String(), nil
}

// Chunk splits items into consecutive batches of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		batches = append(batches, items[i:end])
	}
	return batches
}

// Contains reports whether items includes value.
func Contains[T comparable](items []T, value T) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}

// Fingerprint returns a short stable digest of a secret, safe for log output
// and map keys.
func Fingerprint(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}

// ConvertToJobDef turns an interval ("30s", "15m") or a cron expression into a
// gocron job definition.
func ConvertToJobDef(interval string) (gocron.JobDefinition, error) {
	if d, err := time.ParseDuration(interval); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("interval must be positive: %s", interval)
		}
		return gocron.DurationJob(d), nil
	}

	if _, err := cron.ParseStandard(interval); err != nil {
		return nil, fmt.Errorf("invalid interval or cron expression %q: %w", interval, err)
	}
	return gocron.CronJob(interval, false), nil
}
