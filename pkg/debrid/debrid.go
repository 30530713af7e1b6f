// Package debrid implements the two core flows of the service: bulk
// availability checking backed by the durable store, and the resolve pipeline
// that turns an infohash + video file index into a direct download URL.
package debrid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dylanmazurek/resolvarr/internal/config"
	"github.com/dylanmazurek/resolvarr/internal/logger"
	"github.com/dylanmazurek/resolvarr/internal/utils"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/providers/torbox"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/store"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/types"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Caller-visible outcomes. Resolve collapses every failure into one of these
// two; the finer error kinds stay in the wrap chain for logging.
var (
	ErrAccessFailed = errors.New("access failed")
	ErrUnexpected   = errors.New("unexpected failure")
)

type Service struct {
	store *store.Store

	clients   map[string]*torbox.Torbox // keyed by credential fingerprint
	clientsMu sync.Mutex

	// batchSem serializes remote bulk-check batches, including across
	// concurrent checker calls, to respect the remote rate limiter.
	batchSem  *semaphore.Weighted
	batchSize int

	scheduler gocron.Scheduler
	logger    zerolog.Logger
}

func New(availStore *store.Store) *Service {
	cfg := config.Get()

	return &Service{
		store:     availStore,
		clients:   make(map[string]*torbox.Torbox),
		batchSem:  semaphore.NewWeighted(1),
		batchSize: cfg.Availability.BatchSize,
		logger:    logger.New("debrid"),
	}
}

// client returns the provider client for a credential, building it once per
// distinct key.
func (s *Service) client(apiKey string) *torbox.Torbox {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	fp := utils.Fingerprint(apiKey)
	if client, ok := s.clients[fp]; ok {
		return client
	}

	client := torbox.New(apiKey)
	s.clients[fp] = client
	return client
}

// CheckAvailability reports which of the given infohashes are instantly
// playable. Hashes already known to the store are answered locally; the rest
// go to the remote in fixed-size batches, one batch at a time. Any remote
// failure fails the whole call: the caller learns "availability unknown",
// never a partial result.
func (s *Service) CheckAvailability(ctx context.Context, apiKey string, hashes []string) (map[string]types.AvailabilityEntry, error) {
	normalized := make([]string, 0, len(hashes))
	seen := make(map[string]struct{}, len(hashes))
	for _, hash := range hashes {
		h, ok := utils.NormalizeInfohash(hash)
		if !ok {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		normalized = append(normalized, h)
	}

	known, err := s.store.Get(normalized)
	if err != nil {
		return nil, fmt.Errorf("reading availability store: %w", err)
	}

	missing := make([]string, 0, len(normalized))
	for _, h := range normalized {
		if _, ok := known[h]; !ok {
			missing = append(missing, h)
		}
	}

	if len(missing) == 0 {
		return known, nil
	}

	client := s.client(apiKey)
	fetched := make(map[string]types.AvailabilityEntry, len(missing))

	for _, batch := range utils.Chunk(missing, s.batchSize) {
		entries, err := s.checkBatch(ctx, client, batch)
		if err != nil {
			return nil, err
		}

		for hash, entry := range entries {
			fetched[hash] = entry
		}
	}

	if err := s.store.Merge(fetched); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist availability results")
	}

	result := make(map[string]types.AvailabilityEntry, len(known)+len(fetched))
	for hash, entry := range known {
		result[hash] = entry
	}
	for hash, entry := range fetched {
		result[hash] = entry
	}

	return result, nil
}

// checkBatch runs one bulk query under the batch semaphore. Hashes the remote
// did not mention come back as explicit uncached entries.
func (s *Service) checkBatch(ctx context.Context, client *torbox.Torbox, batch []string) (map[string]types.AvailabilityEntry, error) {
	if err := s.batchSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.batchSem.Release(1)

	entries, err := client.CheckCached(ctx, batch)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, hash := range batch {
		if _, ok := entries[hash]; !ok {
			entries[hash] = types.AvailabilityEntry{CheckedAt: now}
		}
	}

	return entries, nil
}

// Resolve runs the linear pipeline: register the torrent, map the logical
// video file index to the remote file id, request the download link. Each
// stage runs exactly once; the first failure aborts. This is the only place
// the error taxonomy collapses to the caller-visible outcomes.
func (s *Service) Resolve(ctx context.Context, token types.ResolutionToken) (string, error) {
	hash, ok := utils.NormalizeInfohash(token.InfoHash)
	if !ok {
		return "", fmt.Errorf("%w: invalid infohash %q", ErrUnexpected, token.InfoHash)
	}

	client := s.client(token.APIKey)
	log := s.logger.With().
		Str("infohash", hash).
		Int("file_index", token.FileIndex).
		Str("credential", utils.Fingerprint(token.APIKey)).
		Logger()

	torrentId, err := s.ensureRegistered(ctx, client, hash)
	if err != nil {
		return "", s.outcome(log, "register", err)
	}

	fileId, err := s.mapFileIndex(ctx, client, torrentId, token.FileIndex)
	if err != nil {
		return "", s.outcome(log, "map_file", err)
	}

	link, err := client.RequestDownloadLink(ctx, torrentId, fileId, token.ClientIP)
	if err != nil {
		return "", s.outcome(log, "request_link", err)
	}

	log.Debug().Str("torrent_id", torrentId).Str("file_id", fileId).Msg("resolved stream link")
	return link.Link, nil
}

// ensureRegistered makes sure the torrent exists in the remote account and
// returns its id. The create response is trusted when it carries an id;
// otherwise the account list is reconciled against the infohash, which makes
// repeated resolutions of the same hash idempotent.
func (s *Service) ensureRegistered(ctx context.Context, client *torbox.Torbox, infohash string) (string, error) {
	magnet, err := utils.ConstructMagnet(infohash)
	if err != nil {
		return "", err
	}

	torrentId, err := client.CreateTorrent(ctx, magnet)
	if err != nil {
		return "", err
	}
	if torrentId != "" {
		return torrentId, nil
	}

	torrents, err := client.GetTorrents(ctx)
	if err != nil {
		return "", err
	}

	for _, t := range torrents {
		if t.InfoHash == infohash {
			return t.Id, nil
		}
	}

	return "", fmt.Errorf("%w: torrent not found/created for %s", types.ErrNotFound, infohash)
}

// mapFileIndex resolves a logical index among the torrent's video files, in
// the remote listing's native order, to the remote file id. A file without a
// remote id falls back to its 1-based position, which some responses expect.
func (s *Service) mapFileIndex(ctx context.Context, client *torbox.Torbox, torrentId string, index int) (string, error) {
	torrent, err := client.GetTorrent(ctx, torrentId)
	if err != nil {
		return "", err
	}

	videos := make([]types.File, 0, len(torrent.Files))
	for _, f := range torrent.Files {
		if utils.IsVideoFile(f.Name) {
			videos = append(videos, f)
		}
	}

	if index < 0 || index >= len(videos) {
		return "", fmt.Errorf("%w: file index %d out of range (%d video files)", types.ErrNotFound, index, len(videos))
	}

	if videos[index].Id == "" {
		return strconv.Itoa(index + 1), nil
	}

	return videos[index].Id, nil
}

// outcome logs the stage failure in full and collapses it to one of the two
// caller-visible outcomes.
func (s *Service) outcome(log zerolog.Logger, stage string, err error) error {
	log.Error().Err(err).Str("stage", stage).Msg("resolve failed")

	if errors.Is(err, types.ErrBadToken) || errors.Is(err, types.ErrAccessDenied) {
		return fmt.Errorf("%w: %w", ErrAccessFailed, err)
	}
	return fmt.Errorf("%w: %w", ErrUnexpected, err)
}

// Torrents lists the account's torrents for the catalog surface.
func (s *Service) Torrents(ctx context.Context, apiKey string) ([]*types.Torrent, error) {
	torrents, err := s.client(apiKey).GetTorrents(ctx)
	if err != nil {
		return nil, err
	}
	return torrents, nil
}

// Torrent fetches one torrent's detail record.
func (s *Service) Torrent(ctx context.Context, apiKey, id string) (*types.Torrent, error) {
	return s.client(apiKey).GetTorrent(ctx, id)
}

// Stats exposes store counts for the status endpoint.
func (s *Service) Stats() (store.Stats, error) {
	return s.store.Stats()
}
