package debrid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dylanmazurek/resolvarr/internal/config"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/store"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHash  = "08ada5a7a6183aae1e09d831df6748d566095a10"
	otherHash = "ffffffffffffffffffffffffffffffffffffffff"
)

// mockTorbox is a stub TorBox API with per-endpoint handlers and counters.
type mockTorbox struct {
	mu sync.Mutex

	checkCachedCalls int
	createCalls      int
	listCalls        int
	requestDLCalls   int

	onCheckCached func(w http.ResponseWriter, r *http.Request)
	onCreate      func(w http.ResponseWriter, r *http.Request)
	onList        func(w http.ResponseWriter, r *http.Request)
	onRequestDL   func(w http.ResponseWriter, r *http.Request)
}

func (m *mockTorbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch r.URL.Path {
	case "/api/torrents/checkcached":
		m.checkCachedCalls++
		if m.onCheckCached != nil {
			m.onCheckCached(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {}}`))
	case "/api/torrents/createtorrent":
		m.createCalls++
		if m.onCreate != nil {
			m.onCreate(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {"torrent_id": 42}}`))
	case "/api/torrents/mylist":
		m.listCalls++
		if m.onList != nil {
			m.onList(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": []}`))
	case "/api/torrents/requestdl":
		m.requestDLCalls++
		if m.onRequestDL != nil {
			m.onRequestDL(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {"download": "https://cdn/x"}}`))
	default:
		http.NotFound(w, r)
	}
}

func (m *mockTorbox) counts() (checkCached, create, list, requestDL int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkCachedCalls, m.createCalls, m.listCalls, m.requestDLCalls
}

func newTestService(t *testing.T, mock *mockTorbox, batchSize int) *Service {
	t.Helper()

	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)

	tmpDir := t.TempDir()
	config.SetConfigPath(tmpDir)
	cfg := fmt.Sprintf(`{
		"log_level": "error",
		"provider": {"name": "torbox", "host": %q, "rate_limit": "1000/second"},
		"availability": {"batch_size": %d, "recheck_uncached_after": "1h"}
	}`, srv.URL, batchSize)
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	config.Reload()

	availStore, err := store.Open(filepath.Join(tmpDir, "availability.db"), config.Get().Availability.RecheckWindow())
	require.NoError(t, err)
	t.Cleanup(func() { _ = availStore.Close() })

	return New(availStore)
}

// detailResponse builds a mylist handler returning the torrent either as a
// single record (id query set) or as the account list.
func detailResponse(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "" {
			_, _ = fmt.Fprintf(w, `{"success": true, "data": %s}`, body)
			return
		}
		_, _ = fmt.Fprintf(w, `{"success": true, "data": [%s]}`, body)
	}
}

func TestCheckAvailabilityCachesResults(t *testing.T) {
	mock := &mockTorbox{
		onCheckCached: func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprintf(w, `{"success": true, "data": {%q: {"name": "Movie", "hash": %q, "files": [{"name": "movie.mkv", "size": 100}]}}}`, testHash, testHash)
		},
	}
	svc := newTestService(t, mock, 100)
	ctx := context.Background()

	result, err := svc.CheckAvailability(ctx, "key", []string{testHash})
	require.NoError(t, err)
	require.Contains(t, result, testHash)
	assert.True(t, result[testHash].IsCached())

	checkCached, _, _, _ := mock.counts()
	assert.Equal(t, 1, checkCached)

	// Scenario A: repeat call is answered from the store, zero remote calls.
	result, err = svc.CheckAvailability(ctx, "key", []string{testHash})
	require.NoError(t, err)
	assert.True(t, result[testHash].IsCached())

	checkCached, _, _, _ = mock.counts()
	assert.Equal(t, 1, checkCached, "cache hit must short-circuit the remote query")
}

func TestCheckAvailabilityBatching(t *testing.T) {
	mock := &mockTorbox{}
	svc := newTestService(t, mock, 2)

	hashes := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		hashes = append(hashes, fmt.Sprintf("%040d", i))
	}

	result, err := svc.CheckAvailability(context.Background(), "key", hashes)
	require.NoError(t, err)
	assert.Len(t, result, 5)

	checkCached, _, _, _ := mock.counts()
	assert.Equal(t, 3, checkCached, "5 missing hashes at batch size 2 means ceil(5/2)=3 calls")

	for _, h := range hashes {
		assert.False(t, result[h].IsCached(), "unreturned hashes default to uncached")
	}
}

func TestCheckAvailabilityNormalizesInput(t *testing.T) {
	mock := &mockTorbox{}
	svc := newTestService(t, mock, 100)

	result, err := svc.CheckAvailability(context.Background(), "key", []string{
		"08ADA5A7A6183AAE1E09D831DF6748D566095A10", // uppercase duplicate
		testHash,
		"not-a-hash",
		"",
	})
	require.NoError(t, err)
	assert.Len(t, result, 1, "duplicates collapse, invalid hashes are dropped")
	assert.Contains(t, result, testHash)
}

func TestCheckAvailabilityFailsWholeCallOnRemoteError(t *testing.T) {
	calls := 0
	mock := &mockTorbox{}
	mock.onCheckCached = func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			_, _ = w.Write([]byte(`{"success": true, "data": {}}`))
		}
	}
	svc := newTestService(t, mock, 1)

	_, err := svc.CheckAvailability(context.Background(), "key", []string{testHash, otherHash})
	require.Error(t, err, "no partial success: a failed batch fails the whole call")
}

func TestCheckAvailabilityAuthFailure(t *testing.T) {
	mock := &mockTorbox{
		onCheckCached: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	}
	svc := newTestService(t, mock, 100)

	_, err := svc.CheckAvailability(context.Background(), "key", []string{testHash})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrBadToken))
}

func TestResolveFreshTorrent(t *testing.T) {
	// Scenario B: create succeeds with id 42; the single video file carries
	// no remote id, so the link request falls back to file_id=1.
	mock := &mockTorbox{
		onList: detailResponse(`{"id": 42, "hash": "` + testHash + `", "name": "Movie", "files": [{"name": "movie.mkv", "size": 100}]}`),
		onRequestDL: func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "42", q.Get("torrent_id"))
			assert.Equal(t, "1", q.Get("file_id"), "missing remote file id falls back to position+1")
			assert.Equal(t, "false", q.Get("redirect"))
			_, _ = w.Write([]byte(`{"success": true, "data": {"download": "https://cdn/x"}}`))
		},
	}
	svc := newTestService(t, mock, 100)

	url, err := svc.Resolve(context.Background(), types.ResolutionToken{
		APIKey:    "key",
		InfoHash:  testHash,
		FileIndex: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x", url)
}

func TestResolveAlreadyRegistered(t *testing.T) {
	// Scenario C: create answers 409, the account list reconciles the hash.
	mock := &mockTorbox{
		onCreate: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		},
		onList: detailResponse(`{"id": 7, "hash": "` + testHash + `", "name": "Movie", "files": [{"id": 3, "name": "movie.mkv", "size": 100}]}`),
		onRequestDL: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "7", r.URL.Query().Get("torrent_id"))
			assert.Equal(t, "3", r.URL.Query().Get("file_id"))
			_, _ = w.Write([]byte(`{"success": true, "data": {"download": "https://cdn/y"}}`))
		},
	}
	svc := newTestService(t, mock, 100)

	url, err := svc.Resolve(context.Background(), types.ResolutionToken{
		APIKey:    "key",
		InfoHash:  testHash,
		FileIndex: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/y", url)
}

func TestResolveIdempotentRegistration(t *testing.T) {
	created := false
	mock := &mockTorbox{
		onList: detailResponse(`{"id": 42, "hash": "` + testHash + `", "name": "Movie", "files": [{"id": 5, "name": "movie.mkv", "size": 100}]}`),
	}
	mock.onCreate = func(w http.ResponseWriter, r *http.Request) {
		if created {
			w.WriteHeader(http.StatusConflict)
			return
		}
		created = true
		_, _ = w.Write([]byte(`{"success": true, "data": {"torrent_id": 42}}`))
	}
	svc := newTestService(t, mock, 100)
	token := types.ResolutionToken{APIKey: "key", InfoHash: testHash, FileIndex: 0}

	first, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err)

	second, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err, "repeat resolution must tolerate the duplicate status")
	assert.Equal(t, first, second)

	_, create, _, _ := mock.counts()
	assert.Equal(t, 2, create, "create attempted once per resolve, only one succeeded")
}

func TestResolveAuthFailureOutcome(t *testing.T) {
	// Scenario D: a 401 anywhere yields "access failed", never "unexpected".
	mock := &mockTorbox{
		onCreate: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	}
	svc := newTestService(t, mock, 100)

	_, err := svc.Resolve(context.Background(), types.ResolutionToken{
		APIKey:    "key",
		InfoHash:  testHash,
		FileIndex: 0,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccessFailed))
	assert.False(t, errors.Is(err, ErrUnexpected))
}

func TestResolveUnregisteredTorrentOutcome(t *testing.T) {
	mock := &mockTorbox{
		onCreate: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		},
		// Account list has no matching hash.
	}
	svc := newTestService(t, mock, 100)

	_, err := svc.Resolve(context.Background(), types.ResolutionToken{
		APIKey:    "key",
		InfoHash:  testHash,
		FileIndex: 0,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpected), "NotFound collapses into the unexpected outcome")
}

func TestMapFileIndexVideoOnlyOrdering(t *testing.T) {
	mock := &mockTorbox{
		onList: detailResponse(`{"id": 42, "hash": "` + testHash + `", "name": "Movie", "files": [
			{"name": "readme.txt", "size": 10},
			{"id": 5, "name": "a.mkv", "size": 100},
			{"name": "b.mp4", "size": 100},
			{"id": 9, "name": "subs.srt", "size": 10}
		]}`),
	}
	svc := newTestService(t, mock, 100)
	client := svc.client("key")
	ctx := context.Background()

	// Index 0 is the first *video* file, not the first raw file.
	fileId, err := svc.mapFileIndex(ctx, client, "42", 0)
	require.NoError(t, err)
	assert.Equal(t, "5", fileId)

	// Second video has no remote id: positional fallback, 1-based.
	fileId, err = svc.mapFileIndex(ctx, client, "42", 1)
	require.NoError(t, err)
	assert.Equal(t, "2", fileId)

	// Past the video count fails with NotFound even though raw files exist.
	_, err = svc.mapFileIndex(ctx, client, "42", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	_, err = svc.mapFileIndex(ctx, client, "42", -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestClientCacheReusesPerCredential(t *testing.T) {
	mock := &mockTorbox{}
	svc := newTestService(t, mock, 100)

	a := svc.client("key-a")
	b := svc.client("key-b")
	assert.NotSame(t, a, b)
	assert.Same(t, a, svc.client("key-a"))
}
