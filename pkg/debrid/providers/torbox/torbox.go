// Package torbox is the TorBox API client. It covers the four endpoints the
// service needs: bulk cache checks, torrent creation, account listing and
// download link generation.
package torbox

import (
	"cmp"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dylanmazurek/resolvarr/internal/config"
	"github.com/dylanmazurek/resolvarr/internal/logger"
	"github.com/dylanmazurek/resolvarr/internal/request"
	"github.com/dylanmazurek/resolvarr/internal/utils"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/types"
	"github.com/dylanmazurek/resolvarr/pkg/version"
	"github.com/rs/zerolog"
)

const (
	// Read-style calls get 10s, torrent creation 15s.
	readTimeout   = 10 * time.Second
	createTimeout = 15 * time.Second
)

type Torbox struct {
	name   string
	host   string
	apiKey string

	client *request.Client
	logger zerolog.Logger
}

// New builds a client bound to one account credential. Every call carries the
// key as a bearer header except requestdl, which authenticates via query
// token.
func New(apiKey string) *Torbox {
	pc := config.Get().Provider

	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", apiKey),
		"User-Agent":    fmt.Sprintf("Resolvarr/%s (%s; %s)", version.GetInfo(), runtime.GOOS, runtime.GOARCH),
	}

	_log := logger.New(pc.Name)
	client := request.New(
		request.WithHeaders(headers),
		request.WithRateLimiter(request.ParseRateLimit(pc.RateLimit)),
		request.WithLogger(_log),
		request.WithProxy(pc.Proxy),
		// The resolve pipeline performs exactly one attempt per call;
		// retry policy is the caller's responsibility.
		request.WithMaxRetries(0),
		// TorBox enforces tighter per-route limits on these two endpoints.
		request.WithEndpointLimiter("POST", `/api/torrents/createtorrent$`, request.ParseRateLimit("10/minute")),
		request.WithEndpointLimiter("GET", `/api/torrents/requestdl$`, request.ParseRateLimit("20/minute")),
	)

	return &Torbox{
		name:   cmp.Or(pc.Name, "torbox"),
		host:   cmp.Or(pc.Host, "https://api.torbox.app/v1"),
		apiKey: apiKey,
		client: client,
		logger: _log,
	}
}

func (tb *Torbox) Name() string {
	return tb.name
}

func (tb *Torbox) Host() string {
	return tb.host
}

var (
	downloadedStatuses = []string{"completed", "cached", "downloaded"}
	seedingStatuses    = []string{"seeding", "uploading"}

	downloadingStatuses = []string{
		"paused", "downloading", "queued", "metaDL",
		"stalled", "checking", "allocating", "moving",
	}
)

func (tb *Torbox) normalizeStatus(state string, finished bool) string {
	if finished {
		return "downloaded"
	}

	switch {
	case utils.Contains(downloadedStatuses, state):
		return "downloaded"
	case utils.Contains(downloadingStatuses, state):
		return "downloading"
	case utils.Contains(seedingStatuses, state):
		return "seeding"
	}

	return "error"
}

// toTorrent converts a remote record, preserving the native file order.
func (tb *Torbox) toTorrent(info *torboxInfo) *types.Torrent {
	t := &types.Torrent{
		Id:       strconv.Itoa(info.Id),
		InfoHash: strings.ToLower(info.Hash),
		Name:     info.Name,
		Status:   tb.normalizeStatus(info.DownloadState, info.DownloadFinished),
		Size:     info.Size,
		Added:    info.CreatedAt,
		Files:    make([]types.File, 0, len(info.Files)),
	}

	for _, f := range info.Files {
		file := types.File{
			Name: f.Name,
			Size: f.Size,
		}
		if f.Id != nil {
			file.Id = strconv.Itoa(*f.Id)
		}
		t.Files = append(t.Files, file)
	}

	return t
}
