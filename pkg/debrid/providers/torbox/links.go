package torbox

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	gourl "net/url"
	"time"

	"github.com/dylanmazurek/resolvarr/pkg/debrid/types"
)

// RequestDownloadLink asks for a direct, time-bounded URL to one file of a
// torrent. This endpoint authenticates via the token query parameter, not the
// bearer header. The client IP is forwarded when known.
func (tb *Torbox) RequestDownloadLink(ctx context.Context, torrentId, fileId, clientIP string) (*types.DownloadLink, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	query := gourl.Values{}
	query.Add("token", tb.apiKey)
	query.Add("torrent_id", torrentId)
	query.Add("file_id", fileId)
	query.Add("redirect", "false")
	if clientIP != "" {
		query.Add("user_ip", clientIP)
	}

	url := fmt.Sprintf("%s/api/torrents/requestdl?%s", tb.host, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := tb.client.MakeRequest(req)
	if err != nil {
		tb.logger.Error().
			Err(err).
			Str("torrent_id", torrentId).
			Str("file_id", fileId).
			Msg("requestdl call failed")

		return nil, types.ClassifyStatus(err)
	}

	var data DownloadLinkResponse
	if err = json.Unmarshal(resp, &data); err != nil {
		return nil, fmt.Errorf("decoding requestdl response: %w", err)
	}

	if data.Data == nil {
		tb.logger.Error().
			Str("torrent_id", torrentId).
			Str("file_id", fileId).
			Bool("success", data.Success).
			Interface("error", data.Error).
			Str("detail", data.Detail).
			Msg("requestdl returned no data")

		return nil, fmt.Errorf("%w: no download link", types.ErrNotFound)
	}

	link := cmp.Or(data.Data.Download, data.Data.URL)
	if link == "" {
		return nil, fmt.Errorf("%w: no download link", types.ErrNotFound)
	}

	return &types.DownloadLink{
		Link:      link,
		Generated: time.Now(),
	}, nil
}
