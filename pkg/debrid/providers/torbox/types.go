package torbox

import (
	"encoding/json"
	"time"
)

// APIResponse is the envelope every TorBox endpoint answers with.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Error   any    `json:"error"`
	Detail  string `json:"detail"`

	Data *T `json:"data"` // pointer to allow nil
}

// ParseErrorCode extracts the error code from the API response. TorBox can
// return errors as strings or as objects with a code field.
func (r *APIResponse[T]) ParseErrorCode() string {
	if r.Error == nil {
		return ""
	}

	switch v := r.Error.(type) {
	case string:
		return v
	case map[string]interface{}:
		if code, ok := v["code"].(string); ok {
			return code
		}
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// torboxFile is one file of a torrent record. The id is a pointer because
// some responses omit per-file ids.
type torboxFile struct {
	Id        *int   `json:"id,omitempty"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	ShortName string `json:"short_name,omitempty"`
}

type torboxInfo struct {
	Id               int          `json:"id"`
	Hash             string       `json:"hash"`
	Name             string       `json:"name"`
	Size             int64        `json:"size"`
	Active           bool         `json:"active"`
	CreatedAt        time.Time    `json:"created_at"`
	DownloadState    string       `json:"download_state"`
	Progress         float64      `json:"progress"`
	DownloadFinished bool         `json:"download_finished"`
	Cached           bool         `json:"cached"`
	Files            []torboxFile `json:"files"`
}

// UnmarshalJSON folds the create endpoint's torrent_id/queued_id variants
// into Id.
func (t *torboxInfo) UnmarshalJSON(d []byte) error {
	type Alias torboxInfo
	type Aux struct {
		*Alias

		TorrentID *int `json:"torrent_id"`
		QueuedID  *int `json:"queued_id"`
	}

	aux := &Aux{
		Alias: (*Alias)(t),
	}

	err := json.Unmarshal(d, &aux)
	if err != nil {
		return err
	}

	if t.Id == 0 {
		if aux.TorrentID != nil {
			t.Id = *aux.TorrentID
		}

		if aux.QueuedID != nil {
			t.Id = *aux.QueuedID
		}
	}

	return err
}

// cachedTorrent is one entry of the checkcached object response.
type cachedTorrent struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Hash  string `json:"hash"`
	Files []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"files"`
}

// requestDLData carries the direct URL of a requestdl response. The link
// usually arrives in download; url is an observed fallback field.
type requestDLData struct {
	Download string `json:"download"`
	URL      string `json:"url"`
}

type AvailableResponse APIResponse[map[string]cachedTorrent]

type CreateTorrentResponse APIResponse[torboxInfo]

type InfoResponse APIResponse[torboxInfo]

type TorrentsListResponse APIResponse[[]torboxInfo]

type DownloadLinkResponse APIResponse[requestDLData]
