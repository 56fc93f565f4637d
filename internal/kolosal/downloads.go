// internal/kolosal/downloads.go
package kolosal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/transport"
)

// DownloadState is the server's status string for a download job.
type DownloadState string

const (
	StatePending              DownloadState = "pending"
	StateDownloading          DownloadState = "downloading"
	StateCompleted            DownloadState = "completed"
	StateFailed               DownloadState = "failed"
	StateCancelled            DownloadState = "cancelled"
	StatePaused               DownloadState = "paused"
	StateCreatingEngine       DownloadState = "creating_engine"
	StateEngineCreated        DownloadState = "engine_created"
	StateEngineCreationFailed DownloadState = "engine_creation_failed"
	StateNotFound             DownloadState = "not_found"
	StateUnknown              DownloadState = "unknown"
)

const downloadNotFoundCode = "download_not_found"

// Succeeded reports whether s ends a download successfully. not_found counts: the
// server had nothing to download because the file is already present.
func (s DownloadState) Succeeded() bool {
	switch s {
	case StateCompleted, StateCreatingEngine, StateEngineCreated, StateNotFound:
		return true
	}
	return false
}

// Failed reports whether s ends a download unsuccessfully.
func (s DownloadState) Failed() bool {
	switch s {
	case StateFailed, StateCancelled, StateEngineCreationFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are expected.
func (s DownloadState) Terminal() bool { return s.Succeeded() || s.Failed() }

// DownloadStatus is one observation of a download.
type DownloadStatus struct {
	ID              string
	State           DownloadState
	DownloadedBytes int64
	TotalBytes      int64
	Percentage      float64
}

type progressResponse struct {
	Status   *string `json:"status"`
	Progress *struct {
		DownloadedBytes int64   `json:"downloaded_bytes"`
		TotalBytes      int64   `json:"total_bytes"`
		Percentage      float64 `json:"percentage"`
	} `json:"progress"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// PollProgress fetches the current state of the download for id. When the server
// answers with a download_not_found error the result is a not_found status and a nil
// error.
func (c *Client) PollProgress(ctx context.Context, id string) (DownloadStatus, error) {
	path := "/v1/download-progress/" + url.PathEscape(id)
	resp, err := c.http.Do(ctx, c.get(path, "/v1/download-progress/{id}"))
	if err != nil {
		var te *transport.Error
		if errors.As(err, &te) && isDownloadNotFound(te.Body) {
			return DownloadStatus{ID: id, State: StateNotFound}, nil
		}
		return DownloadStatus{}, fmt.Errorf("poll download %s: %w", id, err)
	}

	var payload progressResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return DownloadStatus{}, &ParseError{Op: "poll download " + id, Err: err}
	}
	st := DownloadStatus{ID: id, State: StateUnknown}
	if payload.Status != nil {
		st.State = DownloadState(*payload.Status)
	}
	if payload.Progress != nil {
		st.DownloadedBytes = payload.Progress.DownloadedBytes
		st.TotalBytes = payload.Progress.TotalBytes
		st.Percentage = payload.Progress.Percentage
	}
	return st, nil
}

func isDownloadNotFound(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Error.Code == downloadNotFoundCode
}

type controlResponse struct {
	Success        *bool  `json:"success"`
	Message        string `json:"message"`
	CancelledCount int    `json:"cancelled_count"`
}

func (c *Client) control(ctx context.Context, op, path, route string) (controlResponse, error) {
	resp, err := c.http.Do(ctx, c.post(path, route, []byte("{}")))
	if err != nil {
		return controlResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	logging.LogRequest("in", c.conn.BaseURL, "", op, resp.Body)

	var payload controlResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return controlResponse{}, fmt.Errorf("%s: %w: %w", op, ErrNotAcknowledged, &ParseError{Op: op, Err: err})
	}
	if payload.Success == nil || !*payload.Success {
		if payload.Message != "" {
			return payload, fmt.Errorf("%s: %w: %s", op, ErrNotAcknowledged, payload.Message)
		}
		return payload, fmt.Errorf("%s: %w", op, ErrNotAcknowledged)
	}
	return payload, nil
}

// CancelDownload stops the download for id.
func (c *Client) CancelDownload(ctx context.Context, id string) error {
	_, err := c.control(ctx, "cancel download "+id, "/downloads/"+url.PathEscape(id)+"/cancel", "/downloads/{id}/cancel")
	return err
}

// PauseDownload pauses the download for id.
func (c *Client) PauseDownload(ctx context.Context, id string) error {
	_, err := c.control(ctx, "pause download "+id, "/downloads/"+url.PathEscape(id)+"/pause", "/downloads/{id}/pause")
	return err
}

// ResumeDownload resumes a paused download.
func (c *Client) ResumeDownload(ctx context.Context, id string) error {
	_, err := c.control(ctx, "resume download "+id, "/downloads/"+url.PathEscape(id)+"/resume", "/downloads/{id}/resume")
	return err
}

// CancelAllDownloads stops every active download and returns how many the server
// reported cancelling.
func (c *Client) CancelAllDownloads(ctx context.Context) (int, error) {
	payload, err := c.control(ctx, "cancel all downloads", "/downloads", "/downloads")
	if err != nil {
		return 0, err
	}
	return payload.CancelledCount, nil
}
