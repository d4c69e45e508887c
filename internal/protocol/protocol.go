/*
Package protocol defines the JSON message protocol spoken with the
external download manager. Each frame carries exactly one JSON object
tagged by a "type" field.
*/
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/jgivc/fetchbridge/internal/common"
	"github.com/jgivc/fetchbridge/internal/entity"
)

// Outbound message types (bridge -> manager).
const (
	TypeDownloadRequest = "download_request"
	TypeCaptureToggle   = "capture_toggle"
	TypeGetQueue        = "get_queue"
	TypeClearCompleted  = "clear_completed"
	TypeStartAll        = "start_all"
	TypeReorderQueue    = "reorder_queue"
	TypeDownloadAction  = "download_action"
)

// Inbound message types (manager -> bridge).
const (
	TypeCaptureStatus   = "capture_status"
	TypeDownloadStarted = "download_started"
	TypeError           = "error"
	TypeDownloadAdded   = "download_added"
	TypeDownloadUpdate  = "download_update"
	TypeDownloadRemoved = "download_removed"
	TypeQueueUpdate     = "queue_update"
)

const HeaderUserAgent = "User-Agent"

// Envelope is the decoded form of one inbound frame. Only the fields
// relevant to Type are populated.
type Envelope struct {
	Type       string                 `json:"type"`
	Enabled    bool                   `json:"enabled"`
	Error      string                 `json:"error"`
	Download   *entity.DownloadRecord `json:"download"`
	DownloadID string                 `json:"downloadId"`
	Stats      *entity.QueueStats     `json:"stats"`
}

// Decode parses one inbound frame. A frame that is not a JSON object or
// carries no type tag is malformed; unknown types decode fine and are
// left to the dispatcher to ignore.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedMessage, err)
	}

	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type tag", common.ErrMalformedMessage)
	}

	return &env, nil
}

// Encode serializes one outbound message to a frame.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("cannot encode message: %w", err)
	}

	return data, nil
}

type DownloadRequest struct {
	Type     string            `json:"type"`
	URL      string            `json:"url"`
	Referrer string            `json:"referrer"`
	Headers  map[string]string `json:"headers"`
}

func NewDownloadRequest(url, referrer, userAgent string) DownloadRequest {
	return DownloadRequest{
		Type:     TypeDownloadRequest,
		URL:      url,
		Referrer: referrer,
		Headers: map[string]string{
			HeaderUserAgent: userAgent,
		},
	}
}

type CaptureToggle struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

func NewCaptureToggle(enabled bool) CaptureToggle {
	return CaptureToggle{Type: TypeCaptureToggle, Enabled: enabled}
}

type GetQueue struct {
	Type string `json:"type"`
}

func NewGetQueue() GetQueue {
	return GetQueue{Type: TypeGetQueue}
}

type ClearCompleted struct {
	Type string `json:"type"`
}

func NewClearCompleted() ClearCompleted {
	return ClearCompleted{Type: TypeClearCompleted}
}

type StartAll struct {
	Type string `json:"type"`
}

func NewStartAll() StartAll {
	return StartAll{Type: TypeStartAll}
}

type ReorderQueue struct {
	Type        string `json:"type"`
	DownloadID  string `json:"downloadId"`
	NewPosition int    `json:"newPosition"`
}

func NewReorderQueue(downloadID string, newPosition int) ReorderQueue {
	return ReorderQueue{Type: TypeReorderQueue, DownloadID: downloadID, NewPosition: newPosition}
}

type DownloadAction struct {
	Type       string `json:"type"`
	Action     string `json:"action"`
	DownloadID string `json:"downloadId"`
}

func NewDownloadAction(action, downloadID string) DownloadAction {
	return DownloadAction{Type: TypeDownloadAction, Action: action, DownloadID: downloadID}
}
