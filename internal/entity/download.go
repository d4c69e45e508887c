package entity

import "strings"

// Status of a single download as reported by the external manager.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusDownloading, StatusPaused, StatusCompleted, StatusError:
		return true
	}

	return false
}

// DownloadRecord mirrors one entry of the external manager's queue.
// Identity is ID; the id is assigned by the manager and is opaque here.
// Every other field may arrive incrementally over several updates.
type DownloadRecord struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Filename  string  `json:"filename,omitempty"`
	Status    Status  `json:"status"`
	TotalSize int64   `json:"total_size"`
	Progress  float64 `json:"progress"` // 0-100
	Speed     float64 `json:"speed"`    // bytes per second
	ETA       int64   `json:"eta"`      // seconds
}

// DisplayName returns the filename, falling back to the last URL path
// segment, then to "Unknown".
func (d *DownloadRecord) DisplayName() string {
	if d.Filename != "" {
		return d.Filename
	}

	if d.URL != "" {
		trimmed := strings.TrimRight(d.URL, "/")
		if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && idx < len(trimmed)-1 {
			return trimmed[idx+1:]
		}
	}

	return "Unknown"
}

// QueueStats holds derived queue counters. They are always recomputed
// from the records, never tracked incrementally.
type QueueStats struct {
	Active    int `json:"active"`
	Waiting   int `json:"waiting"`
	Completed int `json:"completed"`
}

// QueueFilter selects a projection of the queue for display.
type QueueFilter string

const (
	FilterAll       QueueFilter = "all"
	FilterActive    QueueFilter = "active"
	FilterWaiting   QueueFilter = "waiting"
	FilterCompleted QueueFilter = "completed"
)

func (f QueueFilter) Valid() bool {
	switch f {
	case FilterAll, FilterActive, FilterWaiting, FilterCompleted:
		return true
	}

	return false
}

// Match reports whether a record with the given status belongs to the
// filter's projection.
func (f QueueFilter) Match(s Status) bool {
	switch f {
	case FilterAll:
		return true
	case FilterActive:
		return s == StatusDownloading
	case FilterWaiting:
		return s == StatusQueued
	case FilterCompleted:
		return s == StatusCompleted
	}

	return false
}
