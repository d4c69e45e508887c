package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	testCases := []struct {
		name    string
		rec     DownloadRecord
		expName string
	}{
		{name: "Filename wins", rec: DownloadRecord{Filename: "report.pdf", URL: "https://x/y.zip"}, expName: "report.pdf"},
		{name: "URL last segment", rec: DownloadRecord{URL: "https://x/files/y.zip"}, expName: "y.zip"},
		{name: "Trailing slash", rec: DownloadRecord{URL: "https://x/files/y.zip/"}, expName: "y.zip"},
		{name: "Nothing known", rec: DownloadRecord{}, expName: "Unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expName, tc.rec.DisplayName())
		})
	}
}

func TestQueueFilterMatch(t *testing.T) {
	testCases := []struct {
		filter   QueueFilter
		status   Status
		expMatch bool
	}{
		{FilterAll, StatusQueued, true},
		{FilterAll, StatusError, true},
		{FilterActive, StatusDownloading, true},
		{FilterActive, StatusPaused, false},
		{FilterWaiting, StatusQueued, true},
		{FilterWaiting, StatusDownloading, false},
		{FilterCompleted, StatusCompleted, true},
		{FilterCompleted, StatusError, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.filter)+"/"+string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expMatch, tc.filter.Match(tc.status))
		})
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPaused.Valid())
	assert.False(t, Status("exploded").Valid())
	assert.False(t, Status("").Valid())
}
