package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownload(t *testing.T) {
	cls := New(nil, nil)

	testCases := []struct {
		name         string
		contentType  string
		declaredType string
		url          string
		expIntercept bool
		expReason    Reason
	}{
		{
			name:         "PDF with declared type other",
			contentType:  "application/pdf",
			declaredType: "other",
			url:          "https://x/y.pdf",
			expIntercept: true,
			expReason:    ReasonExplicitDownload,
		},
		{
			name:         "HTML page is never a download",
			contentType:  "text/html",
			declaredType: "other",
			url:          "https://x/y",
			expReason:    ReasonNone,
		},
		{
			name:         "Declared type not other",
			contentType:  "application/pdf",
			declaredType: "main_frame",
			url:          "https://x/y.pdf",
			expReason:    ReasonNone,
		},
		{
			name:         "Blob URL",
			contentType:  "application/zip",
			declaredType: "other",
			url:          "blob:https://x/123",
			expReason:    ReasonNone,
		},
		{
			name:         "Data URL",
			contentType:  "application/octet-stream",
			declaredType: "other",
			url:          "data:application/octet-stream;base64,AAAA",
			expReason:    ReasonNone,
		},
		{
			name:         "Missing content type is conservative",
			declaredType: "other",
			url:          "https://x/y.bin",
			expReason:    ReasonNone,
		},
		{
			name:         "Zip archive",
			contentType:  "application/zip",
			declaredType: "other",
			url:          "https://x/y.zip",
			expIntercept: true,
			expReason:    ReasonExplicitDownload,
		},
		{
			name:         "Octet stream with charset suffix",
			contentType:  "application/octet-stream; charset=binary",
			declaredType: "other",
			url:          "https://x/y",
			expIntercept: true,
			expReason:    ReasonExplicitDownload,
		},
		{
			name:         "Media family matches on the download path too",
			contentType:  "video/mp4",
			declaredType: "other",
			url:          "https://x/y.mp4",
			expIntercept: true,
			expReason:    ReasonMediaStream,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := cls.Download(tc.contentType, tc.declaredType, tc.url)

			assert.Equal(t, tc.expIntercept, d.Intercept)
			assert.Equal(t, tc.expReason, d.Reason)
		})
	}
}

func TestMedia(t *testing.T) {
	cls := New(nil, nil)

	testCases := []struct {
		name         string
		contentType  string
		expIntercept bool
	}{
		{name: "Video prefix", contentType: "video/webm", expIntercept: true},
		{name: "Audio prefix", contentType: "audio/mpeg", expIntercept: true},
		{name: "HLS playlist", contentType: "application/vnd.apple.mpegurl", expIntercept: true},
		{name: "MP4 container", contentType: "application/mp4", expIntercept: true},
		{name: "Plain text", contentType: "text/plain"},
		{name: "Missing content type"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := cls.Media(tc.contentType)

			assert.Equal(t, tc.expIntercept, d.Intercept)
			if tc.expIntercept {
				assert.Equal(t, ReasonMediaStream, d.Reason)
			}
		})
	}
}

func TestMediaIgnoresDeclaredType(t *testing.T) {
	cls := New(nil, nil)

	// The media path runs on headers-received and never sees the
	// declared request type.
	for _, ct := range []string{"video/mp4", "audio/ogg", "application/x-mpegurl"} {
		d := cls.Media(ct)
		assert.True(t, d.Intercept, ct)
	}
}

func TestCustomFamilies(t *testing.T) {
	cls := New([]string{"application/x-iso9660-image"}, []string{"mpegts"})

	assert.True(t, cls.Download("application/x-iso9660-image", "other", "https://x/y.iso").Intercept)
	assert.False(t, cls.Download("application/zip", "other", "https://x/y.zip").Intercept)
	assert.True(t, cls.Media("video/mpegts").Intercept)
}

func TestIsLocalScheme(t *testing.T) {
	assert.True(t, IsLocalScheme("blob:https://x/1"))
	assert.True(t, IsLocalScheme("data:text/plain,hi"))
	assert.False(t, IsLocalScheme("https://x/y"))
	assert.False(t, IsLocalScheme("ftp://x/y"))
}
