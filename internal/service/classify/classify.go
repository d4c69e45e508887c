/*
Package classify decides whether an observed network resource should be
diverted to the external download manager. The decision is a pure
function of the response content type, the declared request type and
the resource URL; nothing here keeps state.
*/
package classify

import "strings"

// Reason explains a positive intercept decision.
type Reason string

const (
	ReasonNone             Reason = "none"
	ReasonExplicitDownload Reason = "download"
	ReasonMediaStream      Reason = "media"
)

// Decision is the outcome of a single classification.
type Decision struct {
	Intercept bool
	Reason    Reason
}

// DeclaredTypeOther is the request type browsers assign to plain
// resource fetches that are not pages, scripts, styles or frames.
const DeclaredTypeOther = "other"

// Content-type substrings of the configured download family.
var defaultDownloadTypes = []string{
	"application/octet-stream",
	"application/zip",
	"application/x-rar-compressed",
	"application/pdf",
	"application/msword",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
}

// Container and playlist markers that identify media beyond the
// video/ and audio/ prefixes.
var defaultMediaMarkers = []string{
	"mpegurl",
	"mp4",
	"webm",
}

type Classifier struct {
	downloadTypes []string
	mediaMarkers  []string
}

// New builds a classifier with the given content-type families. Empty
// lists fall back to the defaults.
func New(downloadTypes, mediaMarkers []string) *Classifier {
	if len(downloadTypes) < 1 {
		downloadTypes = defaultDownloadTypes
	}

	if len(mediaMarkers) < 1 {
		mediaMarkers = defaultMediaMarkers
	}

	return &Classifier{
		downloadTypes: downloadTypes,
		mediaMarkers:  mediaMarkers,
	}
}

// Download classifies a resource on the download path. It intercepts
// only declared-type "other" requests to non-local URLs whose content
// type matches the download family or the media family. A missing
// content type never intercepts.
func (c *Classifier) Download(contentType, declaredType, rawURL string) Decision {
	if declaredType != DeclaredTypeOther {
		return Decision{Reason: ReasonNone}
	}

	if IsLocalScheme(rawURL) {
		return Decision{Reason: ReasonNone}
	}

	if contentType == "" {
		return Decision{Reason: ReasonNone}
	}

	if c.matchDownload(contentType) {
		return Decision{Intercept: true, Reason: ReasonExplicitDownload}
	}

	if c.matchMedia(contentType) {
		return Decision{Intercept: true, Reason: ReasonMediaStream}
	}

	return Decision{Reason: ReasonNone}
}

// Media classifies a response on the media path, independent of the
// declared request type. Media often only reveals its type once
// headers arrive, so this runs at the headers-received phase.
func (c *Classifier) Media(contentType string) Decision {
	if contentType == "" {
		return Decision{Reason: ReasonNone}
	}

	if c.matchMedia(contentType) {
		return Decision{Intercept: true, Reason: ReasonMediaStream}
	}

	return Decision{Reason: ReasonNone}
}

func (c *Classifier) matchDownload(contentType string) bool {
	for _, t := range c.downloadTypes {
		if strings.Contains(contentType, t) {
			return true
		}
	}

	return false
}

func (c *Classifier) matchMedia(contentType string) bool {
	if strings.HasPrefix(contentType, "video/") || strings.HasPrefix(contentType, "audio/") {
		return true
	}

	for _, m := range c.mediaMarkers {
		if strings.Contains(contentType, m) {
			return true
		}
	}

	return false
}

// IsLocalScheme reports whether the URL points at in-browser data that
// the external manager cannot fetch.
func IsLocalScheme(rawURL string) bool {
	return strings.HasPrefix(rawURL, "blob:") || strings.HasPrefix(rawURL, "data:")
}
