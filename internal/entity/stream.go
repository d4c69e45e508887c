package entity

// StreamKind distinguishes the element family a stream was found on.
type StreamKind string

const (
	KindVideo StreamKind = "video"
	KindAudio StreamKind = "audio"
)

// StreamQuality describes what could be read off the media element at
// discovery time.
type StreamQuality struct {
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Codecs   string  `json:"codecs,omitempty"`
}

// StreamRecord is a media source discovered in a page. URL is the
// identity: the same resource is never reported twice.
type StreamRecord struct {
	URL      string        `json:"url"`
	Kind     StreamKind    `json:"type"`
	Title    string        `json:"title"`
	Quality  StreamQuality `json:"quality"`
	Duration float64       `json:"duration,omitempty"`
}
