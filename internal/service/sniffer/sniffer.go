/*
Package sniffer discovers media stream sources on a page. The DOM is
abstracted behind small watch interfaces so the observer only deals
with "an element appeared" and "this element changed" notifications,
independent of the rendering technology.

Streams are keyed by URL: a source that reappears after mutation churn
is reported exactly once.
*/
package sniffer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jgivc/fetchbridge/internal/entity"
)

const untitledMedia = "Untitled Media"

// MediaElement is one media element on the page. Key must be stable
// for the element's lifetime.
type MediaElement interface {
	Key() string
	Kind() entity.StreamKind
	Src() string
	CurrentSrc() string
	SourceTags() []string
	Attr(name string) string
	AncestorLabel() string
	Width() int
	Height() int
	Duration() float64
	Protected() bool
}

// DOM provides scoped change subscriptions. WatchElement must fire on
// attribute and child-list changes of the element and on play events;
// the returned stop funcs release the underlying watches.
type DOM interface {
	WatchTree(fn func(MediaElement)) (stop func())
	WatchElement(el MediaElement, fn func()) (stop func())
	Existing() []MediaElement
	PageTitle() string
}

// Sink receives each newly discovered stream exactly once.
type Sink interface {
	StreamDetected(rec entity.StreamRecord)
}

// ElementSnapshot is a media element described over the control plane.
// It satisfies MediaElement, so reported elements flow through the
// same discovery path as watched ones.
type ElementSnapshot struct {
	ID            string            `json:"id"`
	StreamType    entity.StreamKind `json:"type"`
	Source        string            `json:"src"`
	CurrentSource string            `json:"currentSrc"`
	Sources       []string          `json:"sources"`
	Attributes    map[string]string `json:"attributes"`
	Ancestor      string            `json:"ancestorLabel"`
	VideoWidth    int               `json:"width"`
	VideoHeight   int               `json:"height"`
	Length        float64           `json:"duration"`
	DRM           bool              `json:"protected"`
}

func (s *ElementSnapshot) Key() string             { return s.ID }
func (s *ElementSnapshot) Kind() entity.StreamKind { return s.StreamType }
func (s *ElementSnapshot) Src() string             { return s.Source }
func (s *ElementSnapshot) CurrentSrc() string      { return s.CurrentSource }
func (s *ElementSnapshot) SourceTags() []string    { return s.Sources }
func (s *ElementSnapshot) Attr(name string) string { return s.Attributes[name] }
func (s *ElementSnapshot) AncestorLabel() string   { return s.Ancestor }
func (s *ElementSnapshot) Width() int              { return s.VideoWidth }
func (s *ElementSnapshot) Height() int             { return s.VideoHeight }
func (s *ElementSnapshot) Duration() float64       { return s.Length }
func (s *ElementSnapshot) Protected() bool         { return s.DRM }

type elementState struct {
	el   MediaElement
	stop func()
}

type Observer struct {
	dom  DOM
	sink Sink
	log  *slog.Logger

	mu       sync.Mutex
	elements map[string]*elementState
	streams  map[string]entity.StreamRecord
	order    []string
	treeStop func()
}

// NewObserver builds a media source observer. dom may be nil when
// elements only arrive as reported snapshots over the control plane.
func NewObserver(dom DOM, sink Sink, log *slog.Logger) *Observer {
	return &Observer{
		dom:      dom,
		sink:     sink,
		log:      log.With(slog.String("item", "MediaObserver")),
		elements: make(map[string]*elementState),
		streams:  make(map[string]entity.StreamRecord),
	}
}

// Start watches the tree for new media elements and attaches to the
// ones already present. Without a DOM there is nothing to watch.
func (o *Observer) Start() {
	if o.dom == nil {
		return
	}

	o.mu.Lock()
	if o.treeStop == nil {
		o.treeStop = o.dom.WatchTree(o.Attach)
	}
	o.mu.Unlock()

	for _, el := range o.dom.Existing() {
		o.Attach(el)
	}
}

// Attach registers one media element and scans its current sources.
// Attaching a known element is a no-op.
func (o *Observer) Attach(el MediaElement) {
	o.mu.Lock()

	if _, ok := o.elements[el.Key()]; ok {
		o.mu.Unlock()

		return
	}

	st := &elementState{el: el}
	o.elements[el.Key()] = st
	o.mu.Unlock()

	if o.dom != nil {
		st.stop = o.dom.WatchElement(el, func() {
			o.rescan(st)
		})
	}

	o.rescan(st)
}

// Report ingests one externally observed element, the path for an
// embedding host that watches the page itself. Re-reporting a known
// element rescans it with the fresh snapshot.
func (o *Observer) Report(s ElementSnapshot) {
	o.mu.Lock()
	if st, ok := o.elements[s.ID]; ok {
		st.el = &s
		o.mu.Unlock()
		o.rescan(st)

		return
	}
	o.mu.Unlock()

	o.Attach(&s)
}

// Streams returns every discovered stream in discovery order.
func (o *Observer) Streams() []entity.StreamRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]entity.StreamRecord, 0, len(o.order))
	for _, url := range o.order {
		out = append(out, o.streams[url])
	}

	return out
}

func (o *Observer) Get(url string) (entity.StreamRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.streams[url]

	return rec, ok
}

// Stop releases every watch and clears both maps.
func (o *Observer) Stop() {
	o.mu.Lock()

	stops := make([]func(), 0, len(o.elements)+1)
	if o.treeStop != nil {
		stops = append(stops, o.treeStop)
		o.treeStop = nil
	}

	for _, st := range o.elements {
		if st.stop != nil {
			stops = append(stops, st.stop)
		}
	}

	o.elements = make(map[string]*elementState)
	o.streams = make(map[string]entity.StreamRecord)
	o.order = nil
	o.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// rescan recomputes the element's source set and reports every url the
// page has not produced before.
func (o *Observer) rescan(st *elementState) {
	current := make(map[string]struct{})

	if src := st.el.Src(); src != "" {
		current[src] = struct{}{}
	}

	if src := st.el.CurrentSrc(); src != "" {
		current[src] = struct{}{}
	}

	for _, src := range st.el.SourceTags() {
		if src != "" {
			current[src] = struct{}{}
		}
	}

	o.mu.Lock()

	var fresh []entity.StreamRecord
	for url := range current {
		if _, ok := o.streams[url]; ok {
			continue
		}

		rec := o.record(st.el, url)
		o.streams[url] = rec
		o.order = append(o.order, url)
		fresh = append(fresh, rec)
	}

	o.mu.Unlock()

	for _, rec := range fresh {
		o.log.Debug("Stream detected",
			slog.String("url", rec.URL), slog.String("type", string(rec.Kind)))
		o.sink.StreamDetected(rec)
	}
}

func (o *Observer) record(el MediaElement, url string) entity.StreamRecord {
	return entity.StreamRecord{
		URL:      url,
		Kind:     el.Kind(),
		Title:    o.title(el),
		Quality:  quality(el),
		Duration: el.Duration(),
	}
}

// title resolves the display title through the fallback chain:
// accessible label, title attribute, nearest labeled ancestor, page
// title.
func (o *Observer) title(el MediaElement) string {
	var page string
	if o.dom != nil {
		page = o.dom.PageTitle()
	}

	candidates := []string{
		el.Attr("aria-label"),
		el.Attr("title"),
		el.AncestorLabel(),
		page,
	}

	for _, c := range candidates {
		if c != "" {
			return c
		}
	}

	return untitledMedia
}

func quality(el MediaElement) entity.StreamQuality {
	q := entity.StreamQuality{
		Width:    el.Width(),
		Height:   el.Height(),
		Duration: el.Duration(),
	}

	var codecs []string
	if el.Protected() {
		codecs = append(codecs, "DRM Protected")
	}

	if el.Kind() == entity.KindVideo && el.Width() > 0 && el.Height() > 0 {
		codecs = append(codecs, fmt.Sprintf("%dx%d", el.Width(), el.Height()))
	}

	q.Codecs = strings.Join(codecs, ", ")

	return q
}
