package notify

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSink struct {
	ids    []string
	titles []string
}

func (s *fakeSink) Show(id, title, _ string) {
	s.ids = append(s.ids, id)
	s.titles = append(s.titles, title)
}

func TestNotify(t *testing.T) {
	sink := &fakeSink{}
	n := New(sink, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))

	n.Notify("Download Started", "Download has been added to the queue")

	assert.Equal(t, []string{"Download Started"}, sink.titles)
	assert.NotEmpty(t, sink.ids[0])
}

func TestBurstLimited(t *testing.T) {
	sink := &fakeSink{}
	n := New(sink, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))

	for i := 0; i < 20; i++ {
		n.Notify("Download Error", "disk full")
	}

	// Only the bucket capacity goes through, the rest is dropped.
	assert.Len(t, sink.titles, defaultBurst)
}

func TestUniqueIDs(t *testing.T) {
	sink := &fakeSink{}
	n := New(sink, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))

	n.Notify("a", "1")
	n.Notify("b", "2")

	assert.NotEqual(t, sink.ids[0], sink.ids[1])
}
