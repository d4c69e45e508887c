/*
Package notify delivers user-facing notifications. A token bucket keeps
a reconnect storm or a burst of download errors from flooding the user;
notifications over the limit are dropped, not queued.
*/
package notify

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const defaultBurst = 5

// Sink presents one notification to the user.
type Sink interface {
	Show(id, title, message string)
}

type Notifier struct {
	sink    Sink
	limiter *rate.Limiter
	log     *slog.Logger
}

func New(sink Sink, log *slog.Logger) *Notifier {
	n := &Notifier{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Every(time.Second), defaultBurst),
		log:     log.With(slog.String("item", "Notifier")),
	}

	if n.sink == nil {
		n.sink = &logSink{log: n.log}
	}

	return n
}

func (n *Notifier) Notify(title, message string) {
	if !n.limiter.Allow() {
		n.log.Debug("Drop notification over rate limit", slog.String("title", title))

		return
	}

	n.sink.Show(uuid.NewString(), title, message)
}

// logSink is the default presentation: one log line per notification.
type logSink struct {
	log *slog.Logger
}

func (s *logSink) Show(id, title, message string) {
	s.log.Info("Notification",
		slog.String("id", id), slog.String("title", title), slog.String("message", message))
}
