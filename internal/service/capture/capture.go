/*
Package capture decides what happens to browser download and network
events: either the host keeps its native handling, or the event is
suppressed and forwarded to the external download manager as a
download_request.

The coordinator owns the process-wide capture flag. The manager is
authoritative for it: an inbound capture_status overrides the local
value, which matters after a reconnect.
*/
package capture

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jgivc/fetchbridge/internal/protocol"
	"github.com/jgivc/fetchbridge/internal/service/classify"
)

const defaultDedupWindow = 30 * time.Second

type Sender interface {
	Send(ctx context.Context, msg any) error
}

type Dispatcher interface {
	Handle(msgType string, fn func(*protocol.Envelope))
}

// Host suppresses native handling of an event. Cancellation failures
// are logged and the download request is sent anyway: a duplicate at
// the manager beats a lost capture.
type Host interface {
	CancelDownload(ctx context.Context, id string) error
	CancelRequest(ctx context.Context, id string) error
}

// Badge renders the capture flag (ON/OFF) on the extension surface.
type Badge interface {
	SetCaptureState(enabled bool)
}

type Notifier interface {
	Notify(title, message string)
}

// StateRepository persists the capture flag across restarts and keeps
// the seen-URL window that de-duplicates the two request phases. The
// two browser event phases are supposed to be mutually exclusive per
// resource, but nothing enforces that, so first-seen wins within the
// window.
type StateRepository interface {
	LoadCapture(ctx context.Context) (enabled bool, found bool, err error)
	SaveCapture(ctx context.Context, enabled bool) error
	MarkSeen(ctx context.Context, url string, window time.Duration) (first bool, err error)
}

// DownloadEvent is a download the host is about to start natively.
type DownloadEvent struct {
	ID       string
	URL      string
	Referrer string
}

// RequestEvent is an in-flight network request. ContentType is only
// known at the phase where the host has response headers.
type RequestEvent struct {
	ID           string
	URL          string
	DeclaredType string
	ContentType  string
	Initiator    string
}

type Config struct {
	Enabled     bool
	UserAgent   string
	DedupWindow time.Duration
}

type Coordinator struct {
	cfg     Config
	enabled atomic.Bool

	cls    *classify.Classifier
	conn   Sender
	host   Host
	repo   StateRepository
	badge  Badge
	notify Notifier
	log    *slog.Logger

	onIntercept func(classify.Reason)
}

func NewCoordinator(cfg Config, cls *classify.Classifier, conn Sender, host Host,
	repo StateRepository, badge Badge, notify Notifier, log *slog.Logger) *Coordinator {

	if cfg.DedupWindow < 1 {
		cfg.DedupWindow = defaultDedupWindow
	}

	c := &Coordinator{
		cfg:    cfg,
		cls:    cls,
		conn:   conn,
		host:   host,
		repo:   repo,
		badge:  badge,
		notify: notify,
		log:    log.With(slog.String("item", "CaptureCoordinator")),
	}
	c.enabled.Store(cfg.Enabled)

	return c
}

// Start restores the persisted capture flag and renders the badge.
func (c *Coordinator) Start(ctx context.Context) {
	enabled, found, err := c.repo.LoadCapture(ctx)
	if err != nil {
		c.log.Error("Cannot load capture flag", slog.Any("error", err))
	} else if found {
		c.enabled.Store(enabled)
	}

	c.badge.SetCaptureState(c.enabled.Load())
}

// Register subscribes the coordinator to its inbound message types.
func (c *Coordinator) Register(d Dispatcher) {
	d.Handle(protocol.TypeCaptureStatus, c.onCaptureStatus)
	d.Handle(protocol.TypeDownloadStarted, c.onDownloadStarted)
	d.Handle(protocol.TypeError, c.onError)
}

// SetInterceptListener installs a hook called on every positive
// decision, keyed by reason.
func (c *Coordinator) SetInterceptListener(fn func(classify.Reason)) {
	c.onIntercept = fn
}

func (c *Coordinator) Enabled() bool {
	return c.enabled.Load()
}

// Toggle flips the capture flag, persists it, informs the manager and
// refreshes the badge. Returns the new value.
func (c *Coordinator) Toggle(ctx context.Context) bool {
	enabled := !c.enabled.Load()
	c.setEnabled(ctx, enabled)

	if err := c.conn.Send(ctx, protocol.NewCaptureToggle(enabled)); err != nil {
		c.log.Error("Cannot send capture toggle", slog.Any("error", err))
	}

	return enabled
}

// OnDownloadCreated handles a download the host is starting natively.
// Returns true when the event was intercepted.
func (c *Coordinator) OnDownloadCreated(ctx context.Context, evt DownloadEvent) bool {
	if !c.enabled.Load() {
		return false
	}

	if classify.IsLocalScheme(evt.URL) {
		return false
	}

	if err := c.host.CancelDownload(ctx, evt.ID); err != nil {
		c.log.Error("Cannot cancel native download",
			slog.String("id", evt.ID), slog.Any("error", err))
	}

	c.intercepted(classify.ReasonExplicitDownload)
	c.request(ctx, evt.URL, evt.Referrer)

	return true
}

// OnBeforeRequest handles the pre-request phase of the download path.
func (c *Coordinator) OnBeforeRequest(ctx context.Context, evt RequestEvent) bool {
	if !c.enabled.Load() {
		return false
	}

	d := c.cls.Download(evt.ContentType, evt.DeclaredType, evt.URL)
	if !d.Intercept {
		return false
	}

	return c.divert(ctx, evt, d.Reason)
}

// OnHeadersReceived handles the media path. It runs once response
// headers are known, regardless of the declared request type.
func (c *Coordinator) OnHeadersReceived(ctx context.Context, evt RequestEvent) bool {
	if !c.enabled.Load() {
		return false
	}

	d := c.cls.Media(evt.ContentType)
	if !d.Intercept {
		return false
	}

	return c.divert(ctx, evt, d.Reason)
}

// OnContextMenu forwards an explicitly chosen link. User intent
// bypasses the capture flag.
func (c *Coordinator) OnContextMenu(ctx context.Context, linkURL, pageURL string) error {
	return c.request(ctx, linkURL, pageURL)
}

func (c *Coordinator) divert(ctx context.Context, evt RequestEvent, reason classify.Reason) bool {
	first, err := c.repo.MarkSeen(ctx, evt.URL, c.cfg.DedupWindow)
	if err != nil {
		c.log.Error("Cannot check seen window", slog.String("url", evt.URL), slog.Any("error", err))
	} else if !first {
		c.log.Debug("Skip already requested url", slog.String("url", evt.URL))

		return false
	}

	if err := c.host.CancelRequest(ctx, evt.ID); err != nil {
		c.log.Error("Cannot cancel request",
			slog.String("id", evt.ID), slog.Any("error", err))
	}

	c.intercepted(reason)
	c.request(ctx, evt.URL, evt.Initiator)

	return true
}

func (c *Coordinator) request(ctx context.Context, url, referrer string) error {
	msg := protocol.NewDownloadRequest(url, referrer, c.cfg.UserAgent)
	if err := c.conn.Send(ctx, msg); err != nil {
		// The manager already surfaced a not-connected notification.
		c.log.Error("Cannot send download request", slog.String("url", url), slog.Any("error", err))

		return err
	}

	return nil
}

func (c *Coordinator) setEnabled(ctx context.Context, enabled bool) {
	c.enabled.Store(enabled)

	if err := c.repo.SaveCapture(ctx, enabled); err != nil {
		c.log.Error("Cannot persist capture flag", slog.Any("error", err))
	}

	c.badge.SetCaptureState(enabled)
}

func (c *Coordinator) onCaptureStatus(env *protocol.Envelope) {
	// Remote is authoritative, notably right after a reconnect.
	c.setEnabled(context.Background(), env.Enabled)
}

func (c *Coordinator) onDownloadStarted(_ *protocol.Envelope) {
	c.notify.Notify("Download Started", "Download has been added to the queue")
}

func (c *Coordinator) onError(env *protocol.Envelope) {
	c.notify.Notify("Download Error", env.Error)
}

func (c *Coordinator) intercepted(reason classify.Reason) {
	if c.onIntercept != nil {
		c.onIntercept(reason)
	}
}
