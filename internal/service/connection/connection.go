/*
Package connection owns the duplex channel to the external download
manager: it dials, watches for the channel dropping, schedules
exponential-backoff reconnects and dispatches inbound protocol
messages to registered handlers.

The reconnect schedule doubles from the base delay on every consecutive
failure. After MaxRetries consecutive failures the manager stays
disconnected until something explicitly calls Connect again.
*/
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jgivc/fetchbridge/internal/common"
	"github.com/jgivc/fetchbridge/internal/entity"
	"github.com/jgivc/fetchbridge/internal/protocol"
)

const (
	defaultMaxRetries  = 5
	defaultBackoffBase = time.Second
)

// Channel is one established duplex connection. Read blocks until a
// frame arrives or the channel drops.
type Channel interface {
	Read() ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Channel, error)
}

// Notifier surfaces user-visible conditions. It never blocks.
type Notifier interface {
	Notify(title, message string)
}

// Presenter receives connection state side effects (icon/badge).
type Presenter interface {
	Connected()
	Disconnected()
}

type Config struct {
	Endpoint    string
	MaxRetries  int
	BackoffBase time.Duration
}

type Manager struct {
	cfg    Config
	dialer Dialer
	notify Notifier
	pres   Presenter
	log    *slog.Logger

	mu       sync.Mutex
	state    entity.ConnectionState
	ch       Channel
	attempts int
	gen      uint64
	timer    *time.Timer
	handlers map[string]func(*protocol.Envelope)
	hooks    []func()

	// afterFunc schedules the reconnect timer. Tests replace it to
	// observe the backoff schedule without sleeping.
	afterFunc func(d time.Duration, fn func()) *time.Timer
}

func NewManager(cfg Config, dialer Dialer, notify Notifier, pres Presenter, log *slog.Logger) *Manager {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultMaxRetries
	}

	if cfg.BackoffBase < 1 {
		cfg.BackoffBase = defaultBackoffBase
	}

	return &Manager{
		cfg:       cfg,
		dialer:    dialer,
		notify:    notify,
		pres:      pres,
		log:       log.With(slog.String("item", "ConnectionManager")),
		handlers:  make(map[string]func(*protocol.Envelope)),
		afterFunc: time.AfterFunc,
	}
}

// Handle registers the handler for one inbound message type. Must be
// called before Connect; there is one handler per type.
func (m *Manager) Handle(msgType string, fn func(*protocol.Envelope)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[msgType] = fn
}

// OnConnected registers a hook run after every successful open. The
// queue synchronizer uses it to request a full resync.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = append(m.hooks, fn)
}

// State collapses the transient connecting phase: consumers only ever
// observe connected or disconnected.
func (m *Manager) State() entity.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == entity.StateConnected {
		return entity.StateConnected
	}

	return entity.StateDisconnected
}

// Connect idempotently tears down any existing channel and pending
// reconnect timer, then opens a fresh channel. Transport errors do not
// surface to the caller: they feed the backoff schedule instead.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()

	m.gen++
	gen := m.gen

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	if m.ch != nil {
		m.ch.Close()
		m.ch = nil
	}

	m.state = entity.StateConnecting
	m.mu.Unlock()

	ch, err := m.dialer.Dial(ctx, m.cfg.Endpoint)
	if err != nil {
		m.log.Error("Cannot connect to download manager",
			slog.String("endpoint", m.cfg.Endpoint), slog.Any("error", err))
		m.handleClose(gen)

		return
	}

	m.mu.Lock()
	if gen != m.gen {
		// A newer Connect superseded this dial.
		m.mu.Unlock()
		ch.Close()

		return
	}

	m.ch = ch
	m.state = entity.StateConnected
	m.attempts = 0
	hooks := append([]func(){}, m.hooks...)
	m.mu.Unlock()

	m.log.Info("Connected to download manager", slog.String("endpoint", m.cfg.Endpoint))
	m.pres.Connected()

	for _, fn := range hooks {
		fn()
	}

	go m.readLoop(gen, ch)
}

// Send delivers one outbound message. While disconnected this is a
// user-visible failure, not a silent drop.
func (m *Manager) Send(ctx context.Context, msg any) error {
	m.mu.Lock()
	ch := m.ch
	connected := m.state == entity.StateConnected
	m.mu.Unlock()

	if !connected || ch == nil {
		m.notify.Notify("Connection Error", "Not connected to download manager")

		return common.ErrNotConnected
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	if err := ch.Write(ctx, data); err != nil {
		m.log.Error("Cannot send message", slog.Any("error", err))

		return fmt.Errorf("cannot send message: %w", err)
	}

	return nil
}

// Shutdown stops reconnecting and closes the channel.
func (m *Manager) Shutdown() {
	m.mu.Lock()

	m.gen++

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	ch := m.ch
	m.ch = nil
	m.state = entity.StateDisconnected
	m.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
}

func (m *Manager) readLoop(gen uint64, ch Channel) {
	for {
		data, err := ch.Read()
		if err != nil {
			m.mu.Lock()
			stale := gen != m.gen
			m.mu.Unlock()

			if stale {
				return
			}

			m.log.Info("Disconnected from download manager", slog.Any("error", err))
			m.handleClose(gen)

			return
		}

		m.dispatch(data)
	}
}

func (m *Manager) dispatch(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		// A bad payload never tears the connection down.
		m.log.Warn("Drop malformed message", slog.Any("error", err))

		return
	}

	m.mu.Lock()
	fn := m.handlers[env.Type]
	m.mu.Unlock()

	if fn == nil {
		m.log.Debug("Ignore message of unknown type", slog.String("type", env.Type))

		return
	}

	fn(env)
}

func (m *Manager) handleClose(gen uint64) {
	m.mu.Lock()

	if gen != m.gen {
		m.mu.Unlock()

		return
	}

	if m.ch != nil {
		m.ch.Close()
		m.ch = nil
	}

	m.state = entity.StateDisconnected

	if m.attempts < m.cfg.MaxRetries {
		m.attempts++
		delay := m.cfg.BackoffBase << m.attempts

		m.log.Info("Schedule reconnect",
			slog.Int("attempt", m.attempts), slog.Duration("delay", delay))

		m.timer = m.afterFunc(delay, func() {
			m.Connect(context.Background())
		})
	} else {
		m.log.Error("Give up reconnecting", slog.Any("error", common.ErrRetriesExhausted),
			slog.Int("attempts", m.attempts))
	}

	m.mu.Unlock()

	m.pres.Disconnected()
}
