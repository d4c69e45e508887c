package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jgivc/fetchbridge/internal/adapter/badge"
	"github.com/jgivc/fetchbridge/internal/adapter/notify"
	"github.com/jgivc/fetchbridge/internal/adapter/wsadapter"
	"github.com/jgivc/fetchbridge/internal/config"
	httphandler "github.com/jgivc/fetchbridge/internal/handler/http"
	"github.com/jgivc/fetchbridge/internal/repository/state"
	"github.com/jgivc/fetchbridge/internal/service/capture"
	"github.com/jgivc/fetchbridge/internal/service/classify"
	"github.com/jgivc/fetchbridge/internal/service/connection"
	"github.com/jgivc/fetchbridge/internal/service/metrics"
	"github.com/jgivc/fetchbridge/internal/service/queue"
	"github.com/jgivc/fetchbridge/internal/service/sniffer"
	"github.com/jgivc/fetchbridge/internal/storage/memstate"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	conn    *connection.Manager
	capt    *capture.Coordinator
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	ctx := context.Background()

	var repo capture.StateRepository
	if a.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			panic(err)
		}

		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			panic(err)
		}

		repo = state.NewStateRepository(rdb, log)
	} else {
		repo = memstate.New()
	}

	met := metrics.New()
	notifier := notify.New(nil, log)
	bdg := badge.New(log)

	dialer := wsadapter.NewDialer(wsadapter.Config{})
	a.conn = connection.NewManager(connection.Config{
		Endpoint:    a.cfg.ConnectionConfig.Endpoint,
		MaxRetries:  a.cfg.ConnectionConfig.MaxRetries,
		BackoffBase: a.cfg.ConnectionConfig.BackoffBase.Value(),
	}, dialer, notifier, presenters{bdg, met}, log)

	cls := classify.New(a.cfg.CaptureConfig.DownloadTypes, a.cfg.CaptureConfig.MediaMarkers)
	a.capt = capture.NewCoordinator(capture.Config{
		Enabled:     a.cfg.CaptureConfig.CaptureEnabled(),
		UserAgent:   a.cfg.CaptureConfig.UserAgent,
		DedupWindow: a.cfg.CaptureConfig.DedupWindow.Value(),
	}, cls, a.conn, nopHost{}, repo, bdg, notifier, log)
	a.capt.SetInterceptListener(met.Intercepted)
	a.capt.Register(a.conn)

	q := queue.NewSynchronizer(a.conn, log)
	q.SetStatsListener(met.QueueStats)
	q.Register(a.conn)

	// A fresh channel means lost deltas: ask for a full snapshot.
	a.conn.OnConnected(func() {
		if err := q.Refresh(ctx); err != nil {
			log.Error("Cannot refresh queue", slog.Any("error", err))
		}
	})

	a.capt.Start(ctx)

	// Media elements arrive as snapshots over the control plane; there
	// is no page to watch from here.
	obs := sniffer.NewObserver(nil, met, log)

	http.Handle("GET /status/{$}", httphandler.NewStatusHandler(a.conn, a.capt, bdg, q, log))
	http.Handle("GET /queue/{$}", httphandler.NewQueueHandler(q, log))
	http.Handle("POST /queue/filter/{$}", httphandler.NewQueueFilterHandler(q, log))
	http.Handle("POST /queue/refresh/{$}", httphandler.NewQueueRefreshHandler(q, log))
	http.Handle("POST /queue/clear/{$}", httphandler.NewQueueClearHandler(q, log))
	http.Handle("POST /queue/start/{$}", httphandler.NewQueueStartAllHandler(q, log))
	http.Handle("POST /queue/{id}/reorder/{$}", httphandler.NewReorderHandler(q, log))
	http.Handle("POST /queue/{id}/action/{$}", httphandler.NewActionHandler(q, log))
	http.Handle("POST /capture/toggle/{$}", httphandler.NewCaptureToggleHandler(a.capt, log))
	http.Handle("POST /download/{$}", httphandler.NewDownloadRequestHandler(a.capt, log))
	http.Handle("POST /connect/{$}", httphandler.NewConnectHandler(a.conn, log))
	http.Handle("POST /streams/{$}", httphandler.NewStreamReportHandler(obs, log))
	http.Handle("GET /streams/{$}", httphandler.NewStreamsHandler(obs, log))
	http.Handle("GET /metrics", met.Handler())

	a.srv = &http.Server{
		Addr: a.cfg.Listen,
	}

	go a.conn.Connect(ctx)

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

// Reconnect forces a fresh dial, the manual escape hatch once the
// backoff schedule gave up.
func (a *App) Reconnect() {
	a.conn.Connect(context.Background())
}

func (a *App) Toggle() {
	a.capt.Toggle(context.Background())
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.conn.Shutdown()
	a.srv.Shutdown(ctx)
}

// presenters fans connection side effects out to the badge and the
// metrics.
type presenters []connection.Presenter

func (p presenters) Connected() {
	for _, pr := range p {
		pr.Connected()
	}
}

func (p presenters) Disconnected() {
	for _, pr := range p {
		pr.Disconnected()
	}
}

// nopHost stands in for a browser host. The standalone bridge has no
// native download to cancel: events arriving over HTTP are already
// diverted by the caller.
type nopHost struct{}

func (nopHost) CancelDownload(_ context.Context, _ string) error { return nil }
func (nopHost) CancelRequest(_ context.Context, _ string) error  { return nil }
