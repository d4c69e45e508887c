package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jgivc/fetchbridge/internal/adapter/badge"
	"github.com/jgivc/fetchbridge/internal/common"
	"github.com/jgivc/fetchbridge/internal/entity"
	"github.com/jgivc/fetchbridge/internal/service/sniffer"
)

type QueueService interface {
	Current() []entity.DownloadRecord
	Projection(f entity.QueueFilter) []entity.DownloadRecord
	SetFilter(f entity.QueueFilter) error
	Stats() entity.QueueStats
	Refresh(ctx context.Context) error
	ClearCompleted(ctx context.Context) error
	StartAll(ctx context.Context) error
	Reorder(ctx context.Context, id string, newPosition int) error
	Action(ctx context.Context, action, id string) error
}

type CaptureService interface {
	Enabled() bool
	Toggle(ctx context.Context) bool
	OnContextMenu(ctx context.Context, linkURL, pageURL string) error
}

type ConnectionService interface {
	State() entity.ConnectionState
	Connect(ctx context.Context)
}

type BadgeService interface {
	State() badge.State
}

type StreamService interface {
	Report(s sniffer.ElementSnapshot)
	Streams() []entity.StreamRecord
}

type statusResponse struct {
	Connection string            `json:"connection"`
	Capture    bool              `json:"capture"`
	Badge      badge.State       `json:"badge"`
	Stats      entity.QueueStats `json:"stats"`
}

func NewStatusHandler(conn ConnectionService, capt CaptureService, bdg BadgeService, q QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StatusHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Connection: conn.State().String(),
			Capture:    capt.Enabled(),
			Badge:      bdg.State(),
			Stats:      q.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

type queueResponse struct {
	Downloads []entity.DownloadRecord `json:"downloads"`
	Stats     entity.QueueStats       `json:"stats"`
	Filter    entity.QueueFilter      `json:"filter"`
}

func NewQueueHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "QueueHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		downloads := srv.Current()
		filter := entity.FilterAll

		if raw := r.URL.Query().Get("filter"); raw != "" {
			f := entity.QueueFilter(raw)
			if !f.Valid() {
				http.Error(w, "Bad request", http.StatusBadRequest)

				return
			}

			filter = f
			downloads = srv.Projection(f)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(queueResponse{
			Downloads: downloads,
			Stats:     srv.Stats(),
			Filter:    filter,
		}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func NewQueueFilterHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "QueueFilterHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Filter entity.QueueFilter `json:"filter"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := srv.SetFilter(req.Filter); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		w.Write([]byte("done"))
	}
}

func NewQueueRefreshHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "QueueRefreshHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		if err := srv.Refresh(r.Context()); err != nil {
			writeSendError(w, err)

			return
		}

		w.Write([]byte("done"))
	}
}

func NewQueueClearHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "QueueClearHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		if err := srv.ClearCompleted(r.Context()); err != nil {
			writeSendError(w, err)

			return
		}

		w.Write([]byte("done"))
	}
}

func NewQueueStartAllHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "QueueStartAllHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		if err := srv.StartAll(r.Context()); err != nil {
			writeSendError(w, err)

			return
		}

		w.Write([]byte("done"))
	}
}

func NewReorderHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ReorderHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		var req struct {
			Position int `json:"position"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := srv.Reorder(r.Context(), id, req.Position); err != nil {
			switch {
			case errors.Is(err, common.ErrEmptyDownloadID):
				http.Error(w, "Bad request", http.StatusBadRequest)
			case errors.Is(err, common.ErrNotConnected):
				http.Error(w, "Not connected to download manager", http.StatusServiceUnavailable)
			case strings.Contains(err.Error(), "unknown id"):
				http.Error(w, "Cannot find download", http.StatusNotFound)
			default:
				http.Error(w, "Cannot reorder download", http.StatusInternalServerError)
			}

			return
		}

		log.Info("Reorder download", slog.String("id", id), slog.Int("position", req.Position))

		w.Write([]byte("done"))
	}
}

func NewActionHandler(srv QueueService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ActionHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		var req struct {
			Action string `json:"action"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := srv.Action(r.Context(), req.Action, id); err != nil {
			switch {
			case errors.Is(err, common.ErrEmptyDownloadID), errors.Is(err, common.ErrEmptyActionName):
				http.Error(w, "Bad request", http.StatusBadRequest)
			case errors.Is(err, common.ErrNotConnected):
				http.Error(w, "Not connected to download manager", http.StatusServiceUnavailable)
			default:
				http.Error(w, "Cannot run download action", http.StatusInternalServerError)
			}

			return
		}

		log.Info("Download action", slog.String("id", id), slog.String("action", req.Action))

		w.Write([]byte("done"))
	}
}

func NewCaptureToggleHandler(srv CaptureService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CaptureToggleHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		enabled := srv.Toggle(r.Context())

		log.Info("Capture toggled", slog.Bool("enabled", enabled))

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]bool{"enabled": enabled}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// NewDownloadRequestHandler forwards one explicit download request to
// the manager. This is the context-menu path: it works regardless of
// the capture flag.
func NewDownloadRequestHandler(srv CaptureService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DownloadRequestHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL      string `json:"url"`
			Referrer string `json:"referrer"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := srv.OnContextMenu(r.Context(), req.URL, req.Referrer); err != nil {
			writeSendError(w, err)

			return
		}

		log.Info("Download request", slog.String("url", req.URL))

		w.Write([]byte("done"))
	}
}

func NewConnectHandler(srv ConnectionService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ConnectHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		go srv.Connect(context.Background())

		log.Info("Connect requested")

		w.Write([]byte("done"))
	}
}

// NewStreamReportHandler ingests one media element snapshot from an
// embedding host that watches the page itself.
func NewStreamReportHandler(srv StreamService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StreamReportHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var s sniffer.ElementSnapshot

		if err := json.NewDecoder(r.Body).Decode(&s); err != nil || s.ID == "" {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		srv.Report(s)

		log.Debug("Stream report", slog.String("id", s.ID))

		w.Write([]byte("done"))
	}
}

func NewStreamsHandler(srv StreamService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StreamsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string][]entity.StreamRecord{
			"streams": srv.Streams(),
		}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotConnected):
		http.Error(w, "Not connected to download manager", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Cannot send message", http.StatusInternalServerError)
	}
}
