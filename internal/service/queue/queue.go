/*
Package queue keeps a client-side mirror of the external manager's
download queue. Deltas arrive as protocol messages and may be
incomplete or out of order: an update for an unknown id is an implicit
add, a remove for an unknown id is a no-op. Counters are always derived
by a full scan so they cannot drift.
*/
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jgivc/fetchbridge/internal/common"
	"github.com/jgivc/fetchbridge/internal/entity"
	"github.com/jgivc/fetchbridge/internal/protocol"
)

type Sender interface {
	Send(ctx context.Context, msg any) error
}

type Dispatcher interface {
	Handle(msgType string, fn func(*protocol.Envelope))
}

type Synchronizer struct {
	mu      sync.Mutex
	records map[string]*entity.DownloadRecord
	order   []string
	filter  entity.QueueFilter
	onStats func(entity.QueueStats)

	conn Sender
	log  *slog.Logger
}

func NewSynchronizer(conn Sender, log *slog.Logger) *Synchronizer {
	return &Synchronizer{
		records: make(map[string]*entity.DownloadRecord),
		order:   make([]string, 0),
		filter:  entity.FilterAll,
		conn:    conn,
		log:     log.With(slog.String("item", "QueueSynchronizer")),
	}
}

// Register subscribes the synchronizer to the queue delta messages.
func (s *Synchronizer) Register(d Dispatcher) {
	d.Handle(protocol.TypeDownloadAdded, s.onAdded)
	d.Handle(protocol.TypeDownloadUpdate, s.onUpdate)
	d.Handle(protocol.TypeDownloadRemoved, s.onRemoved)
	d.Handle(protocol.TypeQueueUpdate, s.onQueueUpdate)
}

// SetStatsListener installs a callback invoked with fresh counters
// after every model mutation and on remote stats pushes.
func (s *Synchronizer) SetStatsListener(fn func(entity.QueueStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onStats = fn
}

func (s *Synchronizer) onAdded(env *protocol.Envelope) {
	if env.Download == nil {
		s.log.Warn("Drop download_added without payload")

		return
	}

	s.Add(*env.Download)
}

func (s *Synchronizer) onUpdate(env *protocol.Envelope) {
	if env.Download == nil {
		s.log.Warn("Drop download_update without payload")

		return
	}

	s.Update(*env.Download)
}

func (s *Synchronizer) onRemoved(env *protocol.Envelope) {
	if env.DownloadID == "" {
		s.log.Warn("Drop download_removed without id")

		return
	}

	s.Remove(env.DownloadID)
}

func (s *Synchronizer) onQueueUpdate(env *protocol.Envelope) {
	if env.Stats == nil {
		s.log.Warn("Drop queue_update without stats")

		return
	}

	// Remote stats refresh the display only. The local model keeps
	// deriving its own counters by scanning.
	s.mu.Lock()
	fn := s.onStats
	s.mu.Unlock()

	if fn != nil {
		fn(*env.Stats)
	}
}

// Add inserts a record at the end of the current order. A second add
// for a known id behaves exactly like an update.
func (s *Synchronizer) Add(rec entity.DownloadRecord) {
	if rec.ID == "" {
		s.log.Warn("Drop record without id")

		return
	}

	s.mu.Lock()

	if existing, ok := s.records[rec.ID]; ok {
		merge(existing, &rec)
	} else {
		r := rec
		s.records[rec.ID] = &r
		s.order = append(s.order, rec.ID)
	}

	fn, st := s.onStats, s.statsLocked()
	s.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

// Update merges fields into the record with the same id. An unknown id
// is an implicit add: deltas can outrun the add they belong to.
func (s *Synchronizer) Update(rec entity.DownloadRecord) {
	s.Add(rec)
}

// Remove deletes the record if present.
func (s *Synchronizer) Remove(id string) {
	s.mu.Lock()

	_, ok := s.records[id]
	if ok {
		delete(s.records, id)
		s.order = removeID(s.order, id)
	}

	fn, st := s.onStats, s.statsLocked()
	s.mu.Unlock()

	if ok && fn != nil {
		fn(st)
	}
}

// Reorder moves id to newPosition in the display order, clamped to the
// valid range, and asks the manager to persist the move. The manager
// stays the ordering authority: the next full refresh wins.
func (s *Synchronizer) Reorder(ctx context.Context, id string, newPosition int) error {
	if id == "" {
		return common.ErrEmptyDownloadID
	}

	s.mu.Lock()

	if _, ok := s.records[id]; !ok {
		s.mu.Unlock()

		return fmt.Errorf("cannot reorder download %s: unknown id", id)
	}

	s.order = removeID(s.order, id)

	pos := newPosition
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.order) {
		pos = len(s.order)
	}

	s.order = append(s.order, "")
	copy(s.order[pos+1:], s.order[pos:])
	s.order[pos] = id

	s.mu.Unlock()

	return s.conn.Send(ctx, protocol.NewReorderQueue(id, newPosition))
}

// Projection returns the records whose status matches the filter,
// preserving the model order.
func (s *Synchronizer) Projection(f entity.QueueFilter) []entity.DownloadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.DownloadRecord, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if f.Match(rec.Status) {
			out = append(out, *rec)
		}
	}

	return out
}

// Current returns the projection of the active filter.
func (s *Synchronizer) Current() []entity.DownloadRecord {
	s.mu.Lock()
	f := s.filter
	s.mu.Unlock()

	return s.Projection(f)
}

func (s *Synchronizer) SetFilter(f entity.QueueFilter) error {
	if !f.Valid() {
		return fmt.Errorf("invalid queue filter %q", f)
	}

	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()

	return nil
}

func (s *Synchronizer) Filter() entity.QueueFilter {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filter
}

// Stats recomputes the counters with a full scan.
func (s *Synchronizer) Stats() entity.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.statsLocked()
}

func (s *Synchronizer) Get(id string) (entity.DownloadRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return entity.DownloadRecord{}, false
	}

	return *rec, true
}

func (s *Synchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}

// Refresh requests a full queue snapshot. This is the recovery path
// after a reconnect: deltas lost while the channel was down are never
// replayed.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.conn.Send(ctx, protocol.NewGetQueue())
}

// ClearCompleted asks the manager to drop completed entries. The local
// model only changes once the manager confirms with removed deltas.
func (s *Synchronizer) ClearCompleted(ctx context.Context) error {
	return s.conn.Send(ctx, protocol.NewClearCompleted())
}

// StartAll asks the manager to resume every paused or queued entry.
func (s *Synchronizer) StartAll(ctx context.Context) error {
	return s.conn.Send(ctx, protocol.NewStartAll())
}

// Action requests a state transition (pause, resume, cancel, ...) on
// one entry.
func (s *Synchronizer) Action(ctx context.Context, action, id string) error {
	if action == "" {
		return common.ErrEmptyActionName
	}

	if id == "" {
		return common.ErrEmptyDownloadID
	}

	return s.conn.Send(ctx, protocol.NewDownloadAction(action, id))
}

func (s *Synchronizer) statsLocked() entity.QueueStats {
	var st entity.QueueStats
	for _, rec := range s.records {
		switch rec.Status {
		case entity.StatusDownloading:
			st.Active++
		case entity.StatusQueued:
			st.Waiting++
		case entity.StatusCompleted:
			st.Completed++
		}
	}

	return st
}

// merge folds an incremental delta into an existing record. Numeric
// fields always apply; string fields apply only when non-empty, so a
// sparse delta never blanks a known filename or url.
func merge(dst, src *entity.DownloadRecord) {
	if src.URL != "" {
		dst.URL = src.URL
	}

	if src.Filename != "" {
		dst.Filename = src.Filename
	}

	if src.Status != "" && src.Status.Valid() {
		dst.Status = src.Status
	}

	dst.TotalSize = src.TotalSize
	dst.Progress = src.Progress
	dst.Speed = src.Speed
	dst.ETA = src.ETA
}

func removeID(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}

	return order
}
