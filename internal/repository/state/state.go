package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jgivc/fetchbridge/internal/util"
	"github.com/redis/go-redis/v9"
)

const (
	KeyCapture = "fb:capture" // STRING. "0"/"1", the persisted capture flag.
	KeySeen    = "fb:seen"    // STRING per url hash. Set via SETNX with EX, cuts off duplicate requests.

	KeySeparator = ":"

	valueOn  = "1"
	valueOff = "0"
)

// stateRepository keeps the small process-wide bridge state in redis
// so the capture flag survives restarts and the seen-URL window is
// shared between bridge instances.
type stateRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewStateRepository(cl *redis.Client, log *slog.Logger) *stateRepository {
	return &stateRepository{
		cl:  cl,
		log: log.With(slog.String("item", "StateRepository")),
	}
}

func (r *stateRepository) LoadCapture(ctx context.Context) (bool, bool, error) {
	val, err := r.cl.Get(ctx, KeyCapture).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}

		return false, false, fmt.Errorf("cannot load capture flag: %w", err)
	}

	return val == valueOn, true, nil
}

func (r *stateRepository) SaveCapture(ctx context.Context, enabled bool) error {
	val := valueOff
	if enabled {
		val = valueOn
	}

	if _, err := r.cl.Set(ctx, KeyCapture, val, 0).Result(); err != nil {
		return fmt.Errorf("cannot save capture flag: %w", err)
	}

	return nil
}

// MarkSeen reports whether the url enters the window for the first
// time. SETNX with a TTL makes the check atomic across instances.
func (r *stateRepository) MarkSeen(ctx context.Context, url string, window time.Duration) (bool, error) {
	first, err := r.cl.SetNX(ctx, getKey(KeySeen, util.HashURL(url)), valueOn, window).Result()
	if err != nil {
		return false, fmt.Errorf("cannot mark url as seen: %w", err)
	}

	return first, nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
