package prefs

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type mirrorJob struct {
	key  string
	data []byte
}

// Mirror writes to Primary synchronously and copies every write to
// Secondary in the background. A key missing from Primary is looked up in
// Secondary and, when found there, copied back.
type Mirror struct {
	Primary   Store
	Secondary Store

	log     *zap.SugaredLogger
	q       chan mirrorJob
	timeout time.Duration

	// readTimeout bounds Secondary lookups, which run on the caller's
	// goroutine.
	readTimeout time.Duration
}

// NewMirror builds a Mirror. Run must be started to drain secondary writes.
func NewMirror(primary, secondary Store, log *zap.SugaredLogger) *Mirror {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Mirror{
		Primary:   primary,
		Secondary: secondary,
		log:       log,
		q:         make(chan mirrorJob, 16),
		timeout:   10 * time.Second,

		readTimeout: 2 * time.Second,
	}
}

func (m *Mirror) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := m.Primary.Load(ctx, key)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return b, err
	}
	rctx, cancel := context.WithTimeout(ctx, m.readTimeout)
	defer cancel()
	b, serr := m.Secondary.Load(rctx, key)
	if serr != nil {
		if !errors.Is(serr, ErrNotFound) {
			m.log.Warnw("secondary load failed", "key", key, "err", serr)
		}
		return nil, ErrNotFound
	}
	if err := m.Primary.Save(ctx, key, b); err != nil {
		m.log.Warnw("copy back to primary failed", "key", key, "err", err)
	}
	return b, nil
}

func (m *Mirror) Save(ctx context.Context, key string, data []byte) error {
	if err := m.Primary.Save(ctx, key, data); err != nil {
		return err
	}
	select {
	case m.q <- mirrorJob{key: key, data: append([]byte(nil), data...)}:
	default:
		m.log.Warnw("mirror queue full, dropping", "key", key)
	}
	return nil
}

// Run drains queued writes to Secondary until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.q:
			wctx, cancel := context.WithTimeout(ctx, m.timeout)
			if err := m.Secondary.Save(wctx, j.key, j.data); err != nil {
				m.log.Warnw("mirror write failed", "key", j.key, "err", err)
			}
			cancel()
		}
	}
}

// Pending returns the number of queued secondary writes.
func (m *Mirror) Pending() int { return len(m.q) }
