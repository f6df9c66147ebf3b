package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/urgentsync/pkg/cerr"
	"github.com/kazz187/urgentsync/pkg/storage"
)

const leasesPrefix = "leases"

var (
	// ErrHeld means another holder owns an unexpired lease.
	ErrHeld = errors.New("lease is held by another run")
	// ErrLost means the stored record no longer names this holder.
	ErrLost = errors.New("lease was taken over by another run")
)

// Record is what is stored for a held lease.
type Record struct {
	Holder     string    `yaml:"holder"`
	Owner      string    `yaml:"owner"`
	AcquiredAt time.Time `yaml:"acquired_at"`
	ExpiresAt  time.Time `yaml:"expires_at"`
}

// Manager hands out one lease per channel. Within the process a semaphore
// serializes holders; across processes the stored record does, as far as the
// storage's read-after-write consistency allows.
type Manager struct {
	storage storage.Storage
	path    string
	ttl     time.Duration
	poll    time.Duration
	renew   time.Duration
	now     func() time.Time
	sem     chan struct{}
}

type Option func(*Manager)

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.poll = d }
}

// WithRenewInterval sets how often KeepAlive extends a held lease. The
// default is a third of the TTL.
func WithRenewInterval(d time.Duration) Option {
	return func(m *Manager) { m.renew = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(s storage.Storage, name string, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		storage: s,
		path:    fmt.Sprintf("%s/%s.yaml", leasesPrefix, name),
		ttl:     ttl,
		poll:    500 * time.Millisecond,
		renew:   ttl / 3,
		now:     time.Now,
		sem:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.renew <= 0 {
		m.renew = time.Second
	}
	return m
}

// Lease is a held lease. Release it when done.
type Lease struct {
	m      *Manager
	holder string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (l *Lease) Holder() string {
	return l.holder
}

// TryAcquire takes the lease or fails with ErrHeld without waiting.
// owner is recorded for operators.
func (m *Manager) TryAcquire(ctx context.Context, owner string) (*Lease, error) {
	select {
	case m.sem <- struct{}{}:
	default:
		return nil, ErrHeld
	}
	l, err := m.claim(ctx, owner)
	if err != nil {
		<-m.sem
		return nil, err
	}
	return l, nil
}

// Acquire waits up to wait for the lease. Running out of time is an Aborted
// error.
func (m *Manager) Acquire(ctx context.Context, owner string, wait time.Duration) (*Lease, error) {
	deadline := m.now().Add(wait)
	for {
		l, err := m.TryAcquire(ctx, owner)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrHeld) {
			return nil, err
		}
		remaining := deadline.Sub(m.now())
		if remaining <= 0 {
			return nil, cerr.NewError(cerr.Aborted, "another sync is in progress", err)
		}
		t := time.NewTimer(min(m.poll, remaining))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (m *Manager) claim(ctx context.Context, owner string) (*Lease, error) {
	current, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if current != nil && now.Before(current.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s (%s) until %s", ErrHeld, current.Holder, current.Owner, current.ExpiresAt.Format(time.RFC3339))
	}
	if current != nil {
		slog.WarnContext(ctx, "taking over expired lease", "holder", current.Holder, "owner", current.Owner, "expired_at", current.ExpiresAt)
	}
	rec := &Record{
		Holder:     ulid.Make().String(),
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal lease: %w", err))
	}
	if err := m.storage.Write(ctx, m.path, data); err != nil {
		return nil, cerr.WrapStorageError("write", "lease", err)
	}
	// Another process may have written in between; the last writer wins.
	stored, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.Holder != rec.Holder {
		return nil, ErrHeld
	}
	return &Lease{m: m, holder: rec.Holder, stop: make(chan struct{})}, nil
}

func (m *Manager) read(ctx context.Context) (*Record, error) {
	data, err := m.storage.Read(ctx, m.path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.WrapStorageError("read", "lease", err)
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal lease: %w", err))
	}
	return &rec, nil
}

// Current returns the stored record, or nil when no lease was ever taken or
// the last one was released.
func (m *Manager) Current(ctx context.Context) (*Record, error) {
	return m.read(ctx)
}

// Extend pushes the expiry one TTL past now. It fails with ErrLost, as an
// Aborted error, once the record names another holder.
func (l *Lease) Extend(ctx context.Context) error {
	current, err := l.m.read(ctx)
	if err != nil {
		return err
	}
	if current == nil || current.Holder != l.holder {
		return cerr.NewError(cerr.Aborted, "lease lost to another run", ErrLost)
	}
	current.ExpiresAt = l.m.now().Add(l.m.ttl)
	data, err := yaml.Marshal(current)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal lease: %w", err))
	}
	if err := l.m.storage.Write(ctx, l.m.path, data); err != nil {
		return cerr.WrapStorageError("write", "lease", err)
	}
	return nil
}

// KeepAlive extends the lease every renew interval until Release or until ctx
// is done. The returned context is cancelled with the ErrLost error as its
// cause when the lease is taken over. A failed write is retried on the next
// tick. Call it at most once per lease.
func (l *Lease) KeepAlive(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancelCause(ctx)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		defer cancel(nil)
		t := time.NewTicker(l.m.renew)
		defer t.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-runCtx.Done():
				return
			case <-t.C:
			}
			err := l.Extend(context.WithoutCancel(runCtx))
			if errors.Is(err, ErrLost) {
				slog.WarnContext(runCtx, "lease lost while running", "holder", l.holder)
				cancel(err)
				return
			}
			if err != nil {
				slog.WarnContext(runCtx, "failed to extend lease", "holder", l.holder, "error", err)
			}
		}
	}()
	return runCtx
}

// Release gives the lease back. The stored record is removed only if it is
// still ours; an expired lease taken over by someone else is left alone.
func (l *Lease) Release(ctx context.Context) error {
	defer func() { <-l.m.sem }()
	l.stopOnce.Do(func() { close(l.stop) })
	if l.done != nil {
		<-l.done
	}
	current, err := l.m.read(ctx)
	if err != nil {
		return err
	}
	if current == nil || current.Holder != l.holder {
		return nil
	}
	if err := l.m.storage.Delete(ctx, l.m.path); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return cerr.WrapStorageError("delete", "lease", err)
	}
	return nil
}
