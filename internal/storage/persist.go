package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

// Persister stores artifacts locally and publishes them remotely.
// Either side may be absent; neither failure aborts the request.
type Persister struct {
	local      *LocalStore
	publisher  Publisher
	maxRetries int
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

type PersisterOption func(*Persister)

func WithLocalStore(s *LocalStore) PersisterOption {
	return func(p *Persister) { p.local = s }
}

func WithPublisher(pub Publisher) PersisterOption {
	return func(p *Persister) { p.publisher = pub }
}

func WithPublishRetries(n int) PersisterOption {
	return func(p *Persister) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

func WithPublishBackOff(fn func() backoff.BackOff) PersisterOption {
	return func(p *Persister) {
		if fn != nil {
			p.newBackOff = fn
		}
	}
}

func NewPersister(logger *slog.Logger, opts ...PersisterOption) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Persister{
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		logger: logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Local returns the local store, or nil when none is configured.
func (p *Persister) Local() *LocalStore { return p.local }

// Persist saves a and reports where it ended up.
func (p *Persister) Persist(ctx context.Context, a Artifact) Reference {
	rid := common.RequestIDFromContext(ctx)
	ref := Reference{Kind: a.Kind, Name: a.Name, Remote: p.publisher != nil}

	if p.local != nil {
		name, err := p.local.Save(ctx, a)
		if err != nil {
			p.logger.Warn("storage.local.failed", "req_id", rid, "name", a.Name, "error", err)
		} else {
			ref.File = name
		}
	}

	if p.publisher == nil {
		return ref
	}

	start := time.Now()
	attempts := 0
	op := func() error {
		attempts++
		url, err := p.publisher.Publish(ctx, a.Key(), a)
		if err != nil {
			if permanentPublishError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		ref.URL = url
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		p.logger.Error("storage.publish.failed",
			"req_id", rid,
			"key", a.Key(),
			"attempts", attempts,
			"error", common.PublishError("publish "+a.Key(), err),
		)
		return ref
	}
	p.logger.Info("storage.publish.ok",
		"req_id", rid,
		"key", a.Key(),
		"attempts", attempts,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ref
}
