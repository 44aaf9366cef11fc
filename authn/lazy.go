package authn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// InitFunc builds the provider client.
type InitFunc func(ctx context.Context) (Verifier, error)

// Lazy builds the provider client on first use. Concurrent first callers
// share a single initialization attempt and all observe the same client or
// the same failure for the life of the process.
type Lazy struct {
	init   InitFunc
	logger *zap.Logger

	once     sync.Once
	done     atomic.Bool
	verifier Verifier
	err      error
}

// NewLazy creates a VerifierSource that runs init at most once
func NewLazy(init InitFunc, logger *zap.Logger) *Lazy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lazy{init: init, logger: logger}
}

// Verifier returns the provider client, initializing it on first call.
// Initialization is detached from the caller's cancellation so an aborted
// first request cannot poison the shared client.
func (l *Lazy) Verifier(ctx context.Context) (Verifier, error) {
	l.once.Do(func() {
		defer l.done.Store(true)
		defer func() {
			if r := recover(); r != nil {
				l.verifier = nil
				l.err = NewConfigError(fmt.Errorf("identity provider initialization panicked: %v", r))
				l.logger.Error("identity provider initialization panicked", zap.Any("panic", r))
			}
		}()

		v, err := l.init(context.WithoutCancel(ctx))
		switch {
		case err != nil:
			l.err = NewConfigError(err)
			l.logger.Error("identity provider initialization failed", zap.Error(err))
		case v == nil:
			l.err = NewConfigError(ErrNoVerifier)
			l.logger.Error("identity provider initialization returned no client")
		default:
			l.verifier = v
			l.logger.Info("identity provider initialized")
		}
	})
	return l.verifier, l.err
}

// State reports whether initialization has run and how it ended.
func (l *Lazy) State() ProviderState {
	if !l.done.Load() {
		return ProviderPending
	}
	if l.err != nil {
		return ProviderFailed
	}
	return ProviderReady
}
