package password

import (
	"context"
	"runtime"
)

// Pool bounds concurrent argon2 derivations. Hashing is deliberately
// memory- and CPU-expensive, so a burst of login attempts would otherwise
// monopolize the scheduler; the semaphore caps in-flight derivations and
// queues the rest, honoring context cancellation while waiting.
type Pool struct {
	hasher *Argon2
	sem    chan struct{}
}

// NewPool wraps hasher with a concurrency bound. workers <= 0 defaults to
// GOMAXPROCS.
func NewPool(hasher *Argon2, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		hasher: hasher,
		sem:    make(chan struct{}, workers),
	}
}

func (p *Pool) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() {
	<-p.sem
}

// Hash derives a hash on a bounded slot.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.release()

	return p.hasher.Hash(password)
}

// Verify compares on a bounded slot.
func (p *Pool) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := p.acquire(ctx); err != nil {
		return false, err
	}
	defer p.release()

	return p.hasher.Verify(password, encodedHash)
}

// NeedsUpgrade is parse-only and does not consume a slot.
func (p *Pool) NeedsUpgrade(encodedHash string) (bool, error) {
	return p.hasher.NeedsUpgrade(encodedHash)
}
