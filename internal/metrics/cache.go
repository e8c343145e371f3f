package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reqlens/reqlens/internal/telemetry"
	"go.uber.org/zap"
)

// ErrUnavailable is returned by Get when no snapshot has ever been captured.
var ErrUnavailable = errors.New("no metrics snapshot has been captured yet")

type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

type fetchJob struct {
	result chan *Snapshot
}

// Cache keeps a recent snapshot of the backend's counters so that callers on
// the request path never block on a slow metrics endpoint. A background loop
// refreshes the cache while the backend is idle; on-demand fetches go through
// a small worker pool so callers can time out without leaking the underlying
// request. Late results from abandoned fetches still land in the cache.
type Cache struct {
	fetcher      Fetcher
	inFlight     func() int
	interval     time.Duration
	fetchTimeout time.Duration
	log          *zap.Logger

	lock     sync.RWMutex
	snapshot *Snapshot
	lastErr  error

	jobs chan *fetchJob
	done chan bool
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewCache creates a snapshot cache. inFlight reports the number of requests
// currently believed to be in flight; the background loop skips polling while
// it is nonzero. A nil inFlight disables the idleness heuristic.
func NewCache(fetcher Fetcher, inFlight func() int, log *zap.Logger, interval time.Duration, fetchTimeout time.Duration, workers int) *Cache {
	if workers <= 0 {
		workers = 2
	}

	c := &Cache{
		fetcher:      fetcher,
		inFlight:     inFlight,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		log:          log,
		jobs:         make(chan *fetchJob),
		done:         make(chan bool),
		quit:         make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}

	return c
}

func (c *Cache) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.quit:
			return
		case job := <-c.jobs:
			snapshot := c.fetch()
			if snapshot != nil {
				// non blocking: the caller may have timed out and left
				select {
				case job.result <- snapshot:
				default:
				}
			}
		}
	}
}

func (c *Cache) fetch() *Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	snapshot, err := c.fetcher.Fetch(ctx)

	c.lock.Lock()
	defer c.lock.Unlock()

	if snapshot == nil {
		telemetry.Incr("metrics.cache.fetch_error", nil, 1)
		c.lastErr = err
		return nil
	}

	// a partial parse still refreshes the cache; the error stays inspectable
	// through LastError until the next clean fetch
	c.snapshot = snapshot
	c.lastErr = err
	if err != nil {
		telemetry.Incr("metrics.cache.partial_parse", nil, 1)
		c.log.Sugar().Warnf("metrics snapshot parsed partially: %v", err)
	}

	return snapshot
}

// Listen starts the background refresh loop.
func (c *Cache) Listen() {
	ticker := time.NewTicker(c.interval)
	c.log.Info("snapshot cache started polling for metrics")

	go func() {
		for {
			select {
			case <-c.done:
				ticker.Stop()
				c.log.Info("snapshot cache stopped")
				return
			case <-ticker.C:
				if c.inFlight != nil && c.inFlight() > 0 {
					// polling mid generation would race with the counter
					// update the request is about to make
					continue
				}

				c.fetch()
			}
		}
	}()
}

// Get returns a snapshot no older than maxAge when one is cached. Otherwise,
// when attemptFresh is set, it requests a fresh fetch from the worker pool and
// waits up to timeout for it; on timeout or failure it falls back to the last
// cached snapshot regardless of age. ErrUnavailable is returned only when no
// snapshot was ever captured.
func (c *Cache) Get(maxAge time.Duration, attemptFresh bool, timeout time.Duration) (*Snapshot, error) {
	c.lock.RLock()
	cached := c.snapshot
	c.lock.RUnlock()

	if cached != nil && cached.Age(time.Now()) <= maxAge {
		telemetry.Incr("metrics.cache.hit", nil, 1)
		return cached, nil
	}

	if attemptFresh {
		job := &fetchJob{result: make(chan *Snapshot, 1)}

		select {
		case c.jobs <- job:
			select {
			case snapshot := <-job.result:
				return snapshot, nil
			case <-time.After(timeout):
				telemetry.Incr("metrics.cache.fetch_timeout", nil, 1)
			}
		default:
			// pool busy, fall through to the stale cache
			telemetry.Incr("metrics.cache.pool_busy", nil, 1)
		}
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.snapshot == nil {
		return nil, ErrUnavailable
	}

	telemetry.Incr("metrics.cache.stale_fallback", nil, 1)
	return c.snapshot, nil
}

// LastError reports the most recent fetch failure, nil after a success.
func (c *Cache) LastError() error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.lastErr
}

// Stop terminates the refresh loop and drains the worker pool. Fetches in
// flight at shutdown are abandoned. Safe to call whether or not Listen was
// ever started.
func (c *Cache) Stop() {
	c.log.Info("shutting down snapshot cache...")

	close(c.done)
	close(c.quit)
	c.wg.Wait()
}
