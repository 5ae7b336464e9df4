// Package dispatch delivers engagement events off the request path.
//
// The dispatcher:
//  1. Buffers accepted events in a bounded queue
//  2. Drains the queue with a fixed pool of delivery workers
//  3. Counts delivered, failed and dropped events
//
// Events are best effort. A full queue drops the event and says so instead
// of blocking a committed task update.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/domain"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("dispatcher closed")

// Config controls dispatcher behavior.
type Config struct {
	MaxConcurrent int           // Delivery workers (default: 4)
	QueueSize     int           // Buffered events awaiting a worker (default: 256)
	Timeout       time.Duration // Per-delivery timeout (default: 5s)
}

// DefaultConfig returns safe dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		QueueSize:     256,
		Timeout:       5 * time.Second,
	}
}

// job carries the caller's context values without its cancellation.
type job struct {
	ctx   context.Context
	event domain.EngagementEvent
}

// Dispatcher is a domain.Publisher that hands events to next in the
// background.
type Dispatcher struct {
	mu        sync.RWMutex
	config    Config
	next      domain.Publisher
	log       *log.Logger
	queue     chan job
	wg        sync.WaitGroup
	closed    bool
	active    int
	delivered int64
	failed    int64
	dropped   int64
}

var _ domain.Publisher = (*Dispatcher)(nil)

// New creates a dispatcher in front of next and starts its workers.
func New(cfg Config, next domain.Publisher, logger *log.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	d := &Dispatcher{
		config: cfg,
		next:   next,
		log:    logger,
		queue:  make(chan job, cfg.QueueSize),
	}
	d.wg.Add(cfg.MaxConcurrent)
	for i := 0; i < cfg.MaxConcurrent; i++ {
		go d.worker()
	}
	return d
}

// Publish queues e for delivery and returns immediately. It fails only when
// the dispatcher is closed or the queue is full.
func (d *Dispatcher) Publish(ctx context.Context, e domain.EngagementEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), event: e}:
		return nil
	default:
		d.dropped++
		return fmt.Errorf("dispatcher queue full (%d pending)", d.config.QueueSize)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	d.mu.Lock()
	d.active++
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(j.ctx, d.config.Timeout)
	err := d.next.Publish(ctx, j.event)
	cancel()

	d.mu.Lock()
	d.active--
	if err != nil {
		d.failed++
	} else {
		d.delivered++
	}
	d.mu.Unlock()

	if err != nil {
		d.log.WithError(err).WithFields(log.Fields{
			"type": j.event.Type,
			"user": j.event.UserID,
		}).Warn("engagement event delivery failed")
	}
}

// Close stops accepting events and waits until the queue drains or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Workers   int   `json:"workers"`
	QueueSize int   `json:"queue_size"`
}

// Stats returns current dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Stats{
		Active:    d.active,
		Queued:    len(d.queue),
		Delivered: d.delivered,
		Failed:    d.failed,
		Dropped:   d.dropped,
		Workers:   d.config.MaxConcurrent,
		QueueSize: d.config.QueueSize,
	}
}
