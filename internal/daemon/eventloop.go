package daemon

import (
	"context"
	"sync"
	"time"
)

// DefaultProbeInterval is how often the event loop probes storage and cache.
const DefaultProbeInterval = 30 * time.Second

// ComponentHealth is the last probe result of a dependency
type ComponentHealth struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// EventLoop runs periodic maintenance: dependency probes and run-state logging.
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration

	mu      sync.RWMutex
	storage ComponentHealth
	cache   ComponentHealth
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: DefaultProbeInterval,
		storage:  ComponentHealth{Healthy: true},
		cache:    ComponentHealth{Healthy: true},
	}
}

// Run runs the event loop until ctx is done
func (e *EventLoop) Run(ctx context.Context) {
	log := e.daemon.logger.Zerolog()
	log.Info().Dur("interval", e.interval).Msg("Event loop started")

	e.processTasks(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks(ctx)
		}
	}
}

// processTasks probes dependencies and logs aggregation state
func (e *EventLoop) processTasks(ctx context.Context) {
	log := e.daemon.logger.Zerolog()

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	storage := probe(probeCtx, e.daemon.backend)
	cacheHealth := probe(probeCtx, e.daemon.cache)

	e.mu.Lock()
	prevStorage, prevCache := e.storage.Healthy, e.cache.Healthy
	e.storage, e.cache = storage, cacheHealth
	e.mu.Unlock()

	if !storage.Healthy && ctx.Err() == nil {
		log.Warn().Str("error", storage.Error).Msg("Storage probe failed")
	} else if storage.Healthy && !prevStorage {
		log.Info().Msg("Storage recovered")
	}
	if !cacheHealth.Healthy && ctx.Err() == nil {
		log.Warn().Str("error", cacheHealth.Error).Msg("Cache probe failed")
	} else if cacheHealth.Healthy && !prevCache {
		log.Info().Msg("Cache recovered")
	}

	state := e.daemon.job.State()
	if state.ConsecutiveErrors > 0 {
		log.Warn().
			Int("consecutive_errors", state.ConsecutiveErrors).
			Str("last_error", state.LastError).
			Msg("Aggregation is failing")
	}
}

func probe(ctx context.Context, component interface{}) ComponentHealth {
	h := ComponentHealth{Healthy: true, CheckedAt: time.Now()}
	if err := ping(ctx, component); err != nil {
		h.Healthy = false
		h.Error = err.Error()
	}
	return h
}

// Storage returns the last storage probe result
func (e *EventLoop) Storage() ComponentHealth {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.storage
}

// Cache returns the last cache probe result
func (e *EventLoop) Cache() ComponentHealth {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache
}
