// Package schedule decides when each tenant mailbox is polled. A registry
// holds one poller per enabled mailbox config and fires the due ones on a
// fixed-resolution clock.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/store"
)

// ConfigLister loads the enabled mailbox configs across tenants.
type ConfigLister interface {
	ListEnabledMailboxConfigs(ctx context.Context) ([]*store.MailboxConfig, error)
}

// Poller runs one poll cycle. Implemented by mailbox.Poller.
type Poller interface {
	Poll(ctx context.Context) error
}

// PollerFactory builds a poller for one mailbox config.
type PollerFactory func(cfg *store.MailboxConfig) Poller

// Config tunes the registry clock.
type Config struct {
	TickInterval    time.Duration // resolution of the scheduling clock
	DefaultInterval time.Duration // used when a config carries none
}

// MailboxStatus is the externally visible state of one scheduled mailbox.
type MailboxStatus struct {
	MailboxID uuid.UUID `json:"mailbox_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Host      string    `json:"host"`
	Interval  string    `json:"interval"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	Running   bool      `json:"running"`
	LastError string    `json:"last_error,omitempty"`
}

type entry struct {
	cfg      *store.MailboxConfig
	poller   Poller
	interval time.Duration
	lastRun  time.Time
	nextRun  time.Time
	running  bool
	lastErr  string
}

// Registry schedules mailbox polls.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry

	configs ConfigLister
	factory PollerFactory
	config  Config
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. Call ReloadAll to populate it.
func NewRegistry(configs ConfigLister, factory PollerFactory, cfg Config, logger *zap.Logger) *Registry {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 5 * time.Minute
	}

	return &Registry{
		entries: make(map[uuid.UUID]*entry),
		configs: configs,
		factory: factory,
		config:  cfg,
		logger:  logger,
	}
}

// ReloadAll replaces the schedule with the current set of enabled configs.
// Existing entries keep their timing state so a reload does not trigger a
// poll stampede; removed configs are dropped, new ones start immediately.
func (r *Registry) ReloadAll(ctx context.Context) error {
	configs, err := r.configs.ListEnabledMailboxConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list mailbox configs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := make(map[uuid.UUID]*entry, len(configs))
	for _, cfg := range configs {
		if existing, ok := r.entries[cfg.ID]; ok {
			existing.cfg = cfg
			existing.interval = r.intervalFor(cfg)
			fresh[cfg.ID] = existing
			continue
		}
		fresh[cfg.ID] = r.newEntry(cfg)
	}

	for id := range r.entries {
		if _, kept := fresh[id]; !kept {
			r.logger.Info("mailbox unscheduled",
				zap.String("mailbox_id", id.String()),
			)
		}
	}

	r.entries = fresh
	r.logger.Info("schedule reloaded", zap.Int("mailboxes", len(fresh)))
	return nil
}

// Register adds or replaces one mailbox in the schedule.
func (r *Registry) Register(cfg *store.MailboxConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[cfg.ID] = r.newEntry(cfg)
}

// Unregister removes a mailbox from the schedule. A poll already in flight
// finishes.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *Registry) newEntry(cfg *store.MailboxConfig) *entry {
	return &entry{
		cfg:      cfg,
		poller:   r.factory(cfg),
		interval: r.intervalFor(cfg),
		nextRun:  time.Now(), // first poll on the next tick
	}
}

func (r *Registry) intervalFor(cfg *store.MailboxConfig) time.Duration {
	if iv := cfg.PollInterval(); iv > 0 {
		return iv
	}
	return r.config.DefaultInterval
}

// Run drives the clock until the context is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick fires every due mailbox. Polls run concurrently, one in flight per
// mailbox; a mailbox still polling when its next slot arrives skips the slot.
func (r *Registry) Tick(ctx context.Context) {
	now := time.Now()

	r.mu.Lock()
	var due []*entry
	for _, e := range r.entries {
		if e.running || now.Before(e.nextRun) {
			continue
		}
		e.running = true
		e.lastRun = now
		e.nextRun = now.Add(e.interval)
		due = append(due, e)
	}
	r.mu.Unlock()

	for _, e := range due {
		go r.poll(ctx, e)
	}
}

func (r *Registry) poll(ctx context.Context, e *entry) {
	err := e.poller.Poll(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	e.running = false
	if err != nil {
		e.lastErr = err.Error()
	} else {
		e.lastErr = ""
	}
}

// Status snapshots the schedule for the admin API.
func (r *Registry) Status() []MailboxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]MailboxStatus, 0, len(r.entries))
	for _, e := range r.entries {
		statuses = append(statuses, MailboxStatus{
			MailboxID: e.cfg.ID,
			TenantID:  e.cfg.TenantID,
			Host:      e.cfg.Host,
			Interval:  e.interval.String(),
			LastRun:   e.lastRun,
			NextRun:   e.nextRun,
			Running:   e.running,
			LastError: e.lastErr,
		})
	}
	return statuses
}
