package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
)

// DefaultRefreshSpec reloads the directory every five minutes.
const DefaultRefreshSpec = "@every 5m"

// Cached serves lookups from an in-memory snapshot of source and reloads it
// on a cron schedule. A failed reload keeps the previous snapshot.
type Cached struct {
	source  Lister
	snap    *Static
	timeout time.Duration

	mu        sync.Mutex
	cron      *cron.Cron
	lastLoad  time.Time
	lastError error
}

// NewCached loads source once and returns the cache. Call Start to schedule
// refreshes.
func NewCached(ctx context.Context, source Lister) (*Cached, error) {
	c := &Cached{source: source, snap: NewStatic(), timeout: 30 * time.Second}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh reloads the snapshot now.
func (c *Cached) Refresh(ctx context.Context) error {
	subjects, err := c.source.All(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastError = err
		return fmt.Errorf("directory refresh: %w", err)
	}
	c.snap.Replace(subjects)
	c.lastLoad = time.Now().UTC()
	c.lastError = nil
	return nil
}

// Start schedules refreshes with a standard cron spec or descriptor such as
// "@every 5m".
func (c *Cached) Start(spec string) error {
	if spec == "" {
		spec = DefaultRefreshSpec
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}
	sched := cron.New()
	if _, err := sched.AddFunc(spec, c.scheduledRefresh); err != nil {
		return fmt.Errorf("directory refresh schedule %q: %w", spec, err)
	}
	sched.Start()
	c.cron = sched
	return nil
}

func (c *Cached) scheduledRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.Refresh(ctx); err != nil {
		obs.Log(obs.LevelWarn, "directory refresh failed", map[string]any{"error": err.Error()})
		return
	}
	obs.Log(obs.LevelDebug, "directory refreshed", nil)
}

// Stop cancels the schedule and waits for a running refresh.
func (c *Cached) Stop() {
	c.mu.Lock()
	sched := c.cron
	c.cron = nil
	c.mu.Unlock()
	if sched != nil {
		<-sched.Stop().Done()
	}
}

// Status reports the last successful load and the last refresh error.
func (c *Cached) Status() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLoad, c.lastError
}

func (c *Cached) Subject(ctx context.Context, id string) (Subject, error) {
	return c.snap.Subject(ctx, id)
}

func (c *Cached) TeamMembers(ctx context.Context, teamID string) ([]string, error) {
	return c.snap.TeamMembers(ctx, teamID)
}

func (c *Cached) All(ctx context.Context) ([]Subject, error) {
	return c.snap.All(ctx)
}
