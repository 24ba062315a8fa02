package updater

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"livetv-guide/config"
	"livetv-guide/database"
	"livetv-guide/logger"
	"livetv-guide/model"
	"livetv-guide/state"
)

// Updater keeps the cache in line with the configured feeds. At most one
// ingestion pass runs at a time.
type Updater struct {
	sync.Mutex
	ctx      context.Context
	store    database.Store
	state    *state.State
	ingester *Ingester
	policy   Policy
	Cron     *cron.Cron
	group    singleflight.Group
	logger   logger.Logger
	now      func() time.Time

	hooksMu sync.Mutex
	hooks   []func(reset bool)

	bgMu    sync.Mutex
	bg      sync.WaitGroup
	stopped bool
}

func Initialize(ctx context.Context, store database.Store, st *state.State, fetcher Fetcher, cfg *config.Config, log logger.Logger) (*Updater, error) {
	cronSched := strings.TrimSpace(cfg.SyncCron)
	if cronSched == "" {
		log.Logf("SYNC_CRON not initialized. Defaulting to %s (every hour).", config.DefaultSyncCron)
		cronSched = config.DefaultSyncCron
	}

	updateInstance := &Updater{
		ctx:      ctx,
		store:    store,
		state:    st,
		ingester: NewIngester(store, fetcher, log),
		policy:   Policy{MaxAge: cfg.CacheDuration},
		logger:   log,
		now:      time.Now,
	}

	c := cron.New()
	_, err := c.AddFunc(cronSched, func() {
		updateInstance.background(updateInstance.checkExpiry)
	})
	if err != nil {
		log.Errorf("Error initializing background processes: %v", err)
		return nil, fmt.Errorf("invalid sync schedule %q: %w", cronSched, err)
	}
	updateInstance.Cron = c

	return updateInstance, nil
}

// Start runs the periodic expiry check.
func (u *Updater) Start() {
	u.Cron.Start()
}

// Stop halts the periodic check and waits for every background pass to
// return. Cancel the context given to Initialize first to cut passes short.
func (u *Updater) Stop() {
	<-u.Cron.Stop().Done()

	u.bgMu.Lock()
	u.stopped = true
	u.bgMu.Unlock()

	u.bg.Wait()
}

// background runs fn on its own goroutine unless the updater is stopped.
func (u *Updater) background(fn func()) bool {
	u.bgMu.Lock()
	defer u.bgMu.Unlock()

	if u.stopped {
		return false
	}
	u.bg.Add(1)
	go func() {
		defer u.bg.Done()
		fn()
	}()
	return true
}

// OnRefresh registers fn to run after every successful write to the
// cache. reset is true when every collection was rebuilt from scratch.
func (u *Updater) OnRefresh(fn func(reset bool)) {
	u.hooksMu.Lock()
	defer u.hooksMu.Unlock()

	u.hooks = append(u.hooks, fn)
}

// Decide reports what the cache needs right now.
func (u *Updater) Decide(ctx context.Context) (Decision, error) {
	channels, err := u.store.Count(ctx, database.Channels)
	if err != nil {
		return Fresh, err
	}
	programmes, err := u.store.Count(ctx, database.Programmes)
	if err != nil {
		return Fresh, err
	}
	lastFetch, fetched, err := u.state.LastFetch(ctx)
	if err != nil {
		u.logger.Warnf("Discarding unreadable last fetch time: %v", err)
		fetched = false
	}

	return u.policy.Decide(channels, programmes, lastFetch, fetched, u.now()), nil
}

// EnsureFresh applies the freshness policy: an empty cache is filled
// before returning, a stale one is refreshed in the background.
func (u *Updater) EnsureFresh(ctx context.Context) (Decision, error) {
	decision, err := u.Decide(ctx)
	if err != nil {
		return decision, err
	}

	switch decision {
	case IngestBlocking:
		u.logger.Log("Cache is empty. Fetching feeds before continuing.")
		return decision, u.Sync(ctx)
	case IngestBackground:
		u.logger.Log("Cache is stale. Refreshing in the background.")
		u.Refresh()
	}
	return decision, nil
}

// Sync runs one ingestion pass with the persisted settings. Concurrent
// calls share the pass already in flight.
func (u *Updater) Sync(ctx context.Context) error {
	_, err, shared := u.group.Do("sync", func() (any, error) {
		u.Lock()
		defer u.Unlock()

		return nil, u.sync(ctx)
	})
	if shared {
		u.logger.Debug("Background process: Joined an ingestion pass already in progress.")
	}
	return err
}

func (u *Updater) sync(ctx context.Context) error {
	settings, err := u.state.Settings(ctx)
	if err != nil {
		return fmt.Errorf("error reading settings: %w", err)
	}

	u.logger.Log("Background process: Checking feeds...")
	pass, err := u.ingester.Prepare(ctx, settings)
	if err != nil {
		u.logger.Errorf("Background process: Error fetching feeds: %v", err)
		return err
	}

	unchanged, err := u.unchanged(ctx, pass)
	if err != nil {
		return err
	}
	if unchanged {
		u.logger.Log("Background process: Feeds unchanged since the last pass. Keeping the current cache.")
		return u.recordPass(ctx, pass)
	}

	stats, err := u.ingester.Commit(ctx, pass, false)
	if err != nil {
		u.logger.Errorf("Background process: Error updating cache: %v", err)
		return err
	}

	if err := u.recordPass(ctx, pass); err != nil {
		return err
	}

	u.logStats(stats)
	u.runHooks(false)
	return nil
}

// unchanged reports whether pass carries the feeds the present, non-empty
// cache was built from.
func (u *Updater) unchanged(ctx context.Context, pass *Pass) (bool, error) {
	previous, err := u.state.FeedChecksum(ctx)
	if err != nil {
		u.logger.Warnf("Discarding unreadable feed checksum: %v", err)
		return false, nil
	}
	if previous == "" || previous != pass.Checksum {
		return false, nil
	}

	channels, err := u.store.Count(ctx, database.Channels)
	if err != nil {
		return false, err
	}
	return channels > 0, nil
}

func (u *Updater) recordPass(ctx context.Context, pass *Pass) error {
	if err := u.state.SetLastFetch(ctx, u.now()); err != nil {
		return fmt.Errorf("error recording fetch time: %w", err)
	}
	if err := u.state.SetFeedChecksum(ctx, pass.Checksum); err != nil {
		return fmt.Errorf("error recording feed checksum: %w", err)
	}
	return nil
}

// Refresh starts a Sync in the background. The returned channel receives
// its result.
func (u *Updater) Refresh() <-chan error {
	done := make(chan error, 1)
	started := u.background(func() {
		err := u.Sync(u.ctx)
		if err != nil {
			u.logger.Errorf("Background process: Refresh failed, keeping the current cache: %v", err)
		}
		done <- err
		close(done)
	})
	if !started {
		done <- ErrStopped
		close(done)
	}
	return done
}

// Reconfigure switches to new feed locations. Both feeds are fetched and
// parsed first; only then is the cache rebuilt and the settings saved, so
// a failure leaves everything as it was.
func (u *Updater) Reconfigure(ctx context.Context, settings model.Settings) error {
	settings.PlaylistURL = strings.TrimSpace(settings.PlaylistURL)
	settings.ScheduleURL = strings.TrimSpace(settings.ScheduleURL)
	if err := ValidateSettings(settings); err != nil {
		return err
	}

	u.Lock()
	defer u.Unlock()

	u.logger.Logf("Reconfiguring feeds: playlist %s, schedule %s", settings.PlaylistURL, settings.ScheduleURL)
	pass, err := u.ingester.Prepare(ctx, settings)
	if err != nil {
		u.logger.Errorf("Error applying new settings: %v", err)
		return err
	}

	stats, err := u.ingester.Commit(ctx, pass, true)
	if err != nil {
		return err
	}

	if err := u.state.ResetCache(ctx); err != nil {
		return fmt.Errorf("error resetting cache state: %w", err)
	}
	if err := u.state.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("error saving settings: %w", err)
	}
	if err := u.recordPass(ctx, pass); err != nil {
		return err
	}

	u.logStats(stats)
	u.runHooks(true)
	return nil
}

// Clear empties the cache and forgets the fetch time and channel position.
// Settings are kept.
func (u *Updater) Clear(ctx context.Context) error {
	u.Lock()
	defer u.Unlock()

	if err := u.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}
	if err := u.state.ResetCache(ctx); err != nil {
		return fmt.Errorf("error resetting cache state: %w", err)
	}

	u.runHooks(true)
	return nil
}

func (u *Updater) checkExpiry() {
	select {
	case <-u.ctx.Done():
		return
	default:
	}

	decision, err := u.Decide(u.ctx)
	if err != nil {
		u.logger.Errorf("Background process: Error checking cache: %v", err)
		return
	}
	if decision == Fresh {
		u.logger.Debug("Background process: Cache is fresh.")
		return
	}

	u.logger.Logf("Background process: Cache needs a %s.", decision)
	if err := u.Sync(u.ctx); err != nil {
		u.logger.Errorf("Background process: Scheduled refresh failed: %v", err)
	}
}

func (u *Updater) logStats(stats Stats) {
	u.logger.Logf("Background process: Updated cache with %d channels and %d programmes.", stats.Channels, stats.Programmes)
	if stats.Skipped > 0 || stats.Unmatched > 0 {
		u.logger.Logf("Background process: Skipped %d malformed programmes and %d programmes for unknown channels.", stats.Skipped, stats.Unmatched)
	}
}

func (u *Updater) runHooks(reset bool) {
	u.hooksMu.Lock()
	hooks := append([]func(bool){}, u.hooks...)
	u.hooksMu.Unlock()

	for _, hook := range hooks {
		hook(reset)
	}
}
