package tuner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"livetv-guide/config"
	"livetv-guide/database"
	"livetv-guide/directory"
	"livetv-guide/feeds"
	"livetv-guide/guide"
	"livetv-guide/logger"
	"livetv-guide/model"
	"livetv-guide/state"
	"livetv-guide/updater"
)

// Engine owns the cache and every component reading or writing it.
type Engine struct {
	cfg    *config.Config
	logger logger.Logger

	Store     database.Store
	State     *state.State
	Lookup    *guide.Lookup
	Updater   *updater.Updater
	Directory *directory.Directory

	// NumberEntry tunes to channel numbers typed one digit at a time.
	NumberEntry *directory.NumberEntry

	cancel context.CancelFunc
	loaded atomic.Bool
}

// Open creates the store named by cfg and wires the components on top of
// it. ctx bounds background work started by the engine.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Engine, error) {
	store, err := openStore(cfg)
	if err != nil {
		log.Errorf("Error initializing database: %v", err)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	st := state.New(store)
	fetcher := feeds.NewFetcher(cfg.HTTPTimeout, cfg.UserAgent)

	up, err := updater.Initialize(ctx, store, st, fetcher, cfg, log)
	if err != nil {
		cancel()
		_ = store.Close()
		return nil, err
	}

	lookup := guide.NewLookup(store, cfg.LookupCacheTTL, log)

	dir := directory.New(ctx, store, st, lookup, log)

	e := &Engine{
		cfg:         cfg,
		logger:      log,
		Store:       store,
		State:       st,
		Lookup:      lookup,
		Updater:     up,
		Directory:   dir,
		NumberEntry: directory.NewNumberEntry(dir, cfg.NumberEntryTimeout),
		cancel:      cancel,
	}
	e.NumberEntry.OnCommit(func(number int, ch model.Channel, found bool) {
		if !found {
			log.Debugf("No channel with number %d", number)
		}
	})
	up.OnRefresh(e.afterRefresh)

	return e, nil
}

func openStore(cfg *config.Config) (database.Store, error) {
	dbPath := cfg.DatabaseFile()
	if dbPath == config.MemoryDatabase {
		return database.NewMemDB()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("error creating data directory: %w", err)
	}
	return database.OpenSQLite(dbPath)
}

// Start prepares the engine and starts the periodic check. A failed
// ingestion is returned after the engine is otherwise running, so the
// feeds can still be corrected.
func (e *Engine) Start(ctx context.Context) error {
	err := e.Prepare(ctx)

	var storeErr *storeError
	if errors.As(err, &storeErr) {
		return storeErr.err
	}

	e.Updater.Start()
	return err
}

// Prepare brings the cache up to date according to the configuration and
// loads the channel directory.
func (e *Engine) Prepare(ctx context.Context) error {
	if e.cfg.ClearOnBoot {
		e.logger.Log("CLEAR_ON_BOOT enabled. Clearing current cache.")
		if err := e.Updater.Clear(ctx); err != nil {
			return &storeError{err}
		}
	}

	ingestErr := e.prepareCache(ctx)
	if ingestErr != nil {
		e.logger.Errorf("Error preparing cache: %v", ingestErr)
	}

	e.loaded.Store(true)
	if err := e.Directory.Load(ctx); err != nil {
		return &storeError{err}
	}

	return ingestErr
}

func (e *Engine) prepareCache(ctx context.Context) error {
	reconfigured, err := e.ReconcileSettings(ctx)
	if err != nil || reconfigured {
		return err
	}

	settings, err := e.State.Settings(ctx)
	if err != nil {
		return err
	}
	if settings.PlaylistURL == "" {
		e.logger.Warn("No playlist configured. Waiting for settings.")
		return nil
	}

	if e.cfg.SyncOnBoot {
		e.logger.Log("SYNC_ON_BOOT enabled. Checking cache freshness.")
		_, err := e.Updater.EnsureFresh(ctx)
		return err
	}

	decision, err := e.Updater.Decide(ctx)
	if err != nil {
		return err
	}
	if decision == updater.IngestBlocking {
		return e.Updater.Sync(ctx)
	}
	return nil
}

// ReconcileSettings applies feed locations given through the configuration
// when they differ from the persisted ones. It reports whether the cache
// was rebuilt.
func (e *Engine) ReconcileSettings(ctx context.Context) (bool, error) {
	if e.cfg.PlaylistURL == "" {
		return false, nil
	}

	current, err := e.State.Settings(ctx)
	if err != nil {
		return false, err
	}
	wanted := model.Settings{PlaylistURL: e.cfg.PlaylistURL, ScheduleURL: e.cfg.ScheduleURL}
	if current == wanted {
		return false, nil
	}

	e.logger.Log("Configured feeds differ from the saved settings. Reconfiguring.")
	return true, e.Updater.Reconfigure(ctx, wanted)
}

// Reconfigure switches feeds. On failure the previous cache stays in place.
func (e *Engine) Reconfigure(ctx context.Context, settings model.Settings) error {
	return e.Updater.Reconfigure(ctx, settings)
}

func (e *Engine) afterRefresh(reset bool) {
	e.Lookup.Invalidate()

	if !e.loaded.Load() {
		return
	}

	ctx := context.Background()
	var err error
	if reset {
		err = e.Directory.Load(ctx)
	} else {
		err = e.Directory.Reload(ctx)
	}
	if err != nil {
		e.logger.Errorf("Error reloading channel directory: %v", err)
	}
}

// storeError marks failures of the store itself, as opposed to feed
// problems the user can correct.
type storeError struct {
	err error
}

func (e *storeError) Error() string {
	return e.err.Error()
}

func (e *storeError) Unwrap() error {
	return e.err
}

// Close cancels background work, waits for it to return and persists the
// channel position before closing the store.
func (e *Engine) Close() error {
	e.cancel()
	e.Updater.Stop()

	if err := e.Directory.Flush(context.Background()); err != nil {
		e.logger.Warnf("Error persisting channel index: %v", err)
	}
	return e.Store.Close()
}
