package guide

import (
	"context"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"livetv-guide/database"
	"livetv-guide/logger"
	"livetv-guide/model"
)

const DefaultHorizon = 24 * time.Hour

// Store is the subset of database.Store the lookup reads from.
type Store interface {
	FindProgrammes(ctx context.Context, index database.ProgrammeIndex, value any) ([]model.Programme, error)
}

// Listing is one row of an upcoming schedule. Start is the display start:
// the stored start, or the query instant for a programme already airing.
type Listing struct {
	Programme model.Programme `json:"programme"`
	Start     time.Time       `json:"start"`
}

// Lookup answers time-based questions about a channel's programmes. A
// channel's programme list is cached until Invalidate.
type Lookup struct {
	store  Store
	cache  *cache.Cache
	logger logger.Logger
}

// NewLookup returns a Lookup over store. A non-positive ttl disables the
// per-channel cache.
func NewLookup(store Store, ttl time.Duration, log logger.Logger) *Lookup {
	l := &Lookup{store: store, logger: log}
	if ttl > 0 {
		l.cache = cache.New(ttl, 2*ttl)
	}
	return l
}

// Current returns the programme airing on channelID at now, or nil when
// nothing is scheduled.
func (l *Lookup) Current(ctx context.Context, channelID string, now time.Time) (*model.Programme, error) {
	programmes, err := l.programmes(ctx, channelID)
	if err != nil {
		return nil, err
	}

	for i := range programmes {
		if programmes[i].Airing(now) {
			p := programmes[i]
			return &p, nil
		}
	}
	return nil, nil
}

// Upcoming lists the programmes on channelID that have not finished by now
// and start within horizon, ordered by start.
func (l *Lookup) Upcoming(ctx context.Context, channelID string, now time.Time, horizon time.Duration) ([]Listing, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	programmes, err := l.programmes(ctx, channelID)
	if err != nil {
		return nil, err
	}

	until := now.Add(horizon)
	var listings []Listing
	for _, p := range programmes {
		if !p.Stop.After(now) || p.Start.After(until) {
			continue
		}
		start := p.Start
		if start.Before(now) {
			start = now
		}
		listings = append(listings, Listing{Programme: p, Start: start})
	}
	return listings, nil
}

// Invalidate drops every cached programme list.
func (l *Lookup) Invalidate() {
	if l.cache != nil {
		l.cache.Flush()
	}
}

func (l *Lookup) programmes(ctx context.Context, channelID string) ([]model.Programme, error) {
	if l.cache != nil {
		if cached, ok := l.cache.Get(channelID); ok {
			return cached.([]model.Programme), nil
		}
	}

	programmes, err := l.store.FindProgrammes(ctx, database.ProgrammeByChannel, channelID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(programmes, func(i, j int) bool {
		return programmes[i].Start.Before(programmes[j].Start)
	})

	if l.cache != nil {
		l.cache.SetDefault(channelID, programmes)
	}
	l.logger.Debugf("Loaded %d programmes for channel %s", len(programmes), channelID)
	return programmes, nil
}
