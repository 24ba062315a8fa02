package state

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"livetv-guide/model"
)

const (
	KeyPlaylistURL  = "playlistUrl"
	KeyScheduleURL  = "scheduleUrl"
	KeyLastFetch    = "lastFetch"
	KeyChannelIndex = "channelIndex"
	KeyFeedChecksum = "feedChecksum"
)

// Backend persists scalar values by key.
type Backend interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
	DeleteSettings(ctx context.Context, keys ...string) error
}

// State is the typed view of the persisted scalars. Values are stored JSON
// encoded.
type State struct {
	backend Backend
}

func New(backend Backend) *State {
	return &State{backend: backend}
}

func (s *State) Settings(ctx context.Context) (model.Settings, error) {
	var settings model.Settings
	if _, err := s.get(ctx, KeyPlaylistURL, &settings.PlaylistURL); err != nil {
		return settings, err
	}
	if _, err := s.get(ctx, KeyScheduleURL, &settings.ScheduleURL); err != nil {
		return settings, err
	}
	return settings, nil
}

func (s *State) SaveSettings(ctx context.Context, settings model.Settings) error {
	if err := s.put(ctx, KeyPlaylistURL, settings.PlaylistURL); err != nil {
		return err
	}
	if settings.ScheduleURL == "" {
		return s.backend.DeleteSettings(ctx, KeyScheduleURL)
	}
	return s.put(ctx, KeyScheduleURL, settings.ScheduleURL)
}

// LastFetch reports when the cache was last fully populated. ok is false
// when it never was.
func (s *State) LastFetch(ctx context.Context) (t time.Time, ok bool, err error) {
	ok, err = s.get(ctx, KeyLastFetch, &t)
	return t, ok, err
}

func (s *State) SetLastFetch(ctx context.Context, t time.Time) error {
	return s.put(ctx, KeyLastFetch, t.UTC())
}

// ChannelIndex returns the persisted navigation position, 0 when unset.
func (s *State) ChannelIndex(ctx context.Context) (int, error) {
	var index int
	_, err := s.get(ctx, KeyChannelIndex, &index)
	return index, err
}

func (s *State) SetChannelIndex(ctx context.Context, index int) error {
	return s.put(ctx, KeyChannelIndex, index)
}

// FeedChecksum identifies the feed contents the cache was built from,
// empty when unknown.
func (s *State) FeedChecksum(ctx context.Context) (string, error) {
	var checksum string
	_, err := s.get(ctx, KeyFeedChecksum, &checksum)
	return checksum, err
}

func (s *State) SetFeedChecksum(ctx context.Context, checksum string) error {
	return s.put(ctx, KeyFeedChecksum, checksum)
}

// ResetCache forgets everything derived from the feeds, keeping settings.
func (s *State) ResetCache(ctx context.Context) error {
	return s.backend.DeleteSettings(ctx, KeyLastFetch, KeyChannelIndex, KeyFeedChecksum)
}

func (s *State) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := s.backend.Setting(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("error decoding %s: %w", key, err)
	}
	return true, nil
}

func (s *State) put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", key, err)
	}
	return s.backend.PutSetting(ctx, key, string(raw))
}
