package updater

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"livetv-guide/database"
	"livetv-guide/feeds"
	"livetv-guide/logger"
	"livetv-guide/model"
)

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Pass holds both feeds fetched and parsed, ready to be written.
// Checksum identifies the raw feed contents.
type Pass struct {
	Settings model.Settings
	Channels []model.Channel
	Schedule *feeds.Schedule
	Checksum string
}

type Stats struct {
	Channels   int
	Programmes int
	Skipped    int
	Unmatched  int
}

// Ingester turns the configured feeds into store rows.
type Ingester struct {
	store   database.Store
	fetcher Fetcher
	logger  logger.Logger
}

func NewIngester(store database.Store, fetcher Fetcher, log logger.Logger) *Ingester {
	return &Ingester{store: store, fetcher: fetcher, logger: log}
}

// ValidateSettings checks the feed locations without fetching them.
func ValidateSettings(settings model.Settings) error {
	if strings.TrimSpace(settings.PlaylistURL) == "" {
		return &ConfigurationError{Field: FieldPlaylistURL, Message: "Playlist URL is required"}
	}
	if !supportedURL(settings.PlaylistURL) {
		return &ConfigurationError{Field: FieldPlaylistURL, Message: "Unsupported URL"}
	}
	if settings.ScheduleURL != "" && !supportedURL(settings.ScheduleURL) {
		return &ConfigurationError{Field: FieldScheduleURL, Message: "Unsupported URL"}
	}
	return nil
}

func supportedURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "file":
		return u.Path != ""
	}
	return false
}

// Prepare downloads and parses both feeds. Nothing is written, so a
// failure here leaves the cache untouched.
func (i *Ingester) Prepare(ctx context.Context, settings model.Settings) (*Pass, error) {
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	var playlist, schedule []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		i.logger.Logf("Background process: Fetching playlist from %s", settings.PlaylistURL)
		data, err := i.fetcher.Fetch(gctx, strings.TrimSpace(settings.PlaylistURL))
		if err != nil {
			return &FetchError{Field: FieldPlaylistURL, URL: settings.PlaylistURL, Err: err}
		}
		playlist = data
		return nil
	})
	if settings.ScheduleURL != "" {
		g.Go(func() error {
			i.logger.Logf("Background process: Fetching schedule from %s", settings.ScheduleURL)
			data, err := i.fetcher.Fetch(gctx, strings.TrimSpace(settings.ScheduleURL))
			if err != nil {
				return &FetchError{Field: FieldScheduleURL, URL: settings.ScheduleURL, Err: err}
			}
			schedule = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	channels, err := feeds.ParsePlaylist(bytes.NewReader(playlist))
	if err != nil {
		return nil, &ConfigurationError{Field: FieldPlaylistURL, Message: "Invalid playlist"}
	}
	channels = i.normalizeChannels(channels)
	if len(channels) == 0 {
		return nil, &ConfigurationError{Field: FieldPlaylistURL, Message: "No channels found in playlist"}
	}

	pass := &Pass{
		Settings: settings,
		Channels: channels,
		Schedule: &feeds.Schedule{Icons: map[string]string{}},
		Checksum: checksum(playlist, schedule),
	}
	if schedule != nil {
		parsed, err := feeds.ParseSchedule(bytes.NewReader(schedule))
		if err != nil {
			i.logger.Warnf("Background process: Error parsing schedule: %v", err)
			return nil, &ConfigurationError{Field: FieldScheduleURL, Message: "Invalid XMLTV document"}
		}
		for _, skipped := range parsed.Skipped {
			i.logger.Debugf("Background process: Skipping programme: %v", skipped)
		}
		pass.Schedule = parsed
	}

	return pass, nil
}

func checksum(playlist, schedule []byte) string {
	h := sha3.New224()
	h.Write(playlist)
	h.Write([]byte{0})
	h.Write(schedule)
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeChannels gives id-less channels an id derived from their name
// and keeps the first of several entries sharing an id.
func (i *Ingester) normalizeChannels(channels []model.Channel) []model.Channel {
	seen := make(map[string]struct{}, len(channels))
	out := make([]model.Channel, 0, len(channels))

	for _, ch := range channels {
		if ch.ID == "" {
			ch.ID = slug.Make(ch.Name)
		}
		if ch.ID == "" {
			ch.ID = fmt.Sprintf("channel-%d", len(out)+1)
		}
		if _, dup := seen[ch.ID]; dup {
			i.logger.Warnf("Background process: Duplicate channel id %s (%s), keeping the first entry", ch.ID, ch.Name)
			continue
		}
		seen[ch.ID] = struct{}{}
		out = append(out, ch)
	}
	return out
}

// Commit writes pass in one transaction: channels first, then icons and
// programmes against the channel rows just written. With reset every
// collection is emptied first; otherwise the previous channels and
// programmes are replaced and categories kept. On error nothing changes.
func (i *Ingester) Commit(ctx context.Context, pass *Pass, reset bool) (Stats, error) {
	var stats Stats

	err := i.store.Update(ctx, func(tx database.Tx) error {
		stats = Stats{}

		collections := []database.Collection{database.Programmes, database.Channels}
		if reset {
			collections = database.AllCollections
		}
		if err := tx.Clear(collections...); err != nil {
			return fmt.Errorf("error clearing cache: %w", err)
		}

		for _, ch := range pass.Channels {
			if err := tx.AddChannel(ch); err != nil {
				return fmt.Errorf("error writing channels: %w", err)
			}
		}
		stats.Channels = len(pass.Channels)

		channels, err := tx.Channels()
		if err != nil {
			return fmt.Errorf("error reading channels: %w", err)
		}

		known := make(map[string]struct{}, len(channels))
		for _, ch := range channels {
			known[ch.ID] = struct{}{}

			icon, ok := pass.Schedule.Icons[ch.ID]
			if !ok || icon == ch.Icon {
				continue
			}
			ch.Icon = icon
			if err := tx.PutChannel(ch); err != nil {
				return fmt.Errorf("error writing channel icons: %w", err)
			}
		}

		for _, p := range pass.Schedule.Programmes {
			if _, ok := known[p.ChannelID]; !ok {
				stats.Unmatched++
				continue
			}
			if _, err := tx.AddProgramme(p); err != nil {
				return fmt.Errorf("error writing programmes: %w", err)
			}
			stats.Programmes++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	stats.Skipped = len(pass.Schedule.Skipped)

	return stats, nil
}
