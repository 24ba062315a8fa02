package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetv-guide/database"
	"livetv-guide/model"
)

func newState(t *testing.T) (*State, database.Store) {
	db, err := database.NewMemDB()
	require.NoError(t, err)
	return New(db), db
}

func TestState_Settings(t *testing.T) {
	ctx := context.Background()
	s, _ := newState(t)

	settings, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Settings{}, settings)

	want := model.Settings{PlaylistURL: "http://a/playlist.m3u", ScheduleURL: "http://a/epg.xml"}
	require.NoError(t, s.SaveSettings(ctx, want))

	settings, err = s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, settings)

	require.NoError(t, s.SaveSettings(ctx, model.Settings{PlaylistURL: "http://b"}))
	settings, err = s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Settings{PlaylistURL: "http://b"}, settings)
}

func TestState_LastFetchAndIndex(t *testing.T) {
	ctx := context.Background()
	s, _ := newState(t)

	_, ok, err := s.LastFetch(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	index, err := s.ChannelIndex(ctx)
	require.NoError(t, err)
	assert.Zero(t, index)

	now := time.Date(2024, 1, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	require.NoError(t, s.SetLastFetch(ctx, now))
	require.NoError(t, s.SetChannelIndex(ctx, 4))
	require.NoError(t, s.SetFeedChecksum(ctx, "abc"))

	checksum, err := s.FeedChecksum(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", checksum)

	got, ok, err := s.LastFetch(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(now))

	index, err = s.ChannelIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, index)

	require.NoError(t, s.SaveSettings(ctx, model.Settings{PlaylistURL: "http://a"}))
	require.NoError(t, s.ResetCache(ctx))

	_, ok, err = s.LastFetch(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	index, err = s.ChannelIndex(ctx)
	require.NoError(t, err)
	assert.Zero(t, index)
	checksum, err = s.FeedChecksum(ctx)
	require.NoError(t, err)
	assert.Empty(t, checksum)

	settings, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a", settings.PlaylistURL)
}

func TestState_CorruptValue(t *testing.T) {
	ctx := context.Background()
	s, db := newState(t)

	require.NoError(t, db.PutSetting(ctx, KeyChannelIndex, "not json"))
	_, err := s.ChannelIndex(ctx)
	assert.Error(t, err)
}
