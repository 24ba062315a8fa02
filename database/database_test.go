package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetv-guide/model"
)

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func engines(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"sqlite-file": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "guide.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"sqlite-memory": func(t *testing.T) Store {
			s, err := OpenSQLite(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"memdb": func(t *testing.T) Store {
			s, err := NewMemDB()
			require.NoError(t, err)
			return s
		},
	}
}

func forEachEngine(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func seedChannels(t *testing.T, s Store, channels ...model.Channel) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(tx Tx) error {
		for _, ch := range channels {
			if err := tx.AddChannel(ch); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestStore_Channels(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		seedChannels(t, s,
			model.Channel{ID: "c3", Name: "Three", Number: model.IntPtr(3), Stream: "http://3"},
			model.Channel{ID: "c1", Name: "One", Number: model.IntPtr(1), Stream: "http://1", Icon: "http://i/1.png"},
			model.Channel{ID: "cx", Name: "Unnumbered", Stream: "http://x"},
			model.Channel{ID: "c2", Name: "Two", Number: model.IntPtr(2), Stream: "http://2"},
		)

		count, err := s.Count(ctx, Channels)
		require.NoError(t, err)
		assert.Equal(t, 4, count)

		ch, err := s.GetChannel(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, model.Channel{ID: "c1", Name: "One", Number: model.IntPtr(1), Stream: "http://1", Icon: "http://i/1.png"}, ch)

		_, err = s.GetChannel(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		byNumber, err := s.ListChannels(ctx, ChannelByNumber)
		require.NoError(t, err)
		require.Len(t, byNumber, 4)
		assert.Equal(t, []string{"c1", "c2", "c3", "cx"}, ids(byNumber))

		byName, err := s.ListChannels(ctx, ChannelByName)
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "c3", "c2", "cx"}, ids(byName))

		found, err := s.FindChannels(ctx, ChannelByNumber, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"c2"}, ids(found))

		found, err = s.FindChannels(ctx, ChannelByIcon, "http://i/1.png")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, ids(found))

		_, err = s.ListChannels(ctx, ChannelIndex("bogus"))
		assert.ErrorIs(t, err, ErrUnknownIndex)
	})
}

func TestStore_AddChannelDuplicateRollsBack(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedChannels(t, s, model.Channel{ID: "a", Name: "A", Stream: "http://a"})

		err := s.Update(ctx, func(tx Tx) error {
			if err := tx.AddChannel(model.Channel{ID: "b", Name: "B", Stream: "http://b"}); err != nil {
				return err
			}
			return tx.AddChannel(model.Channel{ID: "a", Name: "A again", Stream: "http://a2"})
		})
		require.ErrorIs(t, err, ErrConstraint)

		count, err := s.Count(ctx, Channels)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "the whole batch must roll back")

		ch, err := s.GetChannel(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "A", ch.Name)
	})
}

func TestStore_PutChannelReplaces(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedChannels(t, s, model.Channel{ID: "a", Name: "A", Number: model.IntPtr(1), Stream: "http://a"})

		require.NoError(t, s.Update(ctx, func(tx Tx) error {
			return tx.PutChannel(model.Channel{ID: "a", Name: "A", Number: model.IntPtr(1), Stream: "http://a", Icon: "http://icon"})
		}))

		found, err := s.FindChannels(ctx, ChannelByIcon, "http://icon")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "a", found[0].ID)

		count, err := s.Count(ctx, Channels)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestStore_Programmes(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		var added []int64
		require.NoError(t, s.Update(ctx, func(tx Tx) error {
			for i, p := range []model.Programme{
				{ChannelID: "c1", Start: base.Add(time.Hour), Stop: base.Add(2 * time.Hour), Title: "Later"},
				{
					ChannelID: "c1", Start: base, Stop: base.Add(time.Hour), Title: "News",
					Season: model.IntPtr(1), Episode: model.IntPtr(6),
					Categories: []model.Category{{Name: "News"}, {Name: "Current Affairs"}},
				},
				{ChannelID: "c2", Start: base, Stop: base.Add(30 * time.Minute), Categories: []model.Category{{Name: "News"}}},
			} {
				id, err := tx.AddProgramme(p)
				if err != nil {
					return err
				}
				if i > 0 {
					assert.Greater(t, id, added[i-1])
				}
				added = append(added, id)
			}
			return nil
		}))

		count, err := s.Count(ctx, Programmes)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		categories, err := s.ListCategories(ctx)
		require.NoError(t, err)
		require.Len(t, categories, 2)
		assert.Equal(t, "News", categories[0].Name)
		assert.Equal(t, "Current Affairs", categories[1].Name)

		news, err := s.GetProgramme(ctx, added[1])
		require.NoError(t, err)
		assert.Equal(t, "News", news.Title)
		assert.True(t, news.Start.Equal(base))
		assert.True(t, news.Stop.Equal(base.Add(time.Hour)))
		assert.Equal(t, model.IntPtr(1), news.Season)
		assert.Equal(t, model.IntPtr(6), news.Episode)
		assert.Nil(t, news.Part)
		require.Len(t, news.Categories, 2)
		assert.Equal(t, categories[0].ID, news.Categories[0].ID)
		assert.Equal(t, "Current Affairs", news.Categories[1].Name)

		onC1, err := s.FindProgrammes(ctx, ProgrammeByChannel, "c1")
		require.NoError(t, err)
		require.Len(t, onC1, 2)
		assert.Equal(t, added[0], onC1[0].ID)

		atBase, err := s.FindProgrammes(ctx, ProgrammeByStart, base)
		require.NoError(t, err)
		assert.Len(t, atBase, 2)

		byStart, err := s.ListProgrammes(ctx, ProgrammeByStart)
		require.NoError(t, err)
		require.Len(t, byStart, 3)
		assert.Equal(t, []int64{added[1], added[2], added[0]}, programmeIDs(byStart))

		bySeason, err := s.ListProgrammes(ctx, ProgrammeBySeason)
		require.NoError(t, err)
		assert.Equal(t, []int64{added[1], added[0], added[2]}, programmeIDs(bySeason))

		_, err = s.GetProgramme(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ProgrammeIDsAreNotReused(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		add := func() int64 {
			var id int64
			require.NoError(t, s.Update(ctx, func(tx Tx) error {
				var err error
				id, err = tx.AddProgramme(model.Programme{ChannelID: "c", Start: base, Stop: base.Add(time.Hour)})
				return err
			}))
			return id
		}

		first := add()
		require.NoError(t, s.Update(ctx, func(tx Tx) error { return tx.Clear(Programmes) }))
		second := add()
		assert.Greater(t, second, first)
	})
}

func TestStore_RejectsInvertedProgramme(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s Store) {
		err := s.Update(context.Background(), func(tx Tx) error {
			_, err := tx.AddProgramme(model.Programme{ChannelID: "c", Start: base, Stop: base})
			return err
		})
		assert.ErrorIs(t, err, ErrConstraint)
	})
}

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := s.Update(ctx, func(tx Tx) error {
			if err := tx.AddChannel(model.Channel{ID: "a", Name: "A", Stream: "http://a"}); err != nil {
				return err
			}
			if _, err := tx.AddProgramme(model.Programme{ChannelID: "a", Start: base, Stop: base.Add(time.Hour)}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		for _, c := range []Collection{Channels, Programmes} {
			count, err := s.Count(ctx, c)
			require.NoError(t, err)
			assert.Zero(t, count, c)
		}
	})
}

func TestStore_ClearAll(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedChannels(t, s, model.Channel{ID: "a", Name: "A", Stream: "http://a"})
		require.NoError(t, s.Update(ctx, func(tx Tx) error {
			_, err := tx.AddProgramme(model.Programme{
				ChannelID: "a", Start: base, Stop: base.Add(time.Hour),
				Categories: []model.Category{{Name: "News"}},
			})
			return err
		}))
		require.NoError(t, s.PutSetting(ctx, "playlistUrl", `"http://a"`))

		require.NoError(t, s.ClearAll(ctx))

		for _, c := range AllCollections {
			count, err := s.Count(ctx, c)
			require.NoError(t, err)
			assert.Zero(t, count, c)
		}

		// scalars are not part of the cache
		v, ok, err := s.Setting(ctx, "playlistUrl")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `"http://a"`, v)
	})
}

func TestStore_Settings(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, ok, err := s.Setting(ctx, "channelIndex")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.PutSetting(ctx, "channelIndex", "1"))
		require.NoError(t, s.PutSetting(ctx, "channelIndex", "2"))
		require.NoError(t, s.PutSetting(ctx, "lastFetch", "x"))

		v, ok, err := s.Setting(ctx, "channelIndex")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "2", v)

		require.NoError(t, s.DeleteSettings(ctx, "channelIndex", "lastFetch"))
		_, ok, err = s.Setting(ctx, "lastFetch")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSQLite_SchemaVersionPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), s.SchemaVersion())
	seedChannels(t, s, model.Channel{ID: "a", Name: "A", Stream: "http://a"})
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, len(migrations), version)

	count, err := s.Count(context.Background(), Channels)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLite_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenSQLite(path)
	assert.Error(t, err)
}

func ids(channels []model.Channel) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = ch.ID
	}
	return out
}

func programmeIDs(programmes []model.Programme) []int64 {
	out := make([]int64, len(programmes))
	for i, p := range programmes {
		out[i] = p.ID
	}
	return out
}
