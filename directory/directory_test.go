package directory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetv-guide/database"
	"livetv-guide/guide"
	"livetv-guide/logger"
	"livetv-guide/model"
	"livetv-guide/state"
)

type fixture struct {
	db    *database.MemDB
	state *state.State
	dir   *Directory
}

func newFixture(t *testing.T, channels ...model.Channel) *fixture {
	db, err := database.NewMemDB()
	require.NoError(t, err)

	require.NoError(t, db.Update(context.Background(), func(tx database.Tx) error {
		for _, ch := range channels {
			if err := tx.AddChannel(ch); err != nil {
				return err
			}
		}
		return nil
	}))

	st := state.New(db)
	lookup := guide.NewLookup(db, 0, logger.Default)
	return &fixture{db: db, state: st, dir: New(context.Background(), db, st, lookup, logger.Default)}
}

func numbered(id string, n int) model.Channel {
	return model.Channel{ID: id, Name: id, Number: model.IntPtr(n), Stream: "http://" + id}
}

func nextEvent(t *testing.T, sub *Subscription) ChannelChange {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected a channel change")
		return ChannelChange{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected channel change to %s", ev.Channel.ID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDirectory_LoadOrdersByNumber(t *testing.T) {
	f := newFixture(t,
		model.Channel{ID: "radio", Name: "Radio", Stream: "http://radio"},
		numbered("c103", 103),
		numbered("c101", 101),
		numbered("c102", 102),
	)
	sub := f.dir.Subscribe(4)
	defer sub.Close()

	require.NoError(t, f.dir.Load(context.Background()))

	var got []string
	for _, ch := range f.dir.Channels() {
		got = append(got, ch.ID)
	}
	assert.Equal(t, []string{"c101", "c102", "c103", "radio"}, got)

	ev := nextEvent(t, sub)
	assert.Equal(t, "c101", ev.Channel.ID)
}

func TestDirectory_UpDownClamp(t *testing.T) {
	f := newFixture(t, numbered("a", 1), numbered("b", 2), numbered("c", 3))
	require.NoError(t, f.dir.Load(context.Background()))

	sub := f.dir.Subscribe(8)
	defer sub.Close()

	ch, ok := f.dir.ChannelDown()
	require.True(t, ok)
	assert.Equal(t, "a", ch.ID)
	assertNoEvent(t, sub)

	ch, _ = f.dir.ChannelUp()
	assert.Equal(t, "b", ch.ID)
	assert.Equal(t, "b", nextEvent(t, sub).Channel.ID)

	ch, _ = f.dir.ChannelUp()
	assert.Equal(t, "c", ch.ID)
	assert.Equal(t, "c", nextEvent(t, sub).Channel.ID)

	ch, _ = f.dir.ChannelUp()
	assert.Equal(t, "c", ch.ID, "no wraparound past the last channel")
	assertNoEvent(t, sub)

	require.NoError(t, f.dir.Flush(context.Background()))
	index, err := f.state.ChannelIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, index)
}

func TestDirectory_SelectByNumber(t *testing.T) {
	f := newFixture(t, numbered("c101", 101), numbered("c102", 102), numbered("c103", 103))
	require.NoError(t, f.dir.Load(context.Background()))

	tests := []struct {
		name   string
		number int
		found  bool
		want   string
	}{
		{"exact", 102, true, "c102"},
		{"relative to the lowest number", 3, true, "c103"},
		{"relative to the lowest number again", 1, true, "c101"},
		{"relative miss", 5, false, "c101"},
		{"absolute miss", 150, false, "c101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, found := f.dir.SelectByNumber(tt.number)
			assert.Equal(t, tt.found, found)
			if found {
				assert.Equal(t, tt.want, ch.ID)
			}
			current, _ := f.dir.Current()
			assert.Equal(t, tt.want, current.ID)
		})
	}
}

func TestDirectory_SelectByNumberWithoutNumbers(t *testing.T) {
	f := newFixture(t, model.Channel{ID: "x", Name: "X", Stream: "http://x"})
	require.NoError(t, f.dir.Load(context.Background()))

	_, found := f.dir.SelectByNumber(1)
	assert.False(t, found)
}

func TestDirectory_SameChannelDoesNotRepublish(t *testing.T) {
	f := newFixture(t, numbered("a", 1), numbered("b", 2))
	require.NoError(t, f.dir.Load(context.Background()))

	sub := f.dir.Subscribe(4)
	defer sub.Close()

	_, found := f.dir.SelectByNumber(1)
	assert.True(t, found)
	assertNoEvent(t, sub)

	_, found = f.dir.SelectID("a")
	assert.True(t, found)
	assertNoEvent(t, sub)

	_, found = f.dir.SelectID("b")
	assert.True(t, found)
	assert.Equal(t, "b", nextEvent(t, sub).Channel.ID)
}

func TestDirectory_ClampsPersistedIndex(t *testing.T) {
	f := newFixture(t, numbered("a", 1), numbered("b", 2), numbered("c", 3))
	ctx := context.Background()

	require.NoError(t, f.state.SetChannelIndex(ctx, 10))
	require.NoError(t, f.dir.Load(ctx))

	current, ok := f.dir.Current()
	require.True(t, ok)
	assert.Equal(t, "c", current.ID)
	assert.Equal(t, 2, f.dir.Index())

	require.NoError(t, f.dir.Flush(ctx))
	stored, err := f.state.ChannelIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stored, "repaired index is persisted")

	require.NoError(t, f.state.SetChannelIndex(ctx, -4))
	require.NoError(t, f.dir.Load(ctx))
	assert.Equal(t, 0, f.dir.Index())
}

func TestDirectory_RestoresPersistedIndex(t *testing.T) {
	f := newFixture(t, numbered("a", 1), numbered("b", 2), numbered("c", 3))
	ctx := context.Background()

	require.NoError(t, f.state.SetChannelIndex(ctx, 1))
	require.NoError(t, f.dir.Load(ctx))

	current, _ := f.dir.Current()
	assert.Equal(t, "b", current.ID)
}

func TestDirectory_NavigationDoesNotWaitForStore(t *testing.T) {
	ctx := context.Background()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "guide.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Update(ctx, func(tx database.Tx) error {
		for _, ch := range []model.Channel{numbered("a", 1), numbered("b", 2), numbered("c", 3)} {
			if err := tx.AddChannel(ch); err != nil {
				return err
			}
		}
		return nil
	}))

	st := state.New(db)
	dir := New(ctx, db, st, guide.NewLookup(db, 0, logger.Default), logger.Default)
	require.NoError(t, dir.Load(ctx))
	require.NoError(t, dir.Flush(ctx))

	// an ingestion holding the write lock
	holding := make(chan struct{})
	release := make(chan struct{})
	updated := make(chan error, 1)
	go func() {
		updated <- db.Update(ctx, func(tx database.Tx) error {
			if err := tx.PutChannel(numbered("d", 4)); err != nil {
				return err
			}
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	start := time.Now()
	ch, ok := dir.ChannelUp()
	elapsed := time.Since(start)

	close(release)
	require.NoError(t, <-updated)

	require.True(t, ok)
	assert.Equal(t, "b", ch.ID)
	assert.Less(t, elapsed, 500*time.Millisecond)

	require.NoError(t, dir.Flush(ctx))
	index, err := st.ChannelIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, index, "position is persisted once the store is free")
}

func TestDirectory_Empty(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.dir.Load(context.Background()))

	_, ok := f.dir.Current()
	assert.False(t, ok)
	_, ok = f.dir.ChannelUp()
	assert.False(t, ok)
	_, ok = f.dir.ChannelDown()
	assert.False(t, ok)
	_, found := f.dir.SelectByNumber(1)
	assert.False(t, found)
}

func TestDirectory_ReloadKeepsActiveChannel(t *testing.T) {
	f := newFixture(t, numbered("a", 1), numbered("b", 2), numbered("c", 3))
	ctx := context.Background()
	require.NoError(t, f.dir.Load(ctx))
	f.dir.SelectID("c")

	sub := f.dir.Subscribe(4)
	defer sub.Close()

	require.NoError(t, f.db.Update(ctx, func(tx database.Tx) error {
		if err := tx.Clear(database.Channels); err != nil {
			return err
		}
		for _, ch := range []model.Channel{numbered("z", 0), numbered("c", 3), numbered("a", 1)} {
			if err := tx.AddChannel(ch); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, f.dir.Reload(ctx))
	current, _ := f.dir.Current()
	assert.Equal(t, "c", current.ID)
	assert.Equal(t, 2, f.dir.Index())
	assertNoEvent(t, sub)

	// the active channel disappears: the position is clamped
	require.NoError(t, f.db.Update(ctx, func(tx database.Tx) error {
		if err := tx.Clear(database.Channels); err != nil {
			return err
		}
		return tx.AddChannel(numbered("a", 1))
	}))
	require.NoError(t, f.dir.Reload(ctx))
	current, _ = f.dir.Current()
	assert.Equal(t, "a", current.ID)
	assert.Equal(t, "a", nextEvent(t, sub).Channel.ID)
}

func TestDirectory_EventCarriesCurrentProgramme(t *testing.T) {
	f := newFixture(t, numbered("a", 1), numbered("b", 2))
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f.dir.now = func() time.Time { return now }

	require.NoError(t, f.db.Update(ctx, func(tx database.Tx) error {
		_, err := tx.AddProgramme(model.Programme{ChannelID: "b", Start: now.Add(-time.Minute), Stop: now.Add(time.Hour), Title: "Show"})
		return err
	}))
	require.NoError(t, f.dir.Load(ctx))

	sub := f.dir.Subscribe(1)
	defer sub.Close()

	f.dir.ChannelUp()
	ev := nextEvent(t, sub)
	assert.Equal(t, "b", ev.Channel.ID)

	programme, err := ev.Programme.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, programme)
	assert.Equal(t, "Show", programme.Title)

	f.dir.ChannelDown()
	ev = nextEvent(t, sub)
	programme, err = ev.Programme.Wait(ctx)
	require.NoError(t, err)
	assert.Nil(t, programme, "nothing on air")
}

func TestDirectory_SlowSubscriberDoesNotBlock(t *testing.T) {
	f := newFixture(t, numbered("a", 1), numbered("b", 2), numbered("c", 3))
	require.NoError(t, f.dir.Load(context.Background()))

	sub := f.dir.Subscribe(1)
	f.dir.ChannelUp()
	f.dir.ChannelUp()

	assert.Equal(t, "b", nextEvent(t, sub).Channel.ID)
	assertNoEvent(t, sub)

	sub.Close()
	sub.Close()
	f.dir.ChannelDown()

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestNumberEntry(t *testing.T) {
	f := newFixture(t, numbered("c101", 101), numbered("c102", 102), numbered("c103", 103))
	require.NoError(t, f.dir.Load(context.Background()))

	entry := NewNumberEntry(f.dir, 20*time.Millisecond)
	committed := make(chan int, 1)
	entry.OnCommit(func(number int, ch model.Channel, found bool) {
		committed <- number
	})

	pending, err := entry.Type('0')
	require.NoError(t, err)
	assert.Equal(t, "0", pending)
	pending, err = entry.Type('3')
	require.NoError(t, err)
	assert.Equal(t, "03", pending)

	_, err = entry.Type('x')
	assert.Error(t, err)

	select {
	case n := <-committed:
		assert.Equal(t, 3, n)
	case <-time.After(time.Second):
		t.Fatal("entry was not committed")
	}

	current, _ := f.dir.Current()
	assert.Equal(t, "c103", current.ID)
	assert.Empty(t, entry.Pending())

	_, found := entry.Commit()
	assert.False(t, found, "empty buffer commits nothing")
}
