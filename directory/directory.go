package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"livetv-guide/database"
	"livetv-guide/logger"
	"livetv-guide/model"
)

const lookupTimeout = 10 * time.Second

type ChannelStore interface {
	ListChannels(ctx context.Context, index database.ChannelIndex) ([]model.Channel, error)
}

type IndexStore interface {
	ChannelIndex(ctx context.Context) (int, error)
	SetChannelIndex(ctx context.Context, index int) error
}

type ProgrammeLookup interface {
	Current(ctx context.Context, channelID string, now time.Time) (*model.Programme, error)
}

// Directory is the ordered channel list and the active position within
// it. Channels are ordered by number; unnumbered channels come last.
type Directory struct {
	mu sync.Mutex

	ctx    context.Context
	store  ChannelStore
	index  IndexStore
	saver  *indexWriter
	lookup ProgrammeLookup
	logger logger.Logger
	now    func() time.Time

	channels []model.Channel
	pos      int
	current  *model.Channel

	subs *xsync.MapOf[uuid.UUID, *Subscription]
}

// New creates an empty directory. ctx bounds the background work: the
// programme lookups that accompany change events and the writer persisting
// the active position.
func New(ctx context.Context, store ChannelStore, index IndexStore, lookup ProgrammeLookup, log logger.Logger) *Directory {
	d := &Directory{
		ctx:    ctx,
		store:  store,
		index:  index,
		saver:  newIndexWriter(index, log),
		lookup: lookup,
		logger: log,
		now:    time.Now,
		subs:   xsync.NewMapOf[uuid.UUID, *Subscription](),
	}
	go d.saver.run(ctx)

	return d
}

// Load reads the channel list and restores the persisted position,
// clamping it into range. The restored channel is published.
func (d *Directory) Load(ctx context.Context) error {
	channels, err := d.store.ListChannels(ctx, database.ChannelByNumber)
	if err != nil {
		return fmt.Errorf("error loading channels: %w", err)
	}

	d.saver.discard()
	stored, err := d.index.ChannelIndex(ctx)
	if err != nil {
		d.logger.Warnf("Discarding unreadable channel index: %v", err)
		stored = -1
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.channels = channels
	d.pos = stored
	d.current = nil

	if len(channels) == 0 {
		d.pos = 0
		return nil
	}

	d.selectChannel(clamp(stored, len(channels)))
	return nil
}

// Reload refreshes the channel list after the cache changed. The active
// channel is kept when it still exists.
func (d *Directory) Reload(ctx context.Context) error {
	channels, err := d.store.ListChannels(ctx, database.ChannelByNumber)
	if err != nil {
		return fmt.Errorf("error reloading channels: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.channels = channels
	if len(channels) == 0 {
		d.pos = 0
		d.current = nil
		return nil
	}

	target := clamp(d.pos, len(channels))
	if d.current != nil {
		for i, ch := range channels {
			if ch.ID == d.current.ID {
				target = i
				break
			}
		}
	}

	d.selectChannel(target)
	return nil
}

// Flush waits until the active position is persisted.
func (d *Directory) Flush(ctx context.Context) error {
	return d.saver.flush(ctx)
}

func (d *Directory) Channels() []model.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]model.Channel(nil), d.channels...)
}

// Current returns the active channel; ok is false when the directory is
// empty.
func (d *Directory) Current() (model.Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.active()
}

func (d *Directory) Index() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pos
}

// ChannelUp moves to the next channel, staying put on the last one.
func (d *Directory) ChannelUp() (model.Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pos < len(d.channels)-1 {
		d.selectChannel(d.pos + 1)
	}
	return d.active()
}

// ChannelDown moves to the previous channel, staying put on the first one.
func (d *Directory) ChannelDown() (model.Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pos > 0 && len(d.channels) > 0 {
		d.selectChannel(d.pos - 1)
	}
	return d.active()
}

// SelectByNumber activates the first channel carrying number n. A number
// below the lowest channel number is read relative to it, so with channels
// 101..199 "3" selects 103. found is false when nothing matches; the
// active channel is unchanged then.
func (d *Directory) SelectByNumber(n int) (model.Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	lowest, ok := d.lowestNumber()
	if !ok {
		return model.Channel{}, false
	}
	if n < lowest {
		n += lowest - 1
	}

	for i, ch := range d.channels {
		if ch.Number != nil && *ch.Number == n {
			d.selectChannel(i)
			return ch, true
		}
	}
	return model.Channel{}, false
}

// SelectID activates the channel with the given id.
func (d *Directory) SelectID(id string) (model.Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, ch := range d.channels {
		if ch.ID == id {
			d.selectChannel(i)
			return ch, true
		}
	}
	return model.Channel{}, false
}

// Subscribe registers a listener for ChannelChange events.
func (d *Directory) Subscribe(buffer int) *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		events: make(chan ChannelChange, max(buffer, 1)),
		dir:    d,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.subs.Store(sub.id, sub)
	return sub
}

func (d *Directory) active() (model.Channel, bool) {
	if len(d.channels) == 0 {
		return model.Channel{}, false
	}
	return d.channels[d.pos], true
}

func (d *Directory) lowestNumber() (int, bool) {
	lowest, found := 0, false
	for _, ch := range d.channels {
		if ch.Number != nil && (!found || *ch.Number < lowest) {
			lowest, found = *ch.Number, true
		}
	}
	return lowest, found
}

// selectChannel is the only place the active channel changes. It queues
// the position for persisting and publishes a ChannelChange when the channel identity
// differs from the last published one. d.mu must be held.
func (d *Directory) selectChannel(i int) {
	if i != d.pos {
		d.saver.queue(i)
		d.pos = i
	}

	ch := d.channels[i]
	if d.current != nil && d.current.ID == ch.ID {
		return
	}
	d.current = &ch

	d.publish(ch)
}

func (d *Directory) publish(ch model.Channel) {
	event := ChannelChange{Channel: ch, Programme: newPendingProgramme()}

	go func(at time.Time) {
		ctx, cancel := context.WithTimeout(d.ctx, lookupTimeout)
		defer cancel()

		programme, err := d.lookup.Current(ctx, ch.ID, at)
		if err != nil {
			d.logger.Warnf("Error looking up current programme for %s: %v", ch.ID, err)
		}
		event.Programme.resolve(programme, err)
	}(d.now())

	d.logger.Debugf("Channel changed to %s (%s)", ch.Name, ch.ID)

	d.subs.Range(func(id uuid.UUID, sub *Subscription) bool {
		if !sub.deliver(event) {
			d.logger.Warnf("Subscriber %s is not keeping up, dropping channel change", id)
		}
		return true
	})
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
