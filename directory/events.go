package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"livetv-guide/model"
)

// ChannelChange is published whenever the active channel's identity
// changes. The programme on air is resolved asynchronously.
type ChannelChange struct {
	Channel   model.Channel
	Programme *PendingProgramme
}

// PendingProgramme is the eventual result of a current-programme lookup.
type PendingProgramme struct {
	done      chan struct{}
	programme *model.Programme
	err       error
}

func newPendingProgramme() *PendingProgramme {
	return &PendingProgramme{done: make(chan struct{})}
}

func (p *PendingProgramme) resolve(programme *model.Programme, err error) {
	p.programme = programme
	p.err = err
	close(p.done)
}

// Done is closed once the lookup finished.
func (p *PendingProgramme) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the lookup finished or ctx is done. A nil programme
// with a nil error means nothing is on air.
func (p *PendingProgramme) Wait(ctx context.Context) (*model.Programme, error) {
	select {
	case <-p.done:
		return p.programme, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscription receives ChannelChange events until closed. Events are
// dropped, not queued, when the buffer is full.
type Subscription struct {
	id     uuid.UUID
	events chan ChannelChange
	dir    *Directory
	once   sync.Once
}

func (s *Subscription) ID() uuid.UUID {
	return s.id
}

func (s *Subscription) Events() <-chan ChannelChange {
	return s.events
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.dir.mu.Lock()
		defer s.dir.mu.Unlock()

		s.dir.subs.Delete(s.id)
		close(s.events)
	})
}

func (s *Subscription) deliver(event ChannelChange) bool {
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}
