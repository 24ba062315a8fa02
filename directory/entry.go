package directory

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"livetv-guide/model"
)

// NumberEntry buffers typed digits and selects the matching channel once
// no digit arrived for the timeout.
type NumberEntry struct {
	dir     *Directory
	timeout time.Duration

	mu       sync.Mutex
	digits   string
	timer    *time.Timer
	onCommit func(number int, ch model.Channel, found bool)
}

func NewNumberEntry(dir *Directory, timeout time.Duration) *NumberEntry {
	return &NumberEntry{dir: dir, timeout: timeout}
}

// OnCommit registers fn to run after every commit.
func (e *NumberEntry) OnCommit(fn func(number int, ch model.Channel, found bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.onCommit = fn
}

// Type appends digit to the buffer and restarts the commit timer. It
// returns the digits typed so far.
func (e *NumberEntry) Type(digit rune) (string, error) {
	if digit < '0' || digit > '9' {
		return "", fmt.Errorf("invalid channel digit %q", digit)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.digits += string(digit)
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.timeout, func() { e.Commit() })

	return e.digits, nil
}

// Pending returns the digits typed so far.
func (e *NumberEntry) Pending() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.digits
}

// Commit selects the buffered number immediately and clears the buffer.
func (e *NumberEntry) Commit() (model.Channel, bool) {
	e.mu.Lock()
	digits := e.digits
	e.digits = ""
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	onCommit := e.onCommit
	e.mu.Unlock()

	if digits == "" {
		return model.Channel{}, false
	}

	number, err := strconv.Atoi(digits)
	if err != nil {
		return model.Channel{}, false
	}

	ch, found := e.dir.SelectByNumber(number)
	if onCommit != nil {
		onCommit(number, ch, found)
	}
	return ch, found
}
