package updater

import "time"

const DefaultCacheDuration = 24 * time.Hour

type Decision int

const (
	// Fresh means the cache can be used as is.
	Fresh Decision = iota
	// IngestBlocking means the cache is empty and must be filled before use.
	IngestBlocking
	// IngestBackground means the cache is usable but stale.
	IngestBackground
)

func (d Decision) String() string {
	switch d {
	case Fresh:
		return "fresh"
	case IngestBlocking:
		return "blocking ingest"
	case IngestBackground:
		return "background ingest"
	}
	return "unknown"
}

// Policy decides when the cache needs to be rebuilt.
type Policy struct {
	MaxAge time.Duration
}

// Decide applies the presence gate (nothing cached) and the expiry gate
// (last full ingestion older than MaxAge, or never recorded).
func (p Policy) Decide(channels, programmes int, lastFetch time.Time, fetched bool, now time.Time) Decision {
	if channels == 0 && programmes == 0 {
		return IngestBlocking
	}

	maxAge := p.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultCacheDuration
	}

	if !fetched || now.Sub(lastFetch) > maxAge {
		return IngestBackground
	}
	return Fresh
}
