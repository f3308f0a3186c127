package domain

import "time"

// ResolutionRecord is an immutable fact: resolverID closed a ticket at TimestampMs.
type ResolutionRecord struct {
	ResolverID  string
	TimestampMs int64
}

// At returns the record time.
func (r ResolutionRecord) At() time.Time {
	return time.UnixMilli(r.TimestampMs)
}

// LeaderboardEntry is a derived ranking row.
type LeaderboardEntry struct {
	UserID string
	Count  int
}
