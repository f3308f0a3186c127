// Package leaderboard keeps the append-only resolution log and the
// resettable daily accumulator. Rankings over the log never depend on the
// accumulator, so resetting the daily counts cannot lose history.
package leaderboard

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// BroadcastSize caps the daily broadcast.
const BroadcastSize = 10

// Aggregator owns the resolution log and the rolling accumulator.
type Aggregator struct {
	mu      sync.RWMutex
	log     []domain.ResolutionRecord
	rolling []domain.LeaderboardEntry
}

// State is a copy of the aggregator for persistence.
type State struct {
	Log     []domain.ResolutionRecord
	Rolling []domain.LeaderboardEntry
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Record appends a resolution and credits the rolling accumulator.
func (a *Aggregator) Record(resolverID string, at time.Time) domain.ResolutionRecord {
	record := domain.ResolutionRecord{ResolverID: resolverID, TimestampMs: at.UnixMilli()}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = append(a.log, record)
	a.rolling = increment(a.rolling, resolverID)
	return record
}

// Rank folds the log into per-user counts, optionally restricted to
// records at or after since. Sorted by count descending; ties keep the
// order in which each user first appears in the filtered log.
func (a *Aggregator) Rank(since *time.Time) []domain.LeaderboardEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var sinceMs int64
	if since != nil {
		sinceMs = since.UnixMilli()
	}
	var entries []domain.LeaderboardEntry
	for _, record := range a.log {
		if since != nil && record.TimestampMs < sinceMs {
			continue
		}
		entries = increment(entries, record.ResolverID)
	}
	return sorted(entries)
}

// Rolling returns the accumulator ranking, sorted like Rank.
func (a *Aggregator) Rolling() []domain.LeaderboardEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sorted(a.rolling)
}

// ResetRollingDaily clears the accumulator and returns its final ranking.
// The log is untouched.
func (a *Aggregator) ResetRollingDaily() []domain.LeaderboardEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	final := sorted(a.rolling)
	a.rolling = nil
	return final
}

// RebuildRolling replaces the accumulator with counts from log records at
// or after since.
func (a *Aggregator) RebuildRolling(since time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sinceMs := since.UnixMilli()
	var rolling []domain.LeaderboardEntry
	for _, record := range a.log {
		if record.TimestampMs >= sinceMs {
			rolling = increment(rolling, record.ResolverID)
		}
	}
	a.rolling = rolling
}

// Len returns the number of records in the log.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.log)
}

// Snapshot copies the log and the accumulator.
func (a *Aggregator) Snapshot() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return State{
		Log:     append([]domain.ResolutionRecord(nil), a.log...),
		Rolling: append([]domain.LeaderboardEntry(nil), a.rolling...),
	}
}

// Restore replaces the aggregator contents with state.
func (a *Aggregator) Restore(state State) {
	log := append([]domain.ResolutionRecord(nil), state.Log...)
	var rolling []domain.LeaderboardEntry
	for _, entry := range state.Rolling {
		if entry.UserID == "" || entry.Count <= 0 {
			continue
		}
		rolling = add(rolling, entry.UserID, entry.Count)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = log
	a.rolling = rolling
}

// StartOfDay returns local midnight of now's day in now's location.
func StartOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// SevenDaysAgo returns now minus one week.
func SevenDaysAgo(now time.Time) time.Time {
	return now.Add(-7 * 24 * time.Hour)
}

// FormatBroadcast renders the daily top list posted to the staff queue.
func FormatBroadcast(entries []domain.LeaderboardEntry) string {
	var b strings.Builder
	b.WriteString("Todays top 10 for ticket closes:\n")
	for i, entry := range entries {
		if i >= BroadcastSize {
			break
		}
		fmt.Fprintf(&b, "%d - %s resolved *%d* today!\n", i+1, domain.Mention(entry.UserID), entry.Count)
	}
	return b.String()
}

func increment(entries []domain.LeaderboardEntry, userID string) []domain.LeaderboardEntry {
	return add(entries, userID, 1)
}

func add(entries []domain.LeaderboardEntry, userID string, n int) []domain.LeaderboardEntry {
	for i := range entries {
		if entries[i].UserID == userID {
			entries[i].Count += n
			return entries
		}
	}
	return append(entries, domain.LeaderboardEntry{UserID: userID, Count: n})
}

func sorted(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	out := append([]domain.LeaderboardEntry{}, entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}
