package membership

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
)

// Fetcher lists the members of a channel.
type Fetcher interface {
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)
}

// Cache holds the staff channel member set. Refresh swaps the whole set
// at once; readers never wait on a refresh.
type Cache struct {
	members atomic.Pointer[map[string]struct{}]
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	empty := map[string]struct{}{}
	c.members.Store(&empty)
	return c
}

// Contains reports whether userID is a cached member.
func (c *Cache) Contains(userID string) bool {
	if userID == "" {
		return false
	}
	_, ok := (*c.members.Load())[userID]
	return ok
}

// Members returns the cached ids, sorted.
func (c *Cache) Members() []string {
	set := *c.members.Load()
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of cached members.
func (c *Cache) Len() int {
	return len(*c.members.Load())
}

// Replace installs a new member set.
func (c *Cache) Replace(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	c.members.Store(&set)
}

// Refresh fetches channelID's members and installs them. On error the
// previous set stays in place.
func (c *Cache) Refresh(ctx context.Context, fetcher Fetcher, channelID string) (int, error) {
	ids, err := fetcher.ChannelMembers(ctx, channelID)
	if err != nil {
		return 0, fmt.Errorf("fetch members of %s: %w", channelID, err)
	}
	c.Replace(ids)
	return len(ids), nil
}
