package membership

import (
	"context"
	"errors"
	"testing"
)

type stubFetcher struct {
	ids []string
	err error
}

func (s stubFetcher) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return s.ids, s.err
}

func TestRefreshReplacesSet(t *testing.T) {
	cache := NewCache()
	if cache.Contains("U1") {
		t.Fatalf("empty cache should not contain members")
	}
	n, err := cache.Refresh(context.Background(), stubFetcher{ids: []string{"U2", "U1", ""}}, "C-staff")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if n != 3 || cache.Len() != 2 {
		t.Fatalf("unexpected sizes: fetched=%d cached=%d", n, cache.Len())
	}
	if got := cache.Members(); got[0] != "U1" || got[1] != "U2" {
		t.Fatalf("unexpected members: %v", got)
	}

	if _, err := cache.Refresh(context.Background(), stubFetcher{ids: []string{"U3"}}, "C-staff"); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if cache.Contains("U1") || !cache.Contains("U3") {
		t.Fatalf("refresh should replace, not merge: %v", cache.Members())
	}
}

func TestFailedRefreshKeepsPreviousSet(t *testing.T) {
	cache := NewCache()
	cache.Replace([]string{"U1"})
	if _, err := cache.Refresh(context.Background(), stubFetcher{err: errors.New("rate limited")}, "C-staff"); err == nil {
		t.Fatalf("expected refresh error")
	}
	if !cache.Contains("U1") {
		t.Fatalf("failed refresh dropped the cached set")
	}
}
