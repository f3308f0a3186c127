package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
	"github.com/spec-kit/helpdesk-bot/internal/serializer"
)

type memoryStore struct {
	mu      sync.Mutex
	saved   *Snapshot
	saves   int
	saveErr error
}

func (m *memoryStore) Load(ctx context.Context) (*Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, m.saved != nil, nil
}

func (m *memoryStore) Save(ctx context.Context, snapshot *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = snapshot
	return nil
}

func (m *memoryStore) Ping(ctx context.Context) error { return nil }

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func seeded(t *testing.T) (*registry.Registry, *leaderboard.Aggregator) {
	t.Helper()
	reg := registry.New()
	if _, err := reg.Create("C1", "1.1", "2.2"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, _, err := reg.Mutate("2.2", func(tk *domain.Ticket) bool { return tk.Claim("U1") }); err != nil {
		t.Fatalf("Mutate returned error: %v", err)
	}
	board := leaderboard.New()
	board.Record("U1", time.UnixMilli(1000))
	board.Record("U2", time.UnixMilli(2000))
	return reg, board
}

func newPersister(t *testing.T, store Store, reg *registry.Registry, board *leaderboard.Aggregator) *Persister {
	t.Helper()
	ser := serializer.New(2, 4, nil)
	t.Cleanup(ser.Close)
	return NewPersister(PersisterDependencies{Store: store, Serializer: ser, Registry: reg, Leaderboard: board})
}

func TestFileStoreRoundTripUsesDocumentLayout(t *testing.T) {
	reg, board := seeded(t)
	path := filepath.Join(t.TempDir(), "ticket-data.json")
	store := NewFileStore(path)

	if _, ok, err := store.Load(context.Background()); ok || err != nil {
		t.Fatalf("missing file should load nothing, got ok=%v err=%v", ok, err)
	}
	if err := store.Save(context.Background(), NewSnapshot(reg.Snapshot(), board.Snapshot())); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	for _, key := range []string{"tickets", "ticketsByOriginalTs", "lbForToday", "ticketResolutions"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("document missing %q: %s", key, raw)
		}
	}
	if !strings.Contains(string(raw), `"ticketMessageTs": "2.2"`) || !strings.Contains(string(raw), `"slack_id": "U1"`) {
		t.Fatalf("unexpected document layout: %s", raw)
	}

	loadedReg, loadedBoard := registry.New(), leaderboard.New()
	p := newPersister(t, store, loadedReg, loadedBoard)
	if ok, err := p.Load(context.Background(), LoadOptions{}); !ok || err != nil {
		t.Fatalf("Load returned ok=%v err=%v", ok, err)
	}
	ticket, err := loadedReg.GetByOriginal("C1", "1.1")
	if err != nil || ticket.TicketID != "2.2" || len(ticket.Claimers) != 1 {
		t.Fatalf("unexpected loaded ticket %+v %v", ticket, err)
	}
	if loadedBoard.Len() != 2 || len(loadedBoard.Rolling()) != 2 {
		t.Fatalf("unexpected loaded leaderboard log=%d rolling=%v", loadedBoard.Len(), loadedBoard.Rolling())
	}
}

func TestLoadReplacesExistingState(t *testing.T) {
	reg, board := seeded(t)
	store := &memoryStore{saved: NewSnapshot(registry.New().Snapshot(), leaderboard.New().Snapshot())}
	p := newPersister(t, store, reg, board)

	if _, err := p.Load(context.Background(), LoadOptions{}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if reg.Len() != 0 || board.Len() != 0 {
		t.Fatalf("load must replace, not merge: tickets=%d log=%d", reg.Len(), board.Len())
	}
}

func TestLoadCanRebuildRolling(t *testing.T) {
	reg, board := seeded(t)
	snap := NewSnapshot(reg.Snapshot(), board.Snapshot())
	snap.LBForToday = []SnapshotRollingEntry{{SlackID: "U9", CountOfTickets: 7}}
	p := newPersister(t, &memoryStore{saved: snap}, registry.New(), board)

	since := time.UnixMilli(1500)
	if _, err := p.Load(context.Background(), LoadOptions{RollingFrom: &since}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	rolling := board.Rolling()
	if len(rolling) != 1 || rolling[0].UserID != "U2" || rolling[0].Count != 1 {
		t.Fatalf("rolling should be re-derived from the log, got %+v", rolling)
	}
}

func TestPersisterRunCoalescesAndFlushes(t *testing.T) {
	reg, board := seeded(t)
	store := &memoryStore{}
	p := newPersister(t, store, reg, board)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	for i := 0; i < 50; i++ {
		p.Trigger()
	}
	deadline := time.Now().Add(5 * time.Second)
	for store.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.count() == 0 {
		t.Fatalf("triggered save never happened")
	}
	if store.count() > 50 {
		t.Fatalf("saves should coalesce, got %d", store.count())
	}

	before := store.count()
	cancel()
	<-done
	if store.count() <= before {
		t.Fatalf("expected a final flush on shutdown, saves %d -> %d", before, store.count())
	}
}

func TestSaveFailureIsReported(t *testing.T) {
	reg, board := seeded(t)
	store := &memoryStore{saveErr: errors.New("disk full")}
	p := newPersister(t, store, reg, board)
	if err := p.SaveNow(context.Background()); err == nil {
		t.Fatalf("expected error")
	}

	store.saveErr = nil
	if err := p.SaveNow(context.Background()); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if len(store.saved.Tickets) != 1 {
		t.Fatalf("retry should write current state")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("migrationNames returned error: %v", err)
	}
	if len(names) == 0 || names[0] != "001_create_bot_snapshots.sql" {
		t.Fatalf("unexpected migrations %v", names)
	}
}
