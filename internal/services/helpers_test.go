package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/protocol"
)

// memPersister records every saved snapshot.
type memPersister struct {
	mu      sync.Mutex
	saved   []*models.Snapshot
	loadErr error
	saveErr error
	initial *models.Snapshot
}

func (p *memPersister) Load(ctx context.Context) (*models.Snapshot, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.initial != nil {
		return p.initial.Clone(), nil
	}
	return models.NewSnapshot(), nil
}

func (p *memPersister) Save(ctx context.Context, snap *models.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saved = append(p.saved, snap)
	return nil
}

func (p *memPersister) saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

func (p *memPersister) last() *models.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saved) == 0 {
		return nil
	}
	return p.saved[len(p.saved)-1]
}

var errDiskFull = errors.New("disk full")

type routerFixture struct {
	router    *EventRouter
	hub       *ChannelHub
	store     *StateStore
	presence  *SessionRegistry
	persister *memPersister
}

func newRouterFixture(t *testing.T, policies protocol.PolicyTable) *routerFixture {
	t.Helper()
	persister := &memPersister{}
	store := NewStateStore(models.NewSnapshot(), NewInlineSnapshotWriter(persister))
	hub := NewChannelHub(64)
	presence := NewSessionRegistry()
	return &routerFixture{
		router:    NewEventRouter(store, presence, hub, policies),
		hub:       hub,
		store:     store,
		presence:  presence,
		persister: persister,
	}
}

// connect opens a channel and consumes its initial snapshot.
func (f *routerFixture) connect(t *testing.T, id string) <-chan []byte {
	t.Helper()
	ch := f.router.Connect(id)
	if out := nextEvent(t, ch); out.Event != protocol.EventStateInitial {
		t.Fatalf("first frame = %q, expected %q", out.Event, protocol.EventStateInitial)
	}
	return ch
}

func (f *routerFixture) handle(t *testing.T, origin string, ev protocol.Inbound) {
	t.Helper()
	f.router.Handle(origin, ev)
}

func nextEvent(t *testing.T, ch <-chan []byte) protocol.Outbound {
	t.Helper()
	select {
	case frame, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		out, err := protocol.DecodeOutbound(frame)
		if err != nil {
			t.Fatalf("DecodeOutbound() error = %v", err)
		}
		return out
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return protocol.Outbound{}
}

func expectSilence(t *testing.T, ch <-chan []byte, who string) {
	t.Helper()
	select {
	case frame := <-ch:
		t.Errorf("%s should receive nothing, got %s", who, frame)
	default:
	}
}
