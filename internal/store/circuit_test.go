package store

import (
	"context"
	"testing"
	"time"

	"notifsync/internal/resilience/circuitbreaker"
)

func TestCircuitStateStore_RoundTrip(t *testing.T) {
	rs := NewResilientStore(NewMemoryKV(), testStoreConfig(), WithSleep((&noSleep{}).Sleep))
	css := NewCircuitStateStore(rs, "remote-fetch")

	saved := circuitbreaker.State{
		Status:              circuitbreaker.StatusOpen,
		ConsecutiveFailures: 4,
		LastFailure:         time.Unix(1700000000, 0).UTC(),
		CurrentBackoff:      10 * time.Second,
	}
	if err := css.Save(saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, found, err := css.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !found {
		t.Fatal("expected persisted state to be found")
	}
	if loaded.Status != saved.Status ||
		loaded.ConsecutiveFailures != saved.ConsecutiveFailures ||
		loaded.CurrentBackoff != saved.CurrentBackoff ||
		!loaded.LastFailure.Equal(saved.LastFailure) {
		t.Errorf("state mismatch: saved %+v, loaded %+v", saved, loaded)
	}
}

func TestCircuitStateStore_MissingState(t *testing.T) {
	rs := NewResilientStore(NewMemoryKV(), testStoreConfig(), WithSleep((&noSleep{}).Sleep))
	css := NewCircuitStateStore(rs, "remote-fetch")

	_, found, err := css.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected no persisted state")
	}
}

func TestCircuitStateStore_CorruptStateSurfacesError(t *testing.T) {
	mem := NewMemoryKV()
	rs := NewResilientStore(mem, testStoreConfig(), WithSleep((&noSleep{}).Sleep))
	rs.Save(context.Background(), "circuit:remote-fetch", []byte("{not json"))

	css := NewCircuitStateStore(rs, "remote-fetch")

	_, found, err := css.Load()
	if err == nil {
		t.Error("expected decode error for corrupt state")
	}
	if found {
		t.Error("corrupt state must not report found")
	}
}

func TestCircuitStateStore_KeysAreNamespaced(t *testing.T) {
	rs := NewResilientStore(NewMemoryKV(), testStoreConfig(), WithSleep((&noSleep{}).Sleep))

	a := NewCircuitStateStore(rs, "a")
	b := NewCircuitStateStore(rs, "b")

	if err := a.Save(circuitbreaker.State{Status: circuitbreaker.StatusOpen}); err != nil {
		t.Fatal(err)
	}

	_, found, err := b.Load()
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("circuit 'b' must not see circuit 'a' state")
	}
}
