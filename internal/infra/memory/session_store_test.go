package memory

import (
	"testing"

	"lesson-progress-service/internal/app"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	ledger := app.NewLedger(NewStore(), nil)
	create := func(id string) *app.LessonSession {
		return app.NewLessonSession(id, ledger, NewStore(), nil, app.TrackerOptions{}, nil)
	}

	session, created := store.GetOrCreate("6e-1", create)
	if session == nil || !created {
		t.Fatalf("expected session to be created")
	}
	defer session.Close()

	again, created := store.GetOrCreate("6e-1", create)
	if created || again != session {
		t.Fatalf("expected existing session to be reused")
	}
	if _, ok := store.Get("6e-1"); !ok {
		t.Fatalf("expected session present")
	}
	if got := len(store.List()); got != 1 {
		t.Fatalf("expected 1 session listed, got %d", got)
	}

	if _, ok := store.DeleteIfIdle("6e-1"); !ok {
		t.Fatalf("expected idle session removed")
	}
	if _, ok := store.Get("6e-1"); ok {
		t.Fatalf("expected session removed when idle")
	}
}

func TestGetOrCreateAttachedBlocksIdleDelete(t *testing.T) {
	store := NewSessionStore()
	ledger := app.NewLedger(NewStore(), nil)
	create := func(id string) *app.LessonSession {
		return app.NewLessonSession(id, ledger, NewStore(), nil, app.TrackerOptions{}, nil)
	}

	plain, _ := store.GetOrCreate("6e-1", create)
	defer plain.Close()
	if plain.Viewers() != 0 {
		t.Fatalf("expected no viewers, got %d", plain.Viewers())
	}

	attached, created := store.GetOrCreateAttached("6e-1", create)
	if created || attached != plain {
		t.Fatalf("expected existing session to be retained")
	}
	if attached.Viewers() != 1 {
		t.Fatalf("expected 1 viewer, got %d", attached.Viewers())
	}
	if _, ok := store.DeleteIfIdle("6e-1"); ok {
		t.Fatalf("expected attached session to stay")
	}
}
