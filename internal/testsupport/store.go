package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gavel/internal/config"
	"gavel/internal/hearings"
)

// MustOpenStore opens a hearings.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *hearings.Store {
	t.Helper()

	store, err := hearings.Open(cfg)
	if err != nil {
		t.Fatalf("hearings.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// AddHearing registers a hearing for tests using the provided store. The
// source URL is derived from the title when not supplied.
func AddHearing(t testing.TB, store *hearings.Store, title, sourceURL string) *hearings.Hearing {
	t.Helper()

	if sourceURL == "" {
		sourceURL = fmt.Sprintf("https://hearings.test/%s", title)
	}
	hearing, _, err := store.Add(context.Background(), hearings.NewHearing{
		CommitteeCode: "JUD",
		Title:         title,
		HearingDate:   "2026-03-14",
		SourceURL:     sourceURL,
	})
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return hearing
}

// MustLease claims a hearing for tests and fails the test when the claim is
// not won.
func MustLease(t testing.TB, store *hearings.Store, hearing *hearings.Hearing, owner string) {
	t.Helper()

	ok, err := store.AcquireLease(context.Background(), hearing.ID, owner, time.Minute)
	if err != nil {
		t.Fatalf("store.AcquireLease: %v", err)
	}
	if !ok {
		t.Fatalf("expected to win lease for hearing %d", hearing.ID)
	}
	hearing.LockOwner = owner
}
