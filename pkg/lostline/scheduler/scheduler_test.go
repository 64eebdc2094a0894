package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	expireCut time.Time
	pruneCut  time.Time
	expires   int
	prunes    int
	err       error
}

func (f *fakeStore) ExpirePendingReports(_ context.Context, cutoff time.Time) (int64, error) {
	f.expires++
	f.expireCut = cutoff
	return 1, f.err
}

func (f *fakeStore) PruneSessions(_ context.Context, cutoff time.Time) (int64, error) {
	f.prunes++
	f.pruneCut = cutoff
	return 1, f.err
}

func TestStart_InvalidSchedule(t *testing.T) {
	t.Parallel()

	s := New(Config{Schedule: "not a cron expression"}, &fakeStore{}, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected an error for an invalid schedule")
	}
}

func TestRunMaintenance(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	s := New(Config{
		Schedule:       "@daily",
		UnclaimedAfter: 30 * 24 * time.Hour,
		SessionTTL:     90 * 24 * time.Hour,
	}, store, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	s.runMaintenance()

	if store.expires != 1 || store.prunes != 1 {
		t.Fatalf("expires = %d, prunes = %d", store.expires, store.prunes)
	}
	// Cutoffs sit the configured durations in the past.
	if d := time.Since(store.expireCut); d < 29*24*time.Hour || d > 31*24*time.Hour {
		t.Errorf("expire cutoff %v in the past", d)
	}
	if d := time.Since(store.pruneCut); d < 89*24*time.Hour || d > 91*24*time.Hour {
		t.Errorf("prune cutoff %v in the past", d)
	}
}

func TestRunMaintenance_SkipsDisabledJobs(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	s := New(Config{Schedule: "@daily"}, store, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	s.runMaintenance()
	if store.expires != 0 || store.prunes != 0 {
		t.Errorf("disabled jobs ran: expires = %d, prunes = %d", store.expires, store.prunes)
	}
}

func TestRunMaintenance_StoreErrorLoggedNotFatal(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("database locked")}
	s := New(Config{Schedule: "@daily", UnclaimedAfter: time.Hour, SessionTTL: time.Hour}, store, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	// Must not panic; errors are logged and the pass continues.
	s.runMaintenance()
	if store.expires != 1 || store.prunes != 1 {
		t.Errorf("both jobs should still run: expires = %d, prunes = %d", store.expires, store.prunes)
	}
}
