package stores

import (
	"encoding/json"
	"testing"
	"time"
)

func memoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStoreSimple(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndFetchTurns(t *testing.T) {
	store := memoryStore(t)

	artifacts := map[string]interface{}{
		"txHashes":  []string{"0x01"},
		"citations": []string{"https://a"},
	}
	if err := store.SaveTurn("sess-1", "first question", "first answer", artifacts, false); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTurn("sess-1", "second question", "", nil, true); err != nil {
		t.Fatal(err)
	}

	turns, err := store.FetchTurns("sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Sequence != 1 || turns[1].Sequence != 2 {
		t.Errorf("sequences = %d, %d", turns[0].Sequence, turns[1].Sequence)
	}
	if turns[0].AnswerText != "first answer" || turns[0].Aborted {
		t.Errorf("first turn = %#v", turns[0])
	}
	if !turns[1].Aborted {
		t.Error("second turn should be marked aborted")
	}

	var stored map[string]interface{}
	if err := json.Unmarshal([]byte(turns[0].ArtifactsJSON), &stored); err != nil {
		t.Fatalf("artifacts not valid JSON: %v", err)
	}
	if _, ok := stored["txHashes"]; !ok {
		t.Errorf("artifacts = %s", turns[0].ArtifactsJSON)
	}
}

func TestSaveTurnCreatesSessionRecord(t *testing.T) {
	store := memoryStore(t)

	// No explicit CreateSession; first SaveTurn must bootstrap the session.
	if err := store.SaveTurn("implicit", "q", "a", nil, false); err != nil {
		t.Fatal(err)
	}

	var sess ChatSession
	if err := store.db.Where("session_id = ?", "implicit").First(&sess).Error; err != nil {
		t.Fatalf("session record not created: %v", err)
	}
	if sess.TurnCount != 1 {
		t.Errorf("turn count = %d", sess.TurnCount)
	}
}

func TestFetchTurnsLastN(t *testing.T) {
	store := memoryStore(t)

	for i := 0; i < 5; i++ {
		if err := store.SaveTurn("sess-1", "q", "a", nil, false); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := store.FetchTurns("sess-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Sequence != 4 || turns[1].Sequence != 5 {
		t.Errorf("sequences = %d, %d, want the last two", turns[0].Sequence, turns[1].Sequence)
	}
}

func TestListSessionsForWallet(t *testing.T) {
	store := memoryStore(t)

	wallet := "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	if err := store.CreateSession("s1", wallet, "1"); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSession("s2", wallet, "137"); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSession("s3", "0x0000000000000000000000000000000000000001", "1"); err != nil {
		t.Fatal(err)
	}

	sessions, err := store.ListSessionsForWallet(wallet)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	for _, s := range sessions {
		if s.WalletAddress != wallet {
			t.Errorf("wrong wallet in listing: %#v", s)
		}
	}
}

func TestPruneSessionsBefore(t *testing.T) {
	store := memoryStore(t)

	if err := store.CreateSession("old", "0x01", "1"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTurn("old", "q", "a", nil, false); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSession("fresh", "0x01", "1"); err != nil {
		t.Fatal(err)
	}

	// Backdate the old session past the cutoff.
	stale := time.Now().Add(-48 * time.Hour)
	if err := store.db.Model(&ChatSession{}).Where("session_id = ?", "old").Update("updated_at", stale).Error; err != nil {
		t.Fatal(err)
	}

	n, err := store.PruneSessionsBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}

	turns, err := store.FetchTurns("old", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("pruned session still has %d turns", len(turns))
	}

	sessions, err := store.ListSessionsForWallet("0x01")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "fresh" {
		t.Errorf("sessions after prune = %#v", sessions)
	}
}

func TestPruneNothingStale(t *testing.T) {
	store := memoryStore(t)
	if err := store.CreateSession("s1", "0x01", "1"); err != nil {
		t.Fatal(err)
	}
	n, err := store.PruneSessionsBefore(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("pruned = %d, want 0", n)
	}
}

func TestNewStoreFactory(t *testing.T) {
	store, err := NewStore(NewStoreConfig("sqlite", ":memory:"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Ping(); err != nil {
		t.Errorf("ping failed: %v", err)
	}
	store.Close()

	if _, err := NewStore(NewStoreConfig("mongodb", "whatever")); err == nil {
		t.Error("expected error for unsupported store type")
	}

	if _, err := NewSQLiteStore(NewStoreConfig("postgres", ":memory:")); err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestRetentionJobValidation(t *testing.T) {
	store := memoryStore(t)

	if _, err := StartRetentionJob(store, "0 3 * * *", 0); err == nil {
		t.Error("expected error for non-positive maxAge")
	}
	if _, err := StartRetentionJob(store, "not a schedule", time.Hour); err == nil {
		t.Error("expected error for invalid cron expression")
	}

	job, err := StartRetentionJob(store, "0 3 * * *", 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	job.Stop()
}
