package statemanager_test

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/RadEZorack/augmego-core/pkg/state/statemanager"
	"github.com/RadEZorack/augmego-core/pkg/transport/transporttest"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

func user(id string) *state.Identity {
	return &state.Identity{ID: id, Name: "name-" + id}
}

// --- Connection and User Management Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	conn := transporttest.NewRecorder()

	// 1. Register
	stateConn, err := m.RegisterConnection(conn, "127.0.0.1", nil, "")
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if stateConn.ID != conn.ID() {
		t.Errorf("Registered connection ID mismatch")
	}
	if stateConn.Authenticated() {
		t.Errorf("Anonymous connection reported as authenticated")
	}

	// 2. Get
	retrievedConn, found := m.GetConnection(conn.ID())
	if !found {
		t.Fatal("GetConnection failed to find registered connection")
	}
	if retrievedConn.ID != conn.ID() {
		t.Errorf("Retrieved connection ID mismatch")
	}

	// 3. Deregister
	removed, remaining, err := m.DeregisterConnection(conn.ID())
	if err != nil {
		t.Fatalf("DeregisterConnection failed: %v", err)
	}
	if removed == nil || remaining != 0 {
		t.Errorf("Expected removed connection and 0 remaining, got %v, %d", removed, remaining)
	}
	_, found = m.GetConnection(conn.ID())
	if found {
		t.Error("Found connection after it should have been deregistered")
	}

	// 4. Deregister twice is a no-op
	removed, _, err = m.DeregisterConnection(conn.ID())
	if err != nil || removed != nil {
		t.Errorf("Second deregister should be a no-op, got %v, %v", removed, err)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	m := newTestManager()
	conn := transporttest.NewRecorder()
	if _, err := m.RegisterConnection(conn, "1.1.1.1", nil, ""); err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if _, err := m.RegisterConnection(conn, "1.1.1.1", nil, ""); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestUserConnectionsAndOnline(t *testing.T) {
	m := newTestManager()
	userID := "user-1"
	conn1 := transporttest.NewRecorder()
	conn2 := transporttest.NewRecorder()

	m.RegisterConnection(conn1, "1.1.1.1", user(userID), "")
	if count := m.GetUserConnectionCount(userID); count != 1 {
		t.Errorf("Expected connection count 1, got %d", count)
	}

	m.RegisterConnection(conn2, "2.2.2.2", user(userID), "")
	if count := m.GetUserConnectionCount(userID); count != 2 {
		t.Errorf("Expected connection count 2, got %d", count)
	}
	if conns := m.FindConnectionsForUser(userID); len(conns) != 2 {
		t.Errorf("Expected 2 connections for user, got %d", len(conns))
	}

	// Deregister one connection
	_, remaining, _ := m.DeregisterConnection(conn1.ID())
	if remaining != 1 {
		t.Errorf("Expected 1 remaining connection, got %d", remaining)
	}
	if _, online := m.FindAnyLiveConnectionForUser(userID); !online {
		t.Error("User should still be online with one connection left")
	}

	_, remaining, _ = m.DeregisterConnection(conn2.ID())
	if remaining != 0 {
		t.Errorf("Expected 0 remaining connections, got %d", remaining)
	}
	if _, online := m.FindAnyLiveConnectionForUser(userID); online {
		t.Error("User should be offline after the last connection closed")
	}
	if ids := m.OnlineUserIDs(); len(ids) != 0 {
		t.Errorf("Expected no online users, got %v", ids)
	}
}

func TestFindOldestUserConnection(t *testing.T) {
	m := newTestManager()
	userID := "user-cycle"
	conn1 := transporttest.NewRecorder()
	conn2 := transporttest.NewRecorder()

	m.RegisterConnection(conn1, "1.1.1.1", user(userID), "")
	time.Sleep(5 * time.Millisecond) // Ensure timestamps are different
	m.RegisterConnection(conn2, "2.2.2.2", user(userID), "")

	oldest, found := m.FindOldestUserConnection(userID)
	if !found {
		t.Fatal("Expected to find oldest connection, but did not")
	}
	if oldest.ID != conn1.ID() {
		t.Errorf("Expected oldest connection ID to be %s, got %s", conn1.ID(), oldest.ID)
	}
}

// --- Party Cache Tests ---

func TestSetPartyIDReportsChangedConnections(t *testing.T) {
	m := newTestManager()
	userID := "user-party"
	conn1, conn2 := transporttest.NewRecorder(), transporttest.NewRecorder()
	m.RegisterConnection(conn1, "1.1.1.1", user(userID), "")
	m.RegisterConnection(conn2, "1.1.1.1", user(userID), "party-1")

	changed := m.SetPartyID(userID, "party-1")
	if len(changed) != 1 || changed[0].ID != conn1.ID() {
		t.Fatalf("Expected only conn1 to change, got %d connections", len(changed))
	}
	if got, _ := m.GetConnection(conn1.ID()); got.PartyID() != "party-1" {
		t.Errorf("Expected cached party-1, got %q", got.PartyID())
	}

	if changed := m.SetPartyID(userID, "party-1"); len(changed) != 0 {
		t.Errorf("Expected no changes on identical party id, got %d", len(changed))
	}
	if changed := m.SetPartyID("nobody", "party-1"); len(changed) != 0 {
		t.Errorf("Expected no changes for offline user, got %d", len(changed))
	}
}

func TestRegistryConcurrency(t *testing.T) {
	m := newTestManager()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := transporttest.NewRecorder()
			userID := "user" + string(rune('a'+i%10))
			m.RegisterConnection(conn, "1.1.1.1", user(userID), "")
			m.SetPartyID(userID, "p")
			m.FindConnectionsForUser(userID)
			m.DeregisterConnection(conn.ID())
		}(i)
	}
	wg.Wait()

	if count := m.ConnectionCount(); count != 0 {
		t.Errorf("Expected 0 connections after concurrent churn, got %d", count)
	}
}
