package cleanup

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/gate"
	"github.com/byteball/attestation-kit/internal/shared"
	"github.com/byteball/attestation-kit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "sessions.db"), shared.DefaultRetryPolicy())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSweepRemovesOnlyIdleSessions(t *testing.T) {
	ctx := context.Background()
	db := newSessionStore(t)

	_, err := db.CreateSession(ctx, "idle", false)
	require.NoError(t, err)
	_, err = db.CreateSession(ctx, "active", false)
	require.NoError(t, err)

	time.Sleep(2100 * time.Millisecond)
	// Mid-conversation write: the order fields are stored, the address is next.
	require.NoError(t, db.SetSessionAttribute(ctx, "active", domain.AttrFields, "userId=42&username=alice"))

	var expired []string
	s := NewSweeper(db, nil, time.Second, func(clientID string) { expired = append(expired, clientID) })

	assert.Equal(t, []string{"idle"}, s.Sweep(ctx))
	assert.Equal(t, []string{"idle"}, expired)

	session, err := db.GetSession(ctx, "active")
	require.NoError(t, err)
	require.NotNil(t, session)
	fields, ok := session.PendingFields()
	require.True(t, ok)
	assert.Equal(t, "alice", fields["username"])

	session, err = db.GetSession(ctx, "idle")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSweepWaitsForClientGate(t *testing.T) {
	ctx := context.Background()
	db := newSessionStore(t)
	g := gate.New()

	_, err := db.CreateSession(ctx, "client-1", false)
	require.NoError(t, err)
	time.Sleep(2100 * time.Millisecond)

	release, err := g.Acquire(ctx, "client-1")
	require.NoError(t, err)

	s := NewSweeper(db, g, time.Second, nil)
	result := make(chan []string, 1)
	go func() { result <- s.Sweep(ctx) }()

	select {
	case <-result:
		t.Fatal("sweep must wait while a handler holds the client's gate")
	case <-time.After(50 * time.Millisecond):
	}

	// The handler holding the gate writes to the session before releasing it.
	require.NoError(t, db.SetSessionAddress(ctx, "client-1", "ADDRESS"))
	release()

	select {
	case removed := <-result:
		assert.Empty(t, removed)
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not finish after release")
	}

	session, err := db.GetSession(ctx, "client-1")
	require.NoError(t, err)
	assert.NotNil(t, session)
}

func TestSweeperRunsUntilCancelled(t *testing.T) {
	db := newSessionStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := db.CreateSession(ctx, "client-1", false)
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		expired []string
	)
	s := NewSweeper(db, nil, time.Nanosecond, func(clientID string) {
		mu.Lock()
		expired = append(expired, clientID)
		mu.Unlock()
	})
	s.Start(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(expired) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSweeperDisabledWithoutTTL(t *testing.T) {
	db := newSessionStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := db.CreateSession(ctx, "client-1", false)
	require.NoError(t, err)

	NewSweeper(db, nil, 0, nil).Start(ctx, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	session, err := db.GetSession(ctx, "client-1")
	require.NoError(t, err)
	assert.NotNil(t, session)
}
