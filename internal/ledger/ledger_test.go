package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/shared"
	"github.com/byteball/attestation-kit/internal/store"
	"github.com/byteball/attestation-kit/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userAddress(t *testing.T) string {
	t.Helper()
	key, err := wallet.GenerateKey()
	require.NoError(t, err)
	return wallet.AddressFromPubKey(&key.PublicKey)
}

func TestLocalPublishRecordsAttestation(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"), shared.DefaultRetryPolicy())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	key, err := wallet.GenerateKey()
	require.NoError(t, err)
	l := NewLocal(key, db, nil)

	address := userAddress(t)
	profile := domain.Fields{"userId": "42", "username": "alice"}

	unit, err := l.PublishAttestation(ctx, address, profile)
	require.NoError(t, err)
	assert.Len(t, unit, UnitLength)

	record, err := db.GetAttestation(ctx, unit)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, address, record.Address)
	assert.Equal(t, l.Attestor(), record.Attestor)
	assert.True(t, profile.Equal(record.Profile))
	assert.NotEmpty(t, record.Signature)

	second, err := l.PublishAttestation(ctx, address, profile)
	require.NoError(t, err)
	assert.NotEqual(t, unit, second, "re-attestation gets a new unit")
}

func TestLocalRejectsBadInput(t *testing.T) {
	key, err := wallet.GenerateKey()
	require.NoError(t, err)
	l := NewLocal(key, nil, nil)

	_, err = l.PublishAttestation(context.Background(), "not-an-address", domain.Fields{"a": "1"})
	assert.ErrorIs(t, err, ErrCompose)

	_, err = l.PublishAttestation(context.Background(), userAddress(t), domain.Fields{})
	assert.ErrorIs(t, err, ErrCompose)
}

func TestHTTPClientPublish(t *testing.T) {
	address := userAddress(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attestations", r.URL.Path)
		var msg Message
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "attestation", msg.App)
		assert.Equal(t, "inline", msg.PayloadLocation)
		assert.Equal(t, address, msg.Payload.Address)
		assert.Equal(t, "alice", msg.Payload.Profile["username"])
		_ = json.NewEncoder(w).Encode(publishResponse{Unit: "unit123"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second, nil)
	unit, err := c.PublishAttestation(context.Background(), address, domain.Fields{"username": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "unit123", unit)
}

func TestHTTPClientStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		want     error
		attempts int32
	}{
		{name: "insufficient funds", status: http.StatusPaymentRequired, want: ErrInsufficientFunds, attempts: 1},
		{name: "compose", status: http.StatusBadRequest, want: ErrCompose, attempts: 1},
		{name: "broadcast is retried", status: http.StatusBadGateway, want: ErrBroadcast, attempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(publishResponse{Error: "nope"})
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, time.Second, nil, WithRetries(2, time.Millisecond))
			_, err := c.PublishAttestation(context.Background(), "ADDR", domain.Fields{"a": "1"})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.attempts, calls.Load())
		})
	}
}

func TestHTTPClientRecoversAfterBroadcastFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(publishResponse{Unit: "unit-after-retry"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil, WithRetries(2, time.Millisecond))
	unit, err := c.PublishAttestation(context.Background(), "ADDR", domain.Fields{"a": "1"})
	require.NoError(t, err)
	assert.Equal(t, "unit-after-retry", unit)
	assert.Equal(t, int32(2), calls.Load())
}
