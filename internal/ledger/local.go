package ledger

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/store"
	"github.com/byteball/attestation-kit/internal/wallet"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

// UnitLength is the length of a unit id produced by Local.
const UnitLength = 44

// Local signs attestation messages with the attestor key and records them
// in the attestation log. It stands in for a full node in development and
// single-operator deployments.
type Local struct {
	key      *ecdsa.PrivateKey
	attestor string
	log      store.AttestationLog
	logger   *slog.Logger
	now      func() time.Time
}

// NewLocal creates a local ledger signing with key.
func NewLocal(key *ecdsa.PrivateKey, log store.AttestationLog, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		key:      key,
		attestor: wallet.AddressFromPubKey(&key.PublicKey),
		log:      log,
		logger:   logger,
		now:      time.Now,
	}
}

// Attestor returns the address attestations are published from.
func (l *Local) Attestor() string {
	return l.attestor
}

// PublishAttestation signs and records the attestation of profile for address.
func (l *Local) PublishAttestation(ctx context.Context, address string, profile domain.Fields) (string, error) {
	if !wallet.IsValidAddress(address) {
		return "", fmt.Errorf("%w: %w", ErrCompose, domain.ErrInvalidAddress)
	}
	if err := profile.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompose, err)
	}

	body, err := json.Marshal(NewMessage(address, profile))
	if err != nil {
		return "", fmt.Errorf("%w: encode message: %v", ErrCompose, err)
	}

	sig, err := crypto.Sign(crypto.Keccak256(body), l.key)
	if err != nil {
		return "", fmt.Errorf("%w: sign message: %v", ErrCompose, err)
	}

	createdAt := l.now()
	unit := unitID(body, sig, createdAt)

	record := &domain.AttestationRecord{
		Unit:      unit,
		Address:   address,
		Profile:   profile,
		Attestor:  l.attestor,
		Signature: base64.StdEncoding.EncodeToString(sig),
		CreatedAt: createdAt,
	}
	if err := l.log.RecordAttestation(ctx, record); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBroadcast, err)
	}

	l.logger.Info("Attestation published", "unit", unit, "address", address, "attestor", l.attestor)
	return unit, nil
}

func unitID(body, sig []byte, at time.Time) string {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UnixNano()))

	h, _ := blake2b.New256(nil)
	h.Write(body)
	h.Write(sig)
	h.Write(ts[:])
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
