package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/shared"
)

// RecordAttestation stores a published attestation.
func (s *SQLiteStore) RecordAttestation(ctx context.Context, record *domain.AttestationRecord) error {
	profile, err := json.Marshal(record.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	return shared.RetryOnConflict(ctx, s.retry, "record attestation", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO attestations (unit, address, profile_json, attestor, signature, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			record.Unit, record.Address, string(profile), record.Attestor, record.Signature, record.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert attestation: %w", err)
		}
		return nil
	})
}

// GetAttestation retrieves the attestation published as unit.
func (s *SQLiteStore) GetAttestation(ctx context.Context, unit string) (*domain.AttestationRecord, error) {
	var (
		record    domain.AttestationRecord
		profile   string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT unit, address, profile_json, attestor, signature, created_at
		FROM attestations WHERE unit = ?`, unit).Scan(
		&record.Unit, &record.Address, &profile, &record.Attestor, &record.Signature, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan attestation row: %w", err)
	}

	if err := json.Unmarshal([]byte(profile), &record.Profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	record.CreatedAt = time.Unix(createdAt, 0)
	return &record, nil
}
