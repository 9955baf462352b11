package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/byteball/attestation-kit/internal/attestation"
	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAddressMatchesKey(t *testing.T) {
	key, err := wallet.GenerateKey()
	require.NoError(t, err)

	out, err := run(t, "address", "--key", wallet.KeyHex(key))
	require.NoError(t, err)
	assert.Equal(t, wallet.AddressFromPubKey(&key.PublicKey), strings.TrimSpace(out))
}

func TestSignChallenge(t *testing.T) {
	key, err := wallet.GenerateKey()
	require.NoError(t, err)
	fields, err := domain.NewFields(map[string]any{"userId": "42"})
	require.NoError(t, err)

	out, err := run(t, "sign", "--key", wallet.KeyHex(key), "--fields", fields.Encode())
	require.NoError(t, err)

	env, err := wallet.ExtractEnvelope(strings.TrimSpace(out))
	require.NoError(t, err)
	require.NoError(t, wallet.NewVerifier().Verify(env))

	addr := wallet.AddressFromPubKey(&key.PublicKey)
	assert.Equal(t, attestation.ChallengeMessage(addr, fields), env.SignedMessage)
}

func TestSignRejectsMessageWithFields(t *testing.T) {
	key, err := wallet.GenerateKey()
	require.NoError(t, err)

	_, err = run(t, "sign", "--key", wallet.KeyHex(key), "--fields", "userId=42", "hello")
	assert.Error(t, err)
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)
	assert.Contains(t, out, "address: ")
}
