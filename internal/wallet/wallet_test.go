package wallet

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	addr := AddressFromPubKey(&key.PublicKey)
	assert.Len(t, addr, AddressLength)
	assert.True(t, IsValidAddress(addr))

	t.Run("checksum detects typos", func(t *testing.T) {
		flipped := []byte(addr)
		if flipped[3] == 'A' {
			flipped[3] = 'B'
		} else {
			flipped[3] = 'A'
		}
		assert.False(t, IsValidAddress(string(flipped)))
	})

	t.Run("format", func(t *testing.T) {
		assert.False(t, IsValidAddress(""))
		assert.False(t, IsValidAddress(strings.ToLower(addr)))
		assert.False(t, IsValidAddress(addr[:31]))
		assert.False(t, IsValidAddress(addr+"A"))
		assert.False(t, IsValidAddress(strings.Repeat("A", 32)), "no valid checksum")
	})
}

func TestLoadKeyRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	loaded, err := LoadKey(KeyHex(key))
	require.NoError(t, err)
	assert.Equal(t, AddressFromPubKey(&key.PublicKey), AddressFromPubKey(&loaded.PublicKey))

	_, err = LoadKey("zz")
	assert.Error(t, err)
}

func TestSignAndVerify(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	v := NewVerifier()

	env, err := Sign(key, `{"address":"X","data":{"userId":"42"}}`)
	require.NoError(t, err)
	require.NoError(t, v.Verify(env))
	assert.Equal(t, AddressFromPubKey(&key.PublicKey), env.Address())

	t.Run("tampered message", func(t *testing.T) {
		tampered := *env
		tampered.SignedMessage = `{"address":"X","data":{"userId":"43"}}`
		assert.Error(t, v.Verify(&tampered))
	})

	t.Run("foreign address", func(t *testing.T) {
		other, err := GenerateKey()
		require.NoError(t, err)
		forged := *env
		forged.Authors = []Author{env.Authors[0]}
		forged.Authors[0].Address = AddressFromPubKey(&other.PublicKey)
		forged.Authors[0].Definition = nil
		assert.Error(t, v.Verify(&forged))
	})

	t.Run("definition must match signer", func(t *testing.T) {
		other, err := GenerateKey()
		require.NoError(t, err)
		otherEnv, err := Sign(other, env.SignedMessage)
		require.NoError(t, err)

		mixed := *env
		mixed.Authors = []Author{env.Authors[0]}
		mixed.Authors[0].Definition = otherEnv.Authors[0].Definition
		assert.Error(t, v.Verify(&mixed))
	})

	t.Run("definition is optional", func(t *testing.T) {
		bare := *env
		bare.Authors = []Author{env.Authors[0]}
		bare.Authors[0].Definition = nil
		assert.NoError(t, v.Verify(&bare))
	})

	t.Run("missing authors or signature", func(t *testing.T) {
		assert.Error(t, v.Verify(&Envelope{SignedMessage: "x"}))
		assert.Error(t, v.Verify(nil))

		unsigned := *env
		unsigned.Authors = []Author{{Address: env.Address()}}
		assert.Error(t, v.Verify(&unsigned))
	})
}

func TestEnvelopeTextRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	env, err := Sign(key, "I own the address: "+AddressFromPubKey(&key.PublicKey))
	require.NoError(t, err)

	text, err := env.Text()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, SignedMessagePrefix))

	decoded, err := ExtractEnvelope(text)
	require.NoError(t, err)
	assert.Equal(t, env.SignedMessage, decoded.SignedMessage)
	require.NotNil(t, decoded.Authors[0].Definition)
	assert.Equal(t, env.Authors[0].Definition.PubKey, decoded.Authors[0].Definition.PubKey)
	assert.NoError(t, NewVerifier().Verify(decoded))
}

func TestExtractEnvelopeErrors(t *testing.T) {
	_, err := ExtractEnvelope("[Signed message] nothing here")
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)

	_, err = ExtractEnvelope("[Signed message](signed-message:!!!)")
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)

	notJSON := base64.StdEncoding.EncodeToString([]byte("not json"))
	_, err = ExtractEnvelope("[Signed message](signed-message:" + notJSON + ")")
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)
}
