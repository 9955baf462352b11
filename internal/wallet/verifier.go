package wallet

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	errNoAuthors      = errors.New("envelope has no authors")
	errNoSignature    = errors.New("author has no signature")
	errBadSignature   = errors.New("signature does not verify")
	errAuthorMismatch = errors.New("signature key does not control author address")
)

// Verifier checks addresses and envelope signatures.
type Verifier struct{}

// NewVerifier returns a verifier for wallet-signed messages.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// IsValidAddress checks the format and checksum of address.
func (v *Verifier) IsValidAddress(address string) bool {
	return IsValidAddress(address)
}

// Verify checks that every author signed SignedMessage with the key behind
// its address.
func (v *Verifier) Verify(env *Envelope) error {
	if env == nil || len(env.Authors) == 0 {
		return errNoAuthors
	}

	hash := MessageHash(env.SignedMessage)
	for i, author := range env.Authors {
		if err := verifyAuthor(hash, author); err != nil {
			return fmt.Errorf("author %d (%s): %w", i, author.Address, err)
		}
	}
	return nil
}

func verifyAuthor(hash []byte, author Author) error {
	if !IsValidAddress(author.Address) {
		return fmt.Errorf("invalid address %q", author.Address)
	}

	encoded := author.Authentifiers["r"]
	if encoded == "" {
		return errNoSignature
	}
	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: malformed signature", errBadSignature)
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadSignature, err)
	}
	compressed := crypto.CompressPubkey(pub)
	if !crypto.VerifySignature(compressed, hash, sig[:64]) {
		return errBadSignature
	}

	if author.Definition != nil {
		declared, err := base64.StdEncoding.DecodeString(author.Definition.PubKey)
		if err != nil || !bytes.Equal(declared, compressed) {
			return errAuthorMismatch
		}
	}

	if AddressFromPubKey(pub) != author.Address {
		return errAuthorMismatch
	}
	return nil
}

// Sign produces a single-author envelope over message.
func Sign(key *ecdsa.PrivateKey, message string) (*Envelope, error) {
	sig, err := crypto.Sign(MessageHash(message), key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}

	return &Envelope{
		SignedMessage: message,
		Authors: []Author{{
			Address:       AddressFromPubKey(&key.PublicKey),
			Authentifiers: map[string]string{"r": base64.StdEncoding.EncodeToString(sig)},
			Definition:    &Definition{PubKey: base64.StdEncoding.EncodeToString(crypto.CompressPubkey(&key.PublicKey))},
		}},
	}, nil
}

// GenerateKey creates a new secp256k1 wallet key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// LoadKey parses a hex-encoded secp256k1 private key.
func LoadKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// KeyHex returns the hex encoding of key, the inverse of LoadKey.
func KeyHex(key *ecdsa.PrivateKey) string {
	return fmt.Sprintf("%x", crypto.FromECDSA(key))
}
