// Package wallet validates ledger addresses and signed-message envelopes
// produced by users' wallets.
package wallet

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base32"
	"regexp"

	"github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the length of an address string.
const AddressLength = 32

const (
	bodyLength     = 16
	checksumLength = 4
)

var (
	addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
	addressPattern  = regexp.MustCompile(`^[A-Z2-7]{32}$`)
	checksumDomain  = []byte("attestation-kit/address")
)

// AddressFromPubKey derives the address controlled by pub: a keccak digest of
// the compressed key followed by a checksum, base32 encoded.
func AddressFromPubKey(pub *ecdsa.PublicKey) string {
	body := crypto.Keccak256(crypto.CompressPubkey(pub))[:bodyLength]
	return addressEncoding.EncodeToString(append(body, addressChecksum(body)...))
}

// IsValidAddress checks the format and checksum of address.
func IsValidAddress(address string) bool {
	if len(address) != AddressLength || !addressPattern.MatchString(address) {
		return false
	}
	raw, err := addressEncoding.DecodeString(address)
	if err != nil || len(raw) != bodyLength+checksumLength {
		return false
	}
	return bytes.Equal(raw[bodyLength:], addressChecksum(raw[:bodyLength]))
}

func addressChecksum(body []byte) []byte {
	return crypto.Keccak256(checksumDomain, body)[:checksumLength]
}
