package wallet

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignedMessagePrefix starts every chat message carrying a signature.
const SignedMessagePrefix = "[Signed message]"

var signedMessagePattern = regexp.MustCompile(`\(signed-message:(.+?)\)`)

// Envelope is the signed-message object produced by a wallet.
type Envelope struct {
	SignedMessage string   `json:"signed_message"`
	Authors       []Author `json:"authors"`
	Version       string   `json:"version,omitempty"`
}

// Author is one signer of an envelope. Authentifiers["r"] holds the base64
// 65-byte recoverable signature.
type Author struct {
	Address       string            `json:"address"`
	Authentifiers map[string]string `json:"authentifiers"`
	Definition    *Definition       `json:"definition,omitempty"`
}

// Definition declares the key behind an address, encoded as
// ["sig", {"pubkey": "<base64 compressed key>"}].
type Definition struct {
	PubKey string
}

type definitionParams struct {
	PubKey string `json:"pubkey"`
}

// MarshalJSON encodes the definition in its array form.
func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{"sig", definitionParams{PubKey: d.PubKey}})
}

// UnmarshalJSON decodes ["sig", {"pubkey": ...}].
func (d *Definition) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("definition: %w", err)
	}
	if len(parts) != 2 {
		return errors.New("definition: expected [op, params]")
	}

	var op string
	if err := json.Unmarshal(parts[0], &op); err != nil || op != "sig" {
		return fmt.Errorf("definition: unsupported op %s", parts[0])
	}

	var params definitionParams
	if err := json.Unmarshal(parts[1], &params); err != nil {
		return fmt.Errorf("definition params: %w", err)
	}
	d.PubKey = params.PubKey
	return nil
}

// Address returns the first author's address, or "" if there is none.
func (e *Envelope) Address() string {
	if e == nil || len(e.Authors) == 0 {
		return ""
	}
	return e.Authors[0].Address
}

// MessageHash is the digest a wallet signs for message.
func MessageHash(message string) []byte {
	prefix := "\x19Attestation Signed Message:\n" + strconv.Itoa(len(message))
	return crypto.Keccak256([]byte(prefix), []byte(message))
}

// ExtractEnvelope finds and decodes the (signed-message:<base64>) part of a
// chat message.
func ExtractEnvelope(text string) (*Envelope, error) {
	matches := signedMessagePattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return nil, fmt.Errorf("%w: no signed-message part", domain.ErrInvalidFormat)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(matches[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
	}
	return &env, nil
}

// Text renders the envelope the way a wallet sends it in chat.
func (e *Envelope) Text() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return SignedMessagePrefix + "(signed-message:" + base64.StdEncoding.EncodeToString(raw) + ")", nil
}
