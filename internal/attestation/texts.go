package attestation

import (
	"encoding/json"
	"fmt"

	"github.com/byteball/attestation-kit/internal/domain"
)

// User-facing messages.
const (
	TextCannotFindOrder = "We cannot find your order. Check your wallet address in the attestation provider and try again; " +
		"the address may have been removed from the order."
	TextOrderAlreadyAttested = "Your order has already been attested. If you want to re-attest with another wallet address, " +
		"please use the /attest command again."
	TextInvalidAddress   = "Invalid wallet address. Please enter a 32-character address containing uppercase letters and digits."
	TextInvalidFormat    = "The signed message format is invalid. Please check and try again."
	TextValidationFailed = "Validation failed. Please try again."
	TextMismatchData     = "The data in the signed message does not match the order. Please verify and try again."
	TextMismatchAddress  = "The wallet address in the signed message does not match the provided address."
	TextMissingAddress   = "Wallet address is missing in the signed message. Please check and try again."
	TextAskAddress       = "Please send me your address that you wish to attest (click ... and Insert my address)."
	TextAddressReceived  = "Thank you! Your wallet address has been received."
	TextAddressVerified  = "Thank you! You have proven that you own this address."
	TextVerified         = "Your data was verified successfully! We will send you the unit shortly."
	TextTransientFailure = "Unknown error! Please try again."
	TextUnknownCommand   = "Unknown command. Please try again."
)

// OwnershipStatement is the text a wallet signs to prove it controls address.
func OwnershipStatement(address string) string {
	return "I own the address: " + address
}

// challenge is the JSON body a wallet signs to confirm an order.
type challenge struct {
	Address string        `json:"address"`
	Data    domain.Fields `json:"data"`
}

// ChallengeMessage is the message a wallet signs to confirm fields for
// address. Without fields it is the plain ownership statement.
func ChallengeMessage(address string, fields domain.Fields) string {
	if len(fields) == 0 {
		return OwnershipStatement(address)
	}
	raw, _ := json.Marshal(challenge{Address: address, Data: fields})
	return string(raw)
}

// TextAskVerify asks the user to sign the challenge for address and fields.
func TextAskVerify(address string, fields domain.Fields) string {
	prompt := "Please sign this message to prove that you own the address: "
	if len(fields) > 0 {
		prompt = fmt.Sprintf("Please sign this message to attest %s for the address: ", fields)
	}
	return fmt.Sprintf("%s[%s](sign-message-request:%s)", prompt, address, ChallengeMessage(address, fields))
}

// TextAttested reports the unit carrying the attestation.
func TextAttested(unit string) string {
	return "Attestation unit: " + unit
}
