// Package api provides the operator HTTP API of the attestation service.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/lifecycle"
	"github.com/byteball/attestation-kit/internal/store"
)

const maxBodyBytes = 64 << 10

// AddressValidator checks address format and checksum.
type AddressValidator interface {
	IsValidAddress(address string) bool
}

// Handler provides common handler dependencies.
type Handler struct {
	repo      store.Repository
	orders    *lifecycle.Manager
	pairing   lifecycle.Pairing
	addresses AddressValidator
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, orders *lifecycle.Manager, pairing lifecycle.Pairing, addresses AddressValidator) *Handler {
	return &Handler{
		repo:      repo,
		orders:    orders,
		pairing:   pairing,
		addresses: addresses,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// orderError writes the response for a store or lifecycle failure.
func orderError(w http.ResponseWriter, err error) {
	var oe *domain.OrderError
	if errors.As(err, &oe) {
		JSON(w, errorStatus(err), map[string]interface{}{
			"error":    oe.Err.Error(),
			"order_id": oe.OrderID,
			"status":   oe.Status,
			"unit":     oe.Unit,
		})
		return
	}

	status := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	Error(w, status, message)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidData),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrAddressNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAlreadyAttested):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body, keeping numbers as json.Number so
// field values keep their textual form.
func decodeBody(r *http.Request, v interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrMalformedRequest, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err)
	}
	return nil
}
