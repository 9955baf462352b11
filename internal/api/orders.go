package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/store"
	"github.com/go-chi/chi/v5"
)

// Query parameters of GET /api/orders that are not order fields.
var orderQueryParams = map[string]bool{
	"address":          true,
	"exclude_attested": true,
	"multiple":         true,
}

// OrderHandler handles order and pairing endpoints.
type OrderHandler struct {
	*Handler
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(base *Handler) *OrderHandler {
	return &OrderHandler{Handler: base}
}

// RegisterRoutes registers order routes.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.FindOrders)
		r.Put("/orders/address", h.BindAddress)
		r.Delete("/orders/address", h.UnbindAddress)
		r.Get("/pairing-url", h.PairingURL)
		r.Get("/attestations/{unit}", h.GetAttestation)
	})
}

type createOrderRequest struct {
	Data            map[string]interface{} `json:"data"`
	AllowDuplicates *bool                  `json:"allow_duplicates,omitempty"`
}

type addressRequest struct {
	Data    map[string]interface{} `json:"data"`
	Address string                 `json:"address"`
}

// CreateOrder creates a pending order, or returns the matching one when
// duplicates are allowed.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		orderError(w, err)
		return
	}
	fields, err := domain.NewFields(req.Data)
	if err != nil {
		orderError(w, err)
		return
	}

	allow := h.orders.AllowDuplicates()
	if req.AllowDuplicates != nil {
		allow = *req.AllowDuplicates
	}

	id, err := h.orders.RequestOrderWithPolicy(r.Context(), fields, allow)
	if err != nil {
		slog.Info("Order request rejected", "fields", fields.String(), "error", err)
		orderError(w, err)
		return
	}

	slog.Info("Order requested", "order_id", id, "fields", fields.String())
	JSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

// FindOrders looks orders up by fields and address. Every query parameter
// other than address, exclude_attested and multiple is an order field.
func (h *OrderHandler) FindOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	raw := make(map[string]interface{})
	for key, values := range query {
		if orderQueryParams[key] {
			continue
		}
		if len(values) != 1 {
			Error(w, http.StatusBadRequest, "field "+key+" repeated")
			return
		}
		raw[key] = values[0]
	}

	filter := store.OrderFilter{Address: query.Get("address")}
	if len(raw) > 0 {
		fields, err := domain.NewFields(raw)
		if err != nil {
			orderError(w, err)
			return
		}
		filter.Fields = fields
	} else if filter.Address == "" {
		Error(w, http.StatusBadRequest, "fields or address required")
		return
	}
	filter.ExcludeAttested, _ = strconv.ParseBool(query.Get("exclude_attested"))
	multiple, _ := strconv.ParseBool(query.Get("multiple"))

	if multiple {
		orders, err := h.repo.FindOrders(r.Context(), filter)
		if err != nil {
			orderError(w, err)
			return
		}
		if orders == nil {
			orders = []*domain.Order{}
		}
		JSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
		return
	}

	order, err := h.repo.FindOrder(r.Context(), filter)
	if err != nil {
		orderError(w, err)
		return
	}
	if order == nil {
		Error(w, http.StatusNotFound, domain.ErrOrderNotFound.Error())
		return
	}
	JSON(w, http.StatusOK, order)
}

// BindAddress binds an address to the order matching data.
func (h *OrderHandler) BindAddress(w http.ResponseWriter, r *http.Request) {
	fields, address, ok := h.decodeAddressRequest(w, r)
	if !ok {
		return
	}
	if err := h.orders.BindAddress(r.Context(), fields, address); err != nil {
		orderError(w, err)
		return
	}
	slog.Info("Address bound by operator", "address", address, "fields", fields.String())
	JSON(w, http.StatusOK, map[string]interface{}{"status": domain.StatusAddressed})
}

// UnbindAddress releases the address bound to the order matching data.
func (h *OrderHandler) UnbindAddress(w http.ResponseWriter, r *http.Request) {
	fields, address, ok := h.decodeAddressRequest(w, r)
	if !ok {
		return
	}
	if err := h.orders.ReleaseAddress(r.Context(), fields, address); err != nil {
		orderError(w, err)
		return
	}
	slog.Info("Address released by operator", "address", address, "fields", fields.String())
	JSON(w, http.StatusOK, map[string]interface{}{"status": domain.StatusPending})
}

func (h *OrderHandler) decodeAddressRequest(w http.ResponseWriter, r *http.Request) (domain.Fields, string, bool) {
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		orderError(w, err)
		return nil, "", false
	}
	if !h.addresses.IsValidAddress(req.Address) {
		orderError(w, domain.ErrInvalidAddress)
		return nil, "", false
	}
	fields, err := domain.NewFields(req.Data)
	if err != nil {
		orderError(w, err)
		return nil, "", false
	}
	return fields, req.Address, true
}

// PairingURL returns the links that open a chat with the service. With an
// address and fields it also returns the link carrying them.
func (h *OrderHandler) PairingURL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp := map[string]string{
		"without_data": h.pairing.WithoutData(),
		"back":         h.pairing.Back(),
	}

	address := query.Get("address")
	query.Del("address")
	if address != "" || len(query) > 0 {
		raw := make(map[string]interface{}, len(query))
		for key := range query {
			raw[key] = query.Get(key)
		}
		fields, err := domain.NewFields(raw)
		if err != nil {
			orderError(w, err)
			return
		}
		link, err := h.pairing.WithData(address, fields, h.addresses.IsValidAddress)
		if err != nil {
			orderError(w, err)
			return
		}
		resp["url"] = link
	}

	JSON(w, http.StatusOK, resp)
}

// GetAttestation returns an attestation published by the local ledger.
func (h *OrderHandler) GetAttestation(w http.ResponseWriter, r *http.Request) {
	unit := chi.URLParam(r, "unit")
	record, err := h.repo.GetAttestation(r.Context(), unit)
	if err != nil {
		slog.Error("Failed to read attestation", "unit", unit, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if record == nil {
		Error(w, http.StatusNotFound, "attestation not found")
		return
	}
	JSON(w, http.StatusOK, record)
}
