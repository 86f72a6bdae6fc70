package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/platform/auth"
	"github.com/refaxia/storefront-api/internal/platform/httpx"
	"github.com/refaxia/storefront-api/internal/services"
)

const maxAddressBodySize = 16 * 1024

// AddressHandlers exposes the saved address book under /me/addresses and the
// public postal lookup.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

// NewAddressHandlers constructs the address endpoints.
func NewAddressHandlers(authn *auth.Authenticator, addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{
		authn:     authn,
		addresses: addresses,
	}
}

// Routes wires the /me/addresses endpoints onto the provided router.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuthenticated())
	}
	r.Route("/addresses", func(addr chi.Router) {
		addr.Get("/", h.list)
		addr.Post("/", h.create)
		addr.Get("/{addressID}", h.get)
		addr.Put("/{addressID}", h.update)
		addr.Delete("/{addressID}", h.delete)
	})
}

// PostalRoutes wires the public postal-code lookup.
func (h *AddressHandlers) PostalRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{postalCode}", h.lookupPostalCode)
}

type addressPayload struct {
	ID             string `json:"id"`
	Street         string `json:"street"`
	Colony         string `json:"colony"`
	ExteriorNumber string `json:"exterior_number"`
	InteriorNumber string `json:"interior_number,omitempty"`
	PostalCode     string `json:"postal_code"`
	City           string `json:"city"`
	State          string `json:"state"`
	Phone          string `json:"phone"`
	Reference      string `json:"reference,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

type addressRequest struct {
	Street         string `json:"street"`
	Colony         string `json:"colony"`
	ExteriorNumber string `json:"exterior_number"`
	InteriorNumber string `json:"interior_number"`
	PostalCode     string `json:"postal_code"`
	City           string `json:"city"`
	State          string `json:"state"`
	Phone          string `json:"phone"`
	Reference      string `json:"reference"`
}

func buildAddressPayload(address domain.Address) addressPayload {
	return addressPayload{
		ID:             address.ID,
		Street:         address.Street,
		Colony:         address.Colony,
		ExteriorNumber: address.ExteriorNumber,
		InteriorNumber: address.InteriorNumber,
		PostalCode:     address.PostalCode,
		City:           address.City,
		State:          address.State,
		Phone:          address.Phone,
		Reference:      address.Reference,
		CreatedAt:      formatTime(address.CreatedAt),
		UpdatedAt:      formatTime(address.UpdatedAt),
	}
}

func (h *AddressHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.identity(ctx, w)
	if !ok {
		return
	}

	addresses, err := h.addresses.ListAddresses(ctx, uid)
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}

	payload := make([]addressPayload, 0, len(addresses))
	for _, address := range addresses {
		payload = append(payload, buildAddressPayload(address))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"addresses": payload})
}

func (h *AddressHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.identity(ctx, w)
	if !ok {
		return
	}

	address, err := h.addresses.GetAddress(ctx, uid, chi.URLParam(r, "addressID"))
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAddressPayload(address))
}

func (h *AddressHandlers) create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "")
}

func (h *AddressHandlers) update(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, chi.URLParam(r, "addressID"))
}

func (h *AddressHandlers) save(w http.ResponseWriter, r *http.Request, addressID string) {
	ctx := r.Context()
	uid, ok := h.identity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAddressBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req addressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}

	saved, err := h.addresses.SaveAddress(ctx, domain.Address{
		ID:             strings.TrimSpace(addressID),
		UserID:         uid,
		Street:         req.Street,
		Colony:         req.Colony,
		ExteriorNumber: req.ExteriorNumber,
		InteriorNumber: req.InteriorNumber,
		PostalCode:     req.PostalCode,
		City:           req.City,
		State:          req.State,
		Phone:          req.Phone,
		Reference:      req.Reference,
	})
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if addressID == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildAddressPayload(saved))
}

func (h *AddressHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.identity(ctx, w)
	if !ok {
		return
	}

	if err := h.addresses.DeleteAddress(ctx, uid, chi.URLParam(r, "addressID")); err != nil {
		writeAddressError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postalInfoPayload struct {
	PostalCode string   `json:"postal_code"`
	State      string   `json:"estado"`
	City       string   `json:"municipio"`
	Colonies   []string `json:"colonias"`
}

func (h *AddressHandlers) lookupPostalCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return
	}

	info, err := h.addresses.LookupPostalCode(ctx, chi.URLParam(r, "postalCode"))
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, postalInfoPayload{
		PostalCode: info.PostalCode,
		State:      info.State,
		City:       info.City,
		Colonies:   info.Colonies,
	})
}

func (h *AddressHandlers) identity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func writeAddressError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidPhone):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_phone", "phone must be 10 digits", http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPostalCodeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("postal_code_not_found", "postal code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAddressUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("address_error", "address operation failed", http.StatusInternalServerError))
	}
}
