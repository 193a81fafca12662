package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/swiftbridge/message-registry/pkg/registry"
)

// AuthorizeCallerRequest is the request body for authorizing a caller
type AuthorizeCallerRequest struct {
	Address string `json:"address"`
}

// TransferAdminRequest is the request body for an admin handover
type TransferAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

// SetQuotaRequest is the request body for overriding a submitter quota
type SetQuotaRequest struct {
	Quota int64 `json:"quota"`
}

// AdminStatusResponse is the response body for the admin status view
type AdminStatusResponse struct {
	Admin         string `json:"admin"`
	Balance       int64  `json:"balance"`
	TotalMessages int64  `json:"total_messages"`
}

// WithdrawResponse is the response body for a fee withdrawal
type WithdrawResponse struct {
	Amount int64 `json:"amount"`
}

// CallerStatusResponse is the response body for an authorization check
type CallerStatusResponse struct {
	Address    string `json:"address"`
	Authorized bool   `json:"authorized"`
}

// AdminHandler handles HTTP requests for the registry admin surface.
// The service enforces that these operations are admin only; the
// handler just maps the results.
type AdminHandler struct {
	service registry.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service registry.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// Routes returns the routes for registry administration
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetStatus)
	r.Get("/balance", h.GetBalance)
	r.Post("/withdraw", h.Withdraw)
	r.Post("/transfer", h.TransferAdmin)

	r.Post("/authorized-callers", h.AuthorizeCaller)
	r.Get("/authorized-callers/{address}", h.CheckCaller)
	r.Delete("/authorized-callers/{address}", h.RevokeCaller)

	r.Put("/submitters/{address}/quota", h.SetQuota)

	return r
}

// GetStatus returns the admin address together with the fee balance
// and the total message count
func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	admin, err := h.service.Admin(r.Context())
	if err != nil {
		slog.Error("Failed to get admin address", "error", err)
		renderError(w, r, err)
		return
	}

	balance, err := h.service.Balance(r.Context())
	if err != nil {
		slog.Error("Failed to get balance", "error", err)
		renderError(w, r, err)
		return
	}

	count, err := h.service.TotalCount(r.Context())
	if err != nil {
		slog.Error("Failed to count messages", "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, AdminStatusResponse{Admin: admin, Balance: balance, TotalMessages: count})
}

// GetBalance returns the accumulated fee balance
func (h *AdminHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Balance(r.Context())
	if err != nil {
		slog.Error("Failed to get balance", "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]int64{"balance": balance})
}

// Withdraw pays the accumulated fee balance out to the admin
func (h *AdminHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	amount, err := h.service.Withdraw(r.Context(), caller)
	if err != nil {
		slog.Error("Failed to withdraw fees", "caller", caller, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Fees withdrawn", "caller", caller, "amount", amount)
	render.JSON(w, r, WithdrawResponse{Amount: amount})
}

// TransferAdmin hands registry administration to a new address
func (h *AdminHandler) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	var req TransferAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.TransferAdmin(r.Context(), caller, req.NewAdmin); err != nil {
		slog.Error("Failed to transfer admin", "caller", caller, "new_admin", req.NewAdmin, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Admin transferred", "new_admin", req.NewAdmin)
	w.WriteHeader(http.StatusNoContent)
}

// AuthorizeCaller adds an address to the authorized caller set
func (h *AdminHandler) AuthorizeCaller(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	var req AuthorizeCallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Address == "" {
		http.Error(w, "Address is required", http.StatusBadRequest)
		return
	}

	if err := h.service.AuthorizeCaller(r.Context(), caller, req.Address); err != nil {
		slog.Error("Failed to authorize caller", "address", req.Address, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Caller authorized", "address", req.Address)
	w.WriteHeader(http.StatusNoContent)
}

// CheckCaller reports whether an address is in the authorized caller set
// or holds the admin role
func (h *AdminHandler) CheckCaller(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	ok, err := h.service.IsAuthorized(r.Context(), address)
	if err != nil {
		slog.Error("Failed to check caller authorization", "address", address, "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, CallerStatusResponse{Address: address, Authorized: ok})
}

// RevokeCaller removes an address from the authorized caller set
func (h *AdminHandler) RevokeCaller(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	address := chi.URLParam(r, "address")
	if err := h.service.RevokeCaller(r.Context(), caller, address); err != nil {
		slog.Error("Failed to revoke caller", "address", address, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Caller revoked", "address", address)
	w.WriteHeader(http.StatusNoContent)
}

// SetQuota overrides the storage quota of a submitter account. The new
// quota may sit below current usage; the account is then over quota
// until messages are removed.
func (h *AdminHandler) SetQuota(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	address := chi.URLParam(r, "address")

	var req SetQuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.SetQuota(r.Context(), registry.SetQuotaRequest{
		Caller:   caller,
		User:     address,
		NewQuota: req.Quota,
	}); err != nil {
		slog.Error("Failed to set quota", "address", address, "quota", req.Quota, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Quota updated", "address", address, "quota", req.Quota)
	w.WriteHeader(http.StatusNoContent)
}
