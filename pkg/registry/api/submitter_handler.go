package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/swiftbridge/message-registry/pkg/registry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// MessageListResponse is the response body for a submitter's message page
type MessageListResponse struct {
	Submitter string  `json:"submitter"`
	IDs       []int64 `json:"ids"`
	Offset    int     `json:"offset"`
	Limit     int     `json:"limit"`
}

// AccountResponse is the response body for a submitter account
type AccountResponse struct {
	Address      string `json:"address"`
	UsedStorage  int64  `json:"used_storage"`
	StorageQuota int64  `json:"storage_quota"`
	MessageCount int64  `json:"message_count"`
	Active       bool   `json:"active"`
}

// SubmitterHandler handles HTTP requests for submitter accounts and
// their message listings
type SubmitterHandler struct {
	service registry.Service
}

// NewSubmitterHandler creates a new submitter handler
func NewSubmitterHandler(service registry.Service) *SubmitterHandler {
	return &SubmitterHandler{service: service}
}

// Routes returns the routes for submitters
func (h *SubmitterHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{address}/messages", h.ListMessages)
	r.Get("/{address}/account", h.GetAccount)
	r.Post("/{address}/initialize", h.InitializeAccount)

	return r
}

// ListMessages returns a page of message IDs stored by a submitter,
// oldest first. Deleted messages stay listed.
// Query parameters:
//   - offset: number of IDs to skip (default 0)
//   - limit: page size (default 50, capped at 1000)
func (h *SubmitterHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		offset = n
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ids, err := h.service.ListBySubmitter(r.Context(), registry.ListBySubmitterRequest{
		Submitter: address,
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		slog.Error("Failed to list messages", "submitter", address, "error", err)
		renderError(w, r, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}

	render.JSON(w, r, MessageListResponse{
		Submitter: address,
		IDs:       ids,
		Offset:    offset,
		Limit:     limit,
	})
}

// GetAccount returns the quota accounting record for a submitter.
// Unknown submitters get a zero record rather than an error.
func (h *SubmitterHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	account, err := h.service.AccountInfo(r.Context(), address)
	if err != nil {
		slog.Error("Failed to get account", "address", address, "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, AccountResponse{
		Address:      account.Address,
		UsedStorage:  account.UsedStorage,
		StorageQuota: account.StorageQuota,
		MessageCount: account.MessageCount,
		Active:       account.Active,
	})
}

// InitializeAccount activates a submitter account with the default
// storage quota. Repeat initialization of an active account is a no-op.
func (h *SubmitterHandler) InitializeAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	address := chi.URLParam(r, "address")
	if err := h.service.InitializeAccount(r.Context(), caller, address); err != nil {
		slog.Error("Failed to initialize account", "address", address, "caller", caller, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Account initialized", "address", address, "caller", caller)
	render.JSON(w, r, map[string]string{"status": "initialized"})
}
