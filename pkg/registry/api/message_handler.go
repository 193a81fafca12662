package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/swiftbridge/message-registry/pkg/registry"
)

// StoreMessageRequest is the request body for storing a message
type StoreMessageRequest struct {
	Sender      string `json:"sender,omitempty"`
	ContentRef  string `json:"content_ref"`
	MessageType string `json:"message_type,omitempty"`
	Payment     int64  `json:"payment"`
}

// GrantAccessRequest is the request body for granting read access
type GrantAccessRequest struct {
	Grantee string `json:"grantee"`
}

// MessageResponse is the response body for a message record
type MessageResponse struct {
	ID          int64     `json:"id"`
	Sender      string    `json:"sender"`
	ContentRef  string    `json:"content_ref"`
	MessageType string    `json:"message_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Deleted     bool      `json:"deleted"`
	Access      []string  `json:"access"`
}

// ContentRefResponse is the response body for a content retrieval
type ContentRefResponse struct {
	ID         int64  `json:"id"`
	ContentRef string `json:"content_ref"`
}

// AccessCheckResponse is the response body for an access check
type AccessCheckResponse struct {
	MessageID int64  `json:"message_id"`
	User      string `json:"user"`
	HasAccess bool   `json:"has_access"`
}

// MessageHandler handles HTTP requests for message records
type MessageHandler struct {
	service registry.Service
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(service registry.Service) *MessageHandler {
	return &MessageHandler{service: service}
}

// Routes returns the routes for messages
func (h *MessageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.StoreMessage)
	r.Get("/count", h.MessageCount)
	r.Get("/{message_id}", h.GetMessage)
	r.Delete("/{message_id}", h.RemoveMessage)
	r.Get("/{message_id}/content", h.RetrieveContent)

	// Routes for per-message access control
	r.Post("/{message_id}/access", h.GrantAccess)
	r.Delete("/{message_id}/access/{grantee}", h.RevokeAccess)
	r.Get("/{message_id}/access/{user}", h.CheckAccess)

	return r
}

func toMessageResponse(msg *registry.Message) MessageResponse {
	access := make([]string, 0, len(msg.Access))
	for grantee := range msg.Access {
		access = append(access, grantee)
	}
	sort.Strings(access)

	return MessageResponse{
		ID:          msg.ID,
		Sender:      msg.Sender,
		ContentRef:  msg.ContentRef,
		MessageType: msg.MessageType,
		CreatedAt:   msg.CreatedAt,
		Deleted:     msg.Deleted,
		Access:      access,
	}
}

func messageIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "message_id"), 10, 64)
}

// StoreMessage registers a new message record
func (h *MessageHandler) StoreMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	var req StoreMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// A gateway stores on behalf of its senders; callers submitting for
	// themselves may leave the sender empty.
	sender := req.Sender
	if sender == "" {
		sender = caller
	}

	msg, err := h.service.StoreMessage(r.Context(), registry.StoreMessageRequest{
		Caller:      caller,
		Sender:      sender,
		ContentRef:  req.ContentRef,
		MessageType: req.MessageType,
		Payment:     req.Payment,
	})
	if err != nil {
		slog.Error("Failed to store message", "caller", caller, "sender", sender, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Message stored", "message_id", msg.ID, "sender", msg.Sender)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toMessageResponse(msg))
}

// GetMessage retrieves a message record by ID. The record view carries
// no content and is not access gated; deleted messages are still
// returned with their tombstone flag set.
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageIDParam(r)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	msg, err := h.service.GetMessage(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get message", "message_id", id, "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, toMessageResponse(msg))
}

// RetrieveContent resolves the content reference of a message for the
// calling user
func (h *MessageHandler) RetrieveContent(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	id, err := messageIDParam(r)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	contentRef, err := h.service.RetrieveMessage(r.Context(), registry.RetrieveMessageRequest{
		ID:        id,
		Requester: caller,
	})
	if err != nil {
		slog.Error("Failed to retrieve message", "message_id", id, "requester", caller, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Message retrieved", "message_id", id, "requester", caller)
	render.JSON(w, r, ContentRefResponse{ID: id, ContentRef: contentRef})
}

// RemoveMessage tombstones a message. Only the sender may remove a
// message; the record and its ID stay allocated.
func (h *MessageHandler) RemoveMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	id, err := messageIDParam(r)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveMessage(r.Context(), registry.RemoveMessageRequest{ID: id, Caller: caller}); err != nil {
		slog.Error("Failed to remove message", "message_id", id, "caller", caller, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Message removed", "message_id", id, "caller", caller)
	w.WriteHeader(http.StatusNoContent)
}

// GrantAccess grants a user read access to a message
func (h *MessageHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	id, err := messageIDParam(r)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var req GrantAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Grantee == "" {
		http.Error(w, "Grantee is required", http.StatusBadRequest)
		return
	}

	if err := h.service.GrantAccess(r.Context(), registry.AccessRequest{ID: id, Grantee: req.Grantee, Caller: caller}); err != nil {
		slog.Error("Failed to grant access", "message_id", id, "grantee", req.Grantee, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Access granted", "message_id", id, "grantee", req.Grantee)
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAccess removes a user's read access to a message
func (h *MessageHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "caller identity missing")
		return
	}

	id, err := messageIDParam(r)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	grantee := chi.URLParam(r, "grantee")
	if err := h.service.RevokeAccess(r.Context(), registry.AccessRequest{ID: id, Grantee: grantee, Caller: caller}); err != nil {
		slog.Error("Failed to revoke access", "message_id", id, "grantee", grantee, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Access revoked", "message_id", id, "grantee", grantee)
	w.WriteHeader(http.StatusNoContent)
}

// CheckAccess reports whether a user can read a message
func (h *MessageHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	id, err := messageIDParam(r)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	user := chi.URLParam(r, "user")
	hasAccess, err := h.service.HasAccess(r.Context(), id, user)
	if err != nil {
		slog.Error("Failed to check access", "message_id", id, "user", user, "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, AccessCheckResponse{MessageID: id, User: user, HasAccess: hasAccess})
}

// MessageCount returns the number of messages ever stored, deleted
// ones included
func (h *MessageHandler) MessageCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.TotalCount(r.Context())
	if err != nil {
		slog.Error("Failed to count messages", "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]int64{"count": count})
}
