package registry

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventKind is the domain type for registry event kinds.
type EventKind string

// Event kind constants (typed).
const (
	EventMessageStored      EventKind = "message.stored"
	EventMessageRetrieved   EventKind = "message.retrieved"
	EventMessageDeleted     EventKind = "message.deleted"
	EventAccessGranted      EventKind = "access.granted"
	EventAccessRevoked      EventKind = "access.revoked"
	EventAccountInitialized EventKind = "account.initialized"
	EventQuotaUpdated       EventKind = "quota.updated"
	EventCallerAuthorized   EventKind = "caller.authorized"
	EventCallerRevoked      EventKind = "caller.revoked"
	EventAdminTransferred   EventKind = "admin.transferred"
	EventFeesWithdrawn      EventKind = "fees.withdrawn"
)

// Default registry parameters.
const (
	// DefaultMessageSizeEstimate is the flat per-message storage charge in
	// bytes. Content lives externally, so the registry charges an estimate
	// rather than the actual size.
	DefaultMessageSizeEstimate int64 = 1 << 20

	// DefaultStorageQuota is the storage quota in bytes granted when an
	// account is initialized.
	DefaultStorageQuota int64 = 1 << 30

	// DefaultMinimumStoreFee is the minimum payment, in fee units, that must
	// accompany a store operation.
	DefaultMinimumStoreFee int64 = 100
)

// Message represents a registered content reference.
//
// ID is assigned sequentially starting at 1 and is never reused, including
// for deleted messages. ContentRef is immutable after creation and each
// reference maps to at most one id, ever: deleting a message does not free
// its reference for re-registration. Deleted only moves false to true.
type Message struct {
	ID          int64           `json:"id"`
	Sender      string          `json:"sender"`
	ContentRef  string          `json:"content_ref"`
	MessageType string          `json:"message_type,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Deleted     bool            `json:"deleted"`
	Access      map[string]bool `json:"access,omitempty"`
}

// HasAccess reports whether user may read the message's content reference.
// The sender always has access; everyone else needs an explicit grant.
func (m *Message) HasAccess(user string) bool {
	return user == m.Sender || m.Access[user]
}

// SubmitterAccount tracks a submitter's storage consumption.
//
// UsedStorage is the flat per-message estimate summed over the submitter's
// live (non-deleted) messages. StorageQuota is advisory bookkeeping: it is
// recorded and reported but never gates a store.
type SubmitterAccount struct {
	Address      string `json:"address"`
	UsedStorage  int64  `json:"used_storage"`
	StorageQuota int64  `json:"storage_quota"`
	MessageCount int64  `json:"message_count"`
	Active       bool   `json:"active"`
}

// Event is the structured record emitted after every successful mutation.
// MessageID is zero for events that are not scoped to a single message.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Kind      EventKind      `json:"kind"`
	MessageID int64          `json:"message_id,omitempty"`
	Actor     string         `json:"actor"`
	Payload   map[string]any `json:"payload,omitempty"`
	Time      time.Time      `json:"time"`
}

// Params holds the fixed registry parameters. They are set at repository
// construction and never change for the life of the store. Admin is the
// initial administrator only: a persisted administrator from a previous run
// takes precedence when a durable repository is reopened.
type Params struct {
	Admin               string
	MessageSizeEstimate int64
	DefaultStorageQuota int64
	MinimumStoreFee     int64
}

// DefaultParams returns Params with library defaults and the given
// administrator address.
func DefaultParams(admin string) Params {
	return Params{
		Admin:               admin,
		MessageSizeEstimate: DefaultMessageSizeEstimate,
		DefaultStorageQuota: DefaultStorageQuota,
		MinimumStoreFee:     DefaultMinimumStoreFee,
	}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if p.Admin == "" {
		return errors.New("admin address is required")
	}
	if p.MessageSizeEstimate <= 0 {
		return errors.New("message size estimate must be positive")
	}
	if p.DefaultStorageQuota <= 0 {
		return errors.New("default storage quota must be positive")
	}
	if p.MinimumStoreFee < 0 {
		return errors.New("minimum store fee must not be negative")
	}
	return nil
}
