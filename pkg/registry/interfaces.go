package registry

import (
	"context"
)

// Repository defines the interface for registry persistence.
//
// Every mutating method runs its precondition checks and state changes as a
// single indivisible unit, in the documented order, so the first failing
// check aborts with no partial effect. Authorization is part of that unit:
// implementations decide it against the same state snapshot they mutate.
type Repository interface {
	// Message operations.
	//
	// StoreMessage checks, in order: caller authorization (ErrUnauthorized),
	// payment against the minimum fee (ErrInsufficientFee), non-empty
	// reference (ErrEmptyContentRef), and reference uniqueness across all
	// messages ever stored, deleted included (ErrDuplicateContent). On
	// success it allocates the next sequential id, grants the sender access,
	// registers the reverse-index entry, charges the sender's account, and
	// adds the full payment to the fee balance.
	StoreMessage(ctx context.Context, params StoreMessageParams) (*Message, error)
	// RetrieveMessage checks, in order: existence (ErrNotFound), liveness
	// (ErrDeleted), and read permission for the requester (ErrAccessDenied).
	// The sender, any granted identity, and the administrator may read.
	RetrieveMessage(ctx context.Context, id int64, requester string) (string, error)
	// RemoveMessage checks, in order: existence (ErrNotFound), sender
	// ownership (ErrNotSender), and liveness (ErrAlreadyDeleted). It marks
	// the message deleted and refunds the sender's usage accounting; the
	// reverse index keeps the content reference forever.
	RemoveMessage(ctx context.Context, id int64, caller string) error
	// GrantAccess checks existence (ErrNotFound), sender ownership
	// (ErrNotSender), and liveness (ErrDeleted). Idempotent.
	GrantAccess(ctx context.Context, id int64, grantee, caller string) error
	// RevokeAccess checks existence (ErrNotFound) and sender ownership
	// (ErrNotSender). It works on deleted messages and is idempotent.
	RevokeAccess(ctx context.Context, id int64, grantee, caller string) error
	// GetMessage returns the full record, deleted messages included.
	GetMessage(ctx context.Context, id int64) (*Message, error)
	// HasAccess reports whether user is the sender or has an explicit grant.
	// Unallocated ids fail with ErrNotFound.
	HasAccess(ctx context.Context, id int64, user string) (bool, error)
	// ListBySubmitter returns the submitter's message ids in allocation
	// order, deleted included, clipped to offset/limit.
	ListBySubmitter(ctx context.Context, submitter string, offset, limit int) ([]int64, error)
	// TotalCount returns the number of ids ever allocated.
	TotalCount(ctx context.Context) (int64, error)

	// Account operations.
	//
	// InitializeAccount is gated by caller authorization. On first
	// initialization it grants the default quota and activates the account,
	// reporting activated=true; re-initializing an active account is a no-op
	// reporting activated=false.
	InitializeAccount(ctx context.Context, caller, user string) (activated bool, err error)
	// SetQuota is administrator-only and requires a positive quota. It
	// overwrites unconditionally, even below the account's current usage.
	SetQuota(ctx context.Context, caller, user string, newQuota int64) error
	// GetAccount returns the account, or a zero-valued account for an
	// address the registry has never seen.
	GetAccount(ctx context.Context, user string) (*SubmitterAccount, error)

	// Authorization operations, administrator-only. Authorize and revoke are
	// idempotent; TransferAdmin rejects an empty address with
	// ErrInvalidAdmin.
	AuthorizeCaller(ctx context.Context, caller, addr string) error
	RevokeCaller(ctx context.Context, caller, addr string) error
	TransferAdmin(ctx context.Context, caller, newAdmin string) error
	Admin(ctx context.Context) (string, error)
	IsAuthorized(ctx context.Context, addr string) (bool, error)

	// Fee balance operations. DebitBalance is administrator-only: it
	// captures the whole balance, zeroes it, and returns the captured
	// amount, failing with ErrNoBalance when nothing is held. CreditBalance
	// restores a captured amount after a failed payout.
	Balance(ctx context.Context) (int64, error)
	DebitBalance(ctx context.Context, caller string) (int64, error)
	CreditBalance(ctx context.Context, amount int64) error
}

// EventSink defines the interface for event handling. Publish is called once
// per successful mutation; errors are logged by the service and never fail
// the operation.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// PayoutFunc delivers withdrawn fees to the administrator. A nil PayoutFunc
// means delivery always succeeds.
type PayoutFunc func(ctx context.Context, to string, amount int64) error

// StoreMessageParams contains parameters for recording a message
type StoreMessageParams struct {
	Caller      string
	Sender      string
	ContentRef  string
	MessageType string
	Payment     int64
}
