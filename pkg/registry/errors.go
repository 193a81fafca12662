package registry

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrUnauthorized indicates the caller is neither the administrator nor
	// an authorized caller
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrNotFound indicates no message was ever allocated for the id
	ErrNotFound = errors.New("message not found")

	// ErrDeleted indicates the message has been deleted
	ErrDeleted = errors.New("message deleted")

	// ErrAccessDenied indicates the requester may not read the message
	ErrAccessDenied = errors.New("access denied")

	// ErrNotSender indicates the caller is not the message's sender
	ErrNotSender = errors.New("caller is not the message sender")

	// ErrAlreadyDeleted indicates the message was already deleted
	ErrAlreadyDeleted = errors.New("message already deleted")

	// ErrInsufficientFee indicates the payment is below the minimum store fee
	ErrInsufficientFee = errors.New("payment below minimum store fee")

	// ErrEmptyContentRef indicates an empty content reference
	ErrEmptyContentRef = errors.New("content reference is empty")

	// ErrDuplicateContent indicates the content reference was already
	// registered, possibly on a since-deleted message
	ErrDuplicateContent = errors.New("content reference already registered")

	// ErrInvalidQuota indicates a non-positive storage quota
	ErrInvalidQuota = errors.New("storage quota must be positive")

	// ErrInvalidAdmin indicates an empty administrator address
	ErrInvalidAdmin = errors.New("administrator address is empty")

	// ErrNoBalance indicates there are no accumulated fees to withdraw
	ErrNoBalance = errors.New("no fee balance to withdraw")

	// ErrTransferFailed indicates the fee payout could not be delivered
	ErrTransferFailed = errors.New("fee transfer failed")
)

// MessageError represents an error related to message operations
type MessageError struct {
	MessageID int64
	Op        string
	Err       error
}

func (e *MessageError) Error() string {
	if e.MessageID != 0 {
		return fmt.Sprintf("message operation %s failed for message %d: %v", e.Op, e.MessageID, e.Err)
	}
	return fmt.Sprintf("message operation %s failed: %v", e.Op, e.Err)
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

// AccountError represents an error related to submitter account operations
type AccountError struct {
	Address string
	Op      string
	Err     error
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("account operation %s failed for %s: %v", e.Op, e.Address, e.Err)
}

func (e *AccountError) Unwrap() error {
	return e.Err
}

// AdminError represents an error related to administrative operations
type AdminError struct {
	Op  string
	Err error
}

func (e *AdminError) Error() string {
	return fmt.Sprintf("admin operation %s failed: %v", e.Op, e.Err)
}

func (e *AdminError) Unwrap() error {
	return e.Err
}
