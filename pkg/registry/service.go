package registry

import (
	"context"
)

// Service defines the main interface for the message registry
type Service interface {
	// Message operations
	StoreMessage(ctx context.Context, req StoreMessageRequest) (*Message, error)
	RetrieveMessage(ctx context.Context, req RetrieveMessageRequest) (string, error)
	RemoveMessage(ctx context.Context, req RemoveMessageRequest) error
	GetMessage(ctx context.Context, id int64) (*Message, error)
	ListBySubmitter(ctx context.Context, req ListBySubmitterRequest) ([]int64, error)
	TotalCount(ctx context.Context) (int64, error)

	// Access control operations
	GrantAccess(ctx context.Context, req AccessRequest) error
	RevokeAccess(ctx context.Context, req AccessRequest) error
	HasAccess(ctx context.Context, id int64, user string) (bool, error)

	// Account operations
	InitializeAccount(ctx context.Context, caller, user string) error
	SetQuota(ctx context.Context, req SetQuotaRequest) error
	AccountInfo(ctx context.Context, user string) (*SubmitterAccount, error)

	// Administrative operations
	AuthorizeCaller(ctx context.Context, caller, addr string) error
	RevokeCaller(ctx context.Context, caller, addr string) error
	TransferAdmin(ctx context.Context, caller, newAdmin string) error
	Withdraw(ctx context.Context, caller string) (int64, error)
	Admin(ctx context.Context) (string, error)
	IsAuthorized(ctx context.Context, addr string) (bool, error)
	Balance(ctx context.Context) (int64, error)
}
