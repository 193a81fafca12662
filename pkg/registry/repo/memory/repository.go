package memory

import (
	"context"
	"sync"
	"time"

	"github.com/swiftbridge/message-registry/pkg/registry"
)

// Repository implements registry.Repository using in-memory storage.
//
// Every mutation runs inside one critical section, so checks and state
// changes are indivisible. The refs index is never cleared: a content
// reference stays claimed even after its message is deleted.
type Repository struct {
	mu          sync.RWMutex
	params      registry.Params
	admin       string
	authorized  map[string]bool
	messages    map[int64]*registry.Message
	refs        map[string]int64 // content_ref -> message id, populated once
	bySubmitter map[string][]int64
	accounts    map[string]*registry.SubmitterAccount
	nextID      int64
	balance     int64
}

// Compile-time interface check.
var _ registry.Repository = (*Repository)(nil)

// New creates a new in-memory repository
func New(params registry.Params) (*Repository, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Repository{
		params:      params,
		admin:       params.Admin,
		authorized:  make(map[string]bool),
		messages:    make(map[int64]*registry.Message),
		refs:        make(map[string]int64),
		bySubmitter: make(map[string][]int64),
		accounts:    make(map[string]*registry.SubmitterAccount),
	}, nil
}

// isAuthorizedLocked reports whether addr may perform gated operations.
// Callers must hold mu.
func (r *Repository) isAuthorizedLocked(addr string) bool {
	return addr == r.admin || r.authorized[addr]
}

// accountLocked returns the account for addr, creating an inactive
// zero-quota record on first sight. Callers must hold mu for writing.
func (r *Repository) accountLocked(addr string) *registry.SubmitterAccount {
	account, ok := r.accounts[addr]
	if !ok {
		account = &registry.SubmitterAccount{Address: addr}
		r.accounts[addr] = account
	}
	return account
}

func copyMessage(msg *registry.Message) *registry.Message {
	msgCopy := *msg
	if msg.Access != nil {
		msgCopy.Access = make(map[string]bool, len(msg.Access))
		for k, v := range msg.Access {
			msgCopy.Access[k] = v
		}
	}
	return &msgCopy
}

// Message operations

func (r *Repository) StoreMessage(ctx context.Context, params registry.StoreMessageParams) (*registry.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAuthorizedLocked(params.Caller) {
		return nil, registry.ErrUnauthorized
	}
	if params.Payment < r.params.MinimumStoreFee {
		return nil, registry.ErrInsufficientFee
	}
	if params.ContentRef == "" {
		return nil, registry.ErrEmptyContentRef
	}
	if _, exists := r.refs[params.ContentRef]; exists {
		return nil, registry.ErrDuplicateContent
	}

	r.nextID++
	msg := &registry.Message{
		ID:          r.nextID,
		Sender:      params.Sender,
		ContentRef:  params.ContentRef,
		MessageType: params.MessageType,
		CreatedAt:   time.Now().UTC(),
		Access:      map[string]bool{params.Sender: true},
	}

	r.messages[msg.ID] = msg
	r.refs[params.ContentRef] = msg.ID
	r.bySubmitter[params.Sender] = append(r.bySubmitter[params.Sender], msg.ID)

	account := r.accountLocked(params.Sender)
	account.MessageCount++
	account.UsedStorage += r.params.MessageSizeEstimate

	r.balance += params.Payment

	return copyMessage(msg), nil
}

func (r *Repository) RetrieveMessage(ctx context.Context, id int64, requester string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, exists := r.messages[id]
	if !exists {
		return "", registry.ErrNotFound
	}
	if msg.Deleted {
		return "", registry.ErrDeleted
	}
	if !msg.HasAccess(requester) && requester != r.admin {
		return "", registry.ErrAccessDenied
	}

	return msg.ContentRef, nil
}

func (r *Repository) RemoveMessage(ctx context.Context, id int64, caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, exists := r.messages[id]
	if !exists {
		return registry.ErrNotFound
	}
	if caller != msg.Sender {
		return registry.ErrNotSender
	}
	if msg.Deleted {
		return registry.ErrAlreadyDeleted
	}

	msg.Deleted = true

	// A message is counted once and deleted once, so this never underflows.
	account := r.accountLocked(msg.Sender)
	account.MessageCount--
	account.UsedStorage -= r.params.MessageSizeEstimate

	return nil
}

func (r *Repository) GrantAccess(ctx context.Context, id int64, grantee, caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, exists := r.messages[id]
	if !exists {
		return registry.ErrNotFound
	}
	if caller != msg.Sender {
		return registry.ErrNotSender
	}
	if msg.Deleted {
		return registry.ErrDeleted
	}

	if msg.Access == nil {
		msg.Access = make(map[string]bool)
	}
	msg.Access[grantee] = true

	return nil
}

func (r *Repository) RevokeAccess(ctx context.Context, id int64, grantee, caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, exists := r.messages[id]
	if !exists {
		return registry.ErrNotFound
	}
	if caller != msg.Sender {
		return registry.ErrNotSender
	}

	delete(msg.Access, grantee)

	return nil
}

func (r *Repository) GetMessage(ctx context.Context, id int64) (*registry.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, exists := r.messages[id]
	if !exists {
		return nil, registry.ErrNotFound
	}

	// Return a copy to prevent external modifications
	return copyMessage(msg), nil
}

func (r *Repository) HasAccess(ctx context.Context, id int64, user string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, exists := r.messages[id]
	if !exists {
		return false, registry.ErrNotFound
	}

	return msg.HasAccess(user), nil
}

func (r *Repository) ListBySubmitter(ctx context.Context, submitter string, offset, limit int) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bySubmitter[submitter]
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset >= len(ids) {
		return []int64{}, nil
	}

	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}

	result := make([]int64, end-offset)
	copy(result, ids[offset:end])
	return result, nil
}

func (r *Repository) TotalCount(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.nextID, nil
}

// Account operations

func (r *Repository) InitializeAccount(ctx context.Context, caller, user string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAuthorizedLocked(caller) {
		return false, registry.ErrUnauthorized
	}

	account := r.accountLocked(user)
	if account.Active {
		return false, nil
	}

	account.StorageQuota = r.params.DefaultStorageQuota
	account.Active = true

	return true, nil
}

func (r *Repository) SetQuota(ctx context.Context, caller, user string, newQuota int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return registry.ErrUnauthorized
	}
	if newQuota <= 0 {
		return registry.ErrInvalidQuota
	}

	// Overwrites unconditionally; no tighten-below-usage rejection.
	r.accountLocked(user).StorageQuota = newQuota

	return nil
}

func (r *Repository) GetAccount(ctx context.Context, user string) (*registry.SubmitterAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[user]
	if !exists {
		return &registry.SubmitterAccount{Address: user}, nil
	}

	// Return a copy to prevent external modifications
	accountCopy := *account
	return &accountCopy, nil
}

// Authorization operations

func (r *Repository) AuthorizeCaller(ctx context.Context, caller, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return registry.ErrUnauthorized
	}

	r.authorized[addr] = true

	return nil
}

func (r *Repository) RevokeCaller(ctx context.Context, caller, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return registry.ErrUnauthorized
	}

	delete(r.authorized, addr)

	return nil
}

func (r *Repository) TransferAdmin(ctx context.Context, caller, newAdmin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return registry.ErrUnauthorized
	}
	if newAdmin == "" {
		return registry.ErrInvalidAdmin
	}

	r.admin = newAdmin

	return nil
}

func (r *Repository) Admin(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.admin, nil
}

func (r *Repository) IsAuthorized(ctx context.Context, addr string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.isAuthorizedLocked(addr), nil
}

// Fee balance operations

func (r *Repository) Balance(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.balance, nil
}

func (r *Repository) DebitBalance(ctx context.Context, caller string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return 0, registry.ErrUnauthorized
	}
	if r.balance == 0 {
		return 0, registry.ErrNoBalance
	}

	amount := r.balance
	r.balance = 0

	return amount, nil
}

func (r *Repository) CreditBalance(ctx context.Context, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.balance += amount

	return nil
}
