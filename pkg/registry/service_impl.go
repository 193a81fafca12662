package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository Repository
	eventSink  EventSink
	payout     PayoutFunc
	logger     *slog.Logger

	// withdrawMu makes the capture/payout/restore sequence non-reentrant.
	withdrawMu sync.Mutex
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithPayout sets the fee payout channel used by Withdraw
func WithPayout(payout PayoutFunc) Option {
	return func(s *service) {
		s.payout = payout
	}
}

// WithLogger sets the logger used for event-sink and payout failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// emit fires an event after a successful mutation. Sink failures are logged
// and never fail the operation.
func (s *service) emit(ctx context.Context, event Event) {
	if s.eventSink == nil {
		return
	}
	event.ID = uuid.New()
	event.Time = time.Now().UTC()
	if err := s.eventSink.Publish(ctx, event); err != nil {
		s.logger.Error("event publish failed", "kind", event.Kind, "message_id", event.MessageID, "error", err)
	}
}

// Message operations

func (s *service) StoreMessage(ctx context.Context, req StoreMessageRequest) (*Message, error) {
	msg, err := s.repository.StoreMessage(ctx, StoreMessageParams{
		Caller:      req.Caller,
		Sender:      req.Sender,
		ContentRef:  req.ContentRef,
		MessageType: req.MessageType,
		Payment:     req.Payment,
	})
	if err != nil {
		return nil, &MessageError{Op: "store", Err: err}
	}

	s.emit(ctx, Event{
		Kind:      EventMessageStored,
		MessageID: msg.ID,
		Actor:     req.Caller,
		Payload: map[string]any{
			"sender":       msg.Sender,
			"content_ref":  msg.ContentRef,
			"message_type": msg.MessageType,
		},
	})

	return msg, nil
}

func (s *service) RetrieveMessage(ctx context.Context, req RetrieveMessageRequest) (string, error) {
	contentRef, err := s.repository.RetrieveMessage(ctx, req.ID, req.Requester)
	if err != nil {
		return "", &MessageError{MessageID: req.ID, Op: "retrieve", Err: err}
	}

	// Reads have no persisted state change but are observable.
	s.emit(ctx, Event{
		Kind:      EventMessageRetrieved,
		MessageID: req.ID,
		Actor:     req.Requester,
	})

	return contentRef, nil
}

func (s *service) RemoveMessage(ctx context.Context, req RemoveMessageRequest) error {
	if err := s.repository.RemoveMessage(ctx, req.ID, req.Caller); err != nil {
		return &MessageError{MessageID: req.ID, Op: "remove", Err: err}
	}

	s.emit(ctx, Event{
		Kind:      EventMessageDeleted,
		MessageID: req.ID,
		Actor:     req.Caller,
	})

	return nil
}

func (s *service) GetMessage(ctx context.Context, id int64) (*Message, error) {
	msg, err := s.repository.GetMessage(ctx, id)
	if err != nil {
		return nil, &MessageError{MessageID: id, Op: "get", Err: err}
	}
	return msg, nil
}

func (s *service) ListBySubmitter(ctx context.Context, req ListBySubmitterRequest) ([]int64, error) {
	ids, err := s.repository.ListBySubmitter(ctx, req.Submitter, req.Offset, req.Limit)
	if err != nil {
		return nil, &AccountError{Address: req.Submitter, Op: "list", Err: err}
	}
	return ids, nil
}

func (s *service) TotalCount(ctx context.Context) (int64, error) {
	return s.repository.TotalCount(ctx)
}

// Access control operations

func (s *service) GrantAccess(ctx context.Context, req AccessRequest) error {
	if err := s.repository.GrantAccess(ctx, req.ID, req.Grantee, req.Caller); err != nil {
		return &MessageError{MessageID: req.ID, Op: "grant_access", Err: err}
	}

	s.emit(ctx, Event{
		Kind:      EventAccessGranted,
		MessageID: req.ID,
		Actor:     req.Caller,
		Payload:   map[string]any{"grantee": req.Grantee},
	})

	return nil
}

func (s *service) RevokeAccess(ctx context.Context, req AccessRequest) error {
	if err := s.repository.RevokeAccess(ctx, req.ID, req.Grantee, req.Caller); err != nil {
		return &MessageError{MessageID: req.ID, Op: "revoke_access", Err: err}
	}

	s.emit(ctx, Event{
		Kind:      EventAccessRevoked,
		MessageID: req.ID,
		Actor:     req.Caller,
		Payload:   map[string]any{"grantee": req.Grantee},
	})

	return nil
}

func (s *service) HasAccess(ctx context.Context, id int64, user string) (bool, error) {
	ok, err := s.repository.HasAccess(ctx, id, user)
	if err != nil {
		return false, &MessageError{MessageID: id, Op: "has_access", Err: err}
	}
	return ok, nil
}

// Account operations

func (s *service) InitializeAccount(ctx context.Context, caller, user string) error {
	activated, err := s.repository.InitializeAccount(ctx, caller, user)
	if err != nil {
		return &AccountError{Address: user, Op: "initialize", Err: err}
	}

	// Re-initializing an active account is a silent no-op.
	if activated {
		s.emit(ctx, Event{
			Kind:    EventAccountInitialized,
			Actor:   caller,
			Payload: map[string]any{"user": user},
		})
	}

	return nil
}

func (s *service) SetQuota(ctx context.Context, req SetQuotaRequest) error {
	if err := s.repository.SetQuota(ctx, req.Caller, req.User, req.NewQuota); err != nil {
		return &AccountError{Address: req.User, Op: "set_quota", Err: err}
	}

	s.emit(ctx, Event{
		Kind:    EventQuotaUpdated,
		Actor:   req.Caller,
		Payload: map[string]any{"user": req.User, "quota": req.NewQuota},
	})

	return nil
}

func (s *service) AccountInfo(ctx context.Context, user string) (*SubmitterAccount, error) {
	account, err := s.repository.GetAccount(ctx, user)
	if err != nil {
		return nil, &AccountError{Address: user, Op: "info", Err: err}
	}
	return account, nil
}

// Administrative operations

func (s *service) AuthorizeCaller(ctx context.Context, caller, addr string) error {
	if err := s.repository.AuthorizeCaller(ctx, caller, addr); err != nil {
		return &AdminError{Op: "authorize_caller", Err: err}
	}

	s.emit(ctx, Event{
		Kind:    EventCallerAuthorized,
		Actor:   caller,
		Payload: map[string]any{"address": addr},
	})

	return nil
}

func (s *service) RevokeCaller(ctx context.Context, caller, addr string) error {
	if err := s.repository.RevokeCaller(ctx, caller, addr); err != nil {
		return &AdminError{Op: "revoke_caller", Err: err}
	}

	s.emit(ctx, Event{
		Kind:    EventCallerRevoked,
		Actor:   caller,
		Payload: map[string]any{"address": addr},
	})

	return nil
}

func (s *service) TransferAdmin(ctx context.Context, caller, newAdmin string) error {
	if err := s.repository.TransferAdmin(ctx, caller, newAdmin); err != nil {
		return &AdminError{Op: "transfer_admin", Err: err}
	}

	s.emit(ctx, Event{
		Kind:    EventAdminTransferred,
		Actor:   caller,
		Payload: map[string]any{"new_admin": newAdmin},
	})

	return nil
}

func (s *service) Withdraw(ctx context.Context, caller string) (int64, error) {
	s.withdrawMu.Lock()
	defer s.withdrawMu.Unlock()

	amount, err := s.repository.DebitBalance(ctx, caller)
	if err != nil {
		return 0, &AdminError{Op: "withdraw", Err: err}
	}

	// The balance is captured before the external transfer; nothing else
	// mutates registry state after this point in the call path.
	if s.payout != nil {
		if err := s.payout(ctx, caller, amount); err != nil {
			s.logger.Error("fee payout failed", "to", caller, "amount", amount, "error", err)
			if creditErr := s.repository.CreditBalance(ctx, amount); creditErr != nil {
				s.logger.Error("balance restore failed after payout failure", "amount", amount, "error", creditErr)
			}
			return 0, &AdminError{Op: "withdraw", Err: ErrTransferFailed}
		}
	}

	s.emit(ctx, Event{
		Kind:    EventFeesWithdrawn,
		Actor:   caller,
		Payload: map[string]any{"amount": amount},
	})

	return amount, nil
}

func (s *service) Admin(ctx context.Context) (string, error) {
	return s.repository.Admin(ctx)
}

func (s *service) IsAuthorized(ctx context.Context, addr string) (bool, error) {
	return s.repository.IsAuthorized(ctx, addr)
}

func (s *service) Balance(ctx context.Context) (int64, error) {
	return s.repository.Balance(ctx)
}
