package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftbridge/message-registry/pkg/registry"
	"github.com/swiftbridge/message-registry/pkg/registry/repo/memory"
)

const (
	testAdmin   = "admin"
	testAlice   = "alice"
	testBob     = "bob"
	testCarol   = "carol"
	testSizeEst = int64(1024)
	testQuota   = int64(10240)
	testFee     = int64(100)
)

func testParams() registry.Params {
	return registry.Params{
		Admin:               testAdmin,
		MessageSizeEstimate: testSizeEst,
		DefaultStorageQuota: testQuota,
		MinimumStoreFee:     testFee,
	}
}

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []registry.Event
}

func (c *captureSink) Publish(ctx context.Context, event registry.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) all() []registry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]registry.Event(nil), c.events...)
}

type failingSink struct{}

func (failingSink) Publish(ctx context.Context, event registry.Event) error {
	return fmt.Errorf("sink unavailable")
}

func TestServiceCreation(t *testing.T) {
	repo, err := memory.New(testParams())
	require.NoError(t, err)

	tests := []struct {
		name        string
		options     []registry.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []registry.Option{},
			expectError: true,
		},
		{
			name: "with repository should succeed",
			options: []registry.Option{
				registry.WithRepository(repo),
			},
			expectError: false,
		},
		{
			name: "with repository and event sink should succeed",
			options: []registry.Option{
				registry.WithRepository(repo),
				registry.WithEventSink(registry.NewNoopEventSink()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := registry.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func setupTestService(t *testing.T) registry.Service {
	t.Helper()
	repo, err := memory.New(testParams())
	require.NoError(t, err)

	svc, err := registry.New(
		registry.WithRepository(repo),
		registry.WithEventSink(registry.NewNoopEventSink()),
	)
	require.NoError(t, err)
	require.NotNil(t, svc)

	return svc
}

func mustStoreMessage(t *testing.T, svc registry.Service, sender, ref string) *registry.Message {
	t.Helper()
	msg, err := svc.StoreMessage(context.Background(), registry.StoreMessageRequest{
		Caller:      testAdmin,
		Sender:      sender,
		ContentRef:  ref,
		MessageType: "text",
		Payment:     testFee,
	})
	require.NoError(t, err)
	return msg
}

func TestMessageOperations(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	t.Run("StoreMessage", func(t *testing.T) {
		msg, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:      testAdmin,
			Sender:      testAlice,
			ContentRef:  "Qm123",
			MessageType: "text",
			Payment:     testFee,
		})
		assert.NoError(t, err)
		assert.NotNil(t, msg)
		assert.Equal(t, int64(1), msg.ID)
		assert.Equal(t, testAlice, msg.Sender)
		assert.Equal(t, "Qm123", msg.ContentRef)
		assert.Equal(t, "text", msg.MessageType)
		assert.False(t, msg.CreatedAt.IsZero())
		assert.True(t, msg.HasAccess(testAlice))
	})

	t.Run("StoreMessage_Unauthorized", func(t *testing.T) {
		msg, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     testAlice,
			Sender:     testAlice,
			ContentRef: "Qm200",
			Payment:    testFee,
		})
		assert.ErrorIs(t, err, registry.ErrUnauthorized)
		assert.Nil(t, msg)

		var msgErr *registry.MessageError
		require.ErrorAs(t, err, &msgErr)
		assert.Equal(t, "store", msgErr.Op)
	})

	t.Run("StoreMessage_AuthorizationBeforeFee", func(t *testing.T) {
		// An unauthorized caller underpaying sees the gate, not the fee.
		_, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     testAlice,
			Sender:     testAlice,
			ContentRef: "Qm201",
			Payment:    0,
		})
		assert.ErrorIs(t, err, registry.ErrUnauthorized)
	})

	t.Run("StoreMessage_InsufficientFee", func(t *testing.T) {
		_, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     testAdmin,
			Sender:     testAlice,
			ContentRef: "Qm202",
			Payment:    testFee - 1,
		})
		assert.ErrorIs(t, err, registry.ErrInsufficientFee)
	})

	t.Run("StoreMessage_EmptyContentRef", func(t *testing.T) {
		_, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:  testAdmin,
			Sender:  testAlice,
			Payment: testFee,
		})
		assert.ErrorIs(t, err, registry.ErrEmptyContentRef)
	})

	t.Run("StoreMessage_DuplicateContent", func(t *testing.T) {
		_, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     testAdmin,
			Sender:     testBob,
			ContentRef: "Qm123",
			Payment:    testFee,
		})
		assert.ErrorIs(t, err, registry.ErrDuplicateContent)
	})

	t.Run("RetrieveMessage", func(t *testing.T) {
		ref, err := svc.RetrieveMessage(ctx, registry.RetrieveMessageRequest{
			ID:        1,
			Requester: testAlice,
		})
		assert.NoError(t, err)
		assert.Equal(t, "Qm123", ref)
	})

	t.Run("RetrieveMessage_AccessDenied", func(t *testing.T) {
		_, err := svc.RetrieveMessage(ctx, registry.RetrieveMessageRequest{
			ID:        1,
			Requester: testBob,
		})
		assert.ErrorIs(t, err, registry.ErrAccessDenied)
	})

	t.Run("RetrieveMessage_AdminBypass", func(t *testing.T) {
		ref, err := svc.RetrieveMessage(ctx, registry.RetrieveMessageRequest{
			ID:        1,
			Requester: testAdmin,
		})
		assert.NoError(t, err)
		assert.Equal(t, "Qm123", ref)
	})

	t.Run("RetrieveMessage_NotFound", func(t *testing.T) {
		_, err := svc.RetrieveMessage(ctx, registry.RetrieveMessageRequest{
			ID:        9999,
			Requester: testAlice,
		})
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("RemoveMessage_Lifecycle", func(t *testing.T) {
		// Store, delete, then watch the tombstone behave.
		msg := mustStoreMessage(t, svc, testAlice, "QmLife")

		err := svc.RemoveMessage(ctx, registry.RemoveMessageRequest{ID: msg.ID, Caller: testBob})
		assert.ErrorIs(t, err, registry.ErrNotSender)

		err = svc.RemoveMessage(ctx, registry.RemoveMessageRequest{ID: msg.ID, Caller: testAlice})
		assert.NoError(t, err)

		_, err = svc.RetrieveMessage(ctx, registry.RetrieveMessageRequest{ID: msg.ID, Requester: testAlice})
		assert.ErrorIs(t, err, registry.ErrDeleted)

		err = svc.RemoveMessage(ctx, registry.RemoveMessageRequest{ID: msg.ID, Caller: testAlice})
		assert.ErrorIs(t, err, registry.ErrAlreadyDeleted)

		// The deletion does not release the content ref.
		_, err = svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     testAdmin,
			Sender:     testBob,
			ContentRef: "QmLife",
			Payment:    testFee,
		})
		assert.ErrorIs(t, err, registry.ErrDuplicateContent)
	})

	t.Run("GetMessage_IncludesDeleted", func(t *testing.T) {
		msg := mustStoreMessage(t, svc, testAlice, "QmTombstone")
		require.NoError(t, svc.GrantAccess(ctx, registry.AccessRequest{ID: msg.ID, Grantee: testBob, Caller: testAlice}))
		require.NoError(t, svc.RemoveMessage(ctx, registry.RemoveMessageRequest{ID: msg.ID, Caller: testAlice}))

		got, err := svc.GetMessage(ctx, msg.ID)
		assert.NoError(t, err)
		assert.True(t, got.Deleted)
		assert.Equal(t, "QmTombstone", got.ContentRef)
		assert.True(t, got.Access[testBob])
	})

	t.Run("IDsStayMonotonicAcrossDeletions", func(t *testing.T) {
		first := mustStoreMessage(t, svc, testCarol, "QmMono1")
		second := mustStoreMessage(t, svc, testCarol, "QmMono2")
		require.NoError(t, svc.RemoveMessage(ctx, registry.RemoveMessageRequest{ID: first.ID, Caller: testCarol}))

		third := mustStoreMessage(t, svc, testCarol, "QmMono3")
		assert.Equal(t, second.ID+1, third.ID)
	})

	t.Run("TotalCount_CountsDeleted", func(t *testing.T) {
		count, err := svc.TotalCount(ctx)
		assert.NoError(t, err)

		msg := mustStoreMessage(t, svc, testCarol, "QmCount")
		require.NoError(t, svc.RemoveMessage(ctx, registry.RemoveMessageRequest{ID: msg.ID, Caller: testCarol}))

		after, err := svc.TotalCount(ctx)
		assert.NoError(t, err)
		assert.Equal(t, count+1, after)
	})
}

func TestListBySubmitter(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		msg := mustStoreMessage(t, svc, testAlice, fmt.Sprintf("QmPage%d", i))
		ids = append(ids, msg.ID)
	}

	t.Run("Page", func(t *testing.T) {
		got, err := svc.ListBySubmitter(ctx, registry.ListBySubmitterRequest{
			Submitter: testAlice, Offset: 1, Limit: 2,
		})
		assert.NoError(t, err)
		assert.Equal(t, ids[1:3], got)
	})

	t.Run("ClipsInsteadOfFailing", func(t *testing.T) {
		got, err := svc.ListBySubmitter(ctx, registry.ListBySubmitterRequest{
			Submitter: testAlice, Offset: 3, Limit: 100,
		})
		assert.NoError(t, err)
		assert.Equal(t, ids[3:], got)

		got, err = svc.ListBySubmitter(ctx, registry.ListBySubmitterRequest{
			Submitter: testAlice, Offset: 50, Limit: 10,
		})
		assert.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("UnknownSubmitter", func(t *testing.T) {
		got, err := svc.ListBySubmitter(ctx, registry.ListBySubmitterRequest{
			Submitter: "nobody", Offset: 0, Limit: 10,
		})
		assert.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestAccessControlOperations(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	msg := mustStoreMessage(t, svc, testAlice, "QmShared")

	t.Run("GrantAndRetrieve", func(t *testing.T) {
		err := svc.GrantAccess(ctx, registry.AccessRequest{ID: msg.ID, Grantee: testBob, Caller: testAlice})
		assert.NoError(t, err)

		ref, err := svc.RetrieveMessage(ctx, registry.RetrieveMessageRequest{ID: msg.ID, Requester: testBob})
		assert.NoError(t, err)
		assert.Equal(t, "QmShared", ref)
	})

	t.Run("GrantIdempotent", func(t *testing.T) {
		err := svc.GrantAccess(ctx, registry.AccessRequest{ID: msg.ID, Grantee: testBob, Caller: testAlice})
		assert.NoError(t, err)
	})

	t.Run("GrantRequiresSender", func(t *testing.T) {
		err := svc.GrantAccess(ctx, registry.AccessRequest{ID: msg.ID, Grantee: testCarol, Caller: testBob})
		assert.ErrorIs(t, err, registry.ErrNotSender)
	})

	t.Run("Revoke", func(t *testing.T) {
		err := svc.RevokeAccess(ctx, registry.AccessRequest{ID: msg.ID, Grantee: testBob, Caller: testAlice})
		assert.NoError(t, err)

		_, err = svc.RetrieveMessage(ctx, registry.RetrieveMessageRequest{ID: msg.ID, Requester: testBob})
		assert.ErrorIs(t, err, registry.ErrAccessDenied)
	})

	t.Run("RevokeSenderLeavesImplicitAccess", func(t *testing.T) {
		err := svc.RevokeAccess(ctx, registry.AccessRequest{ID: msg.ID, Grantee: testAlice, Caller: testAlice})
		assert.NoError(t, err)

		has, err := svc.HasAccess(ctx, msg.ID, testAlice)
		assert.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("DeletedMessage", func(t *testing.T) {
		deleted := mustStoreMessage(t, svc, testAlice, "QmSharedDeleted")
		require.NoError(t, svc.GrantAccess(ctx, registry.AccessRequest{ID: deleted.ID, Grantee: testBob, Caller: testAlice}))
		require.NoError(t, svc.RemoveMessage(ctx, registry.RemoveMessageRequest{ID: deleted.ID, Caller: testAlice}))

		err := svc.GrantAccess(ctx, registry.AccessRequest{ID: deleted.ID, Grantee: testCarol, Caller: testAlice})
		assert.ErrorIs(t, err, registry.ErrDeleted)

		err = svc.RevokeAccess(ctx, registry.AccessRequest{ID: deleted.ID, Grantee: testBob, Caller: testAlice})
		assert.NoError(t, err)
	})

	t.Run("HasAccess_NotFound", func(t *testing.T) {
		_, err := svc.HasAccess(ctx, 9999, testAlice)
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})
}

func TestAccountOperations(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	t.Run("InitializeAccount", func(t *testing.T) {
		err := svc.InitializeAccount(ctx, testAdmin, testAlice)
		assert.NoError(t, err)

		account, err := svc.AccountInfo(ctx, testAlice)
		assert.NoError(t, err)
		assert.True(t, account.Active)
		assert.Equal(t, testQuota, account.StorageQuota)
	})

	t.Run("InitializeUnauthorized", func(t *testing.T) {
		err := svc.InitializeAccount(ctx, testBob, testBob)
		assert.ErrorIs(t, err, registry.ErrUnauthorized)
	})

	t.Run("SetQuota", func(t *testing.T) {
		err := svc.SetQuota(ctx, registry.SetQuotaRequest{Caller: testAdmin, User: testAlice, NewQuota: 4 * testQuota})
		assert.NoError(t, err)

		account, err := svc.AccountInfo(ctx, testAlice)
		assert.NoError(t, err)
		assert.Equal(t, 4*testQuota, account.StorageQuota)
	})

	t.Run("SetQuota_Validation", func(t *testing.T) {
		err := svc.SetQuota(ctx, registry.SetQuotaRequest{Caller: testAlice, User: testAlice, NewQuota: 1})
		assert.ErrorIs(t, err, registry.ErrUnauthorized)

		err = svc.SetQuota(ctx, registry.SetQuotaRequest{Caller: testAdmin, User: testAlice, NewQuota: 0})
		assert.ErrorIs(t, err, registry.ErrInvalidQuota)
	})

	t.Run("UsageTracksLiveMessages", func(t *testing.T) {
		var stored []*registry.Message
		for i := 0; i < 3; i++ {
			stored = append(stored, mustStoreMessage(t, svc, testAlice, fmt.Sprintf("QmUse%d", i)))
		}
		require.NoError(t, svc.RemoveMessage(ctx, registry.RemoveMessageRequest{ID: stored[0].ID, Caller: testAlice}))

		account, err := svc.AccountInfo(ctx, testAlice)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), account.MessageCount)
		assert.Equal(t, 2*testSizeEst, account.UsedStorage)
	})

	t.Run("QuotaNeverBlocksStore", func(t *testing.T) {
		// Usage is advisory: storing past the quota still succeeds.
		require.NoError(t, svc.SetQuota(ctx, registry.SetQuotaRequest{Caller: testAdmin, User: testAlice, NewQuota: 1}))

		_, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     testAdmin,
			Sender:     testAlice,
			ContentRef: "QmOverQuota",
			Payment:    testFee,
		})
		assert.NoError(t, err)
	})

	t.Run("AccountInfo_Unknown", func(t *testing.T) {
		account, err := svc.AccountInfo(ctx, "nobody")
		assert.NoError(t, err)
		assert.Equal(t, "nobody", account.Address)
		assert.False(t, account.Active)
		assert.Zero(t, account.MessageCount)
	})
}

func TestAdminOperations(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	t.Run("AuthorizeCaller", func(t *testing.T) {
		err := svc.AuthorizeCaller(ctx, testAdmin, "gateway")
		assert.NoError(t, err)

		ok, err := svc.IsAuthorized(ctx, "gateway")
		assert.NoError(t, err)
		assert.True(t, ok)

		_, err = svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     "gateway",
			Sender:     testAlice,
			ContentRef: "QmViaGateway",
			Payment:    testFee,
		})
		assert.NoError(t, err)
	})

	t.Run("RevokeCaller", func(t *testing.T) {
		err := svc.RevokeCaller(ctx, testAdmin, "gateway")
		assert.NoError(t, err)

		_, err = svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     "gateway",
			Sender:     testAlice,
			ContentRef: "QmRevoked",
			Payment:    testFee,
		})
		assert.ErrorIs(t, err, registry.ErrUnauthorized)
	})

	t.Run("AdminSurfaceIsAdminOnly", func(t *testing.T) {
		assert.ErrorIs(t, svc.AuthorizeCaller(ctx, testAlice, testBob), registry.ErrUnauthorized)
		assert.ErrorIs(t, svc.RevokeCaller(ctx, testAlice, testBob), registry.ErrUnauthorized)
		assert.ErrorIs(t, svc.TransferAdmin(ctx, testAlice, testBob), registry.ErrUnauthorized)
		_, err := svc.Withdraw(ctx, testAlice)
		assert.ErrorIs(t, err, registry.ErrUnauthorized)
	})

	t.Run("TransferAdmin", func(t *testing.T) {
		err := svc.TransferAdmin(ctx, testAdmin, "successor")
		assert.NoError(t, err)

		admin, err := svc.Admin(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "successor", admin)

		// Privileges follow the role, not the address.
		err = svc.AuthorizeCaller(ctx, testAdmin, testBob)
		assert.ErrorIs(t, err, registry.ErrUnauthorized)
		err = svc.AuthorizeCaller(ctx, "successor", testBob)
		assert.NoError(t, err)
	})

	t.Run("TransferAdmin_InvalidTarget", func(t *testing.T) {
		err := svc.TransferAdmin(ctx, "successor", "")
		assert.ErrorIs(t, err, registry.ErrInvalidAdmin)
	})
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("CollectsAccumulatedFees", func(t *testing.T) {
		svc := setupTestService(t)

		mustStoreMessage(t, svc, testAlice, "QmW1")
		_, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     testAdmin,
			Sender:     testAlice,
			ContentRef: "QmW2",
			Payment:    testFee + 30,
		})
		require.NoError(t, err)

		balance, err := svc.Balance(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2*testFee+30, balance)

		amount, err := svc.Withdraw(ctx, testAdmin)
		assert.NoError(t, err)
		assert.Equal(t, 2*testFee+30, amount)

		balance, err = svc.Balance(ctx)
		require.NoError(t, err)
		assert.Zero(t, balance)

		_, err = svc.Withdraw(ctx, testAdmin)
		assert.ErrorIs(t, err, registry.ErrNoBalance)
	})

	t.Run("RestoresBalanceWhenPayoutFails", func(t *testing.T) {
		repo, err := memory.New(testParams())
		require.NoError(t, err)

		svc, err := registry.New(
			registry.WithRepository(repo),
			registry.WithPayout(func(ctx context.Context, to string, amount int64) error {
				return fmt.Errorf("wire transfer rejected")
			}),
		)
		require.NoError(t, err)

		mustStoreMessage(t, svc, testAlice, "QmWFail")

		_, err = svc.Withdraw(ctx, testAdmin)
		assert.ErrorIs(t, err, registry.ErrTransferFailed)

		// The debited amount went back when the payout bounced.
		balance, err := svc.Balance(ctx)
		require.NoError(t, err)
		assert.Equal(t, testFee, balance)
	})

	t.Run("PayoutReceivesCapturedAmount", func(t *testing.T) {
		repo, err := memory.New(testParams())
		require.NoError(t, err)

		var paidTo string
		var paidAmount int64
		svc, err := registry.New(
			registry.WithRepository(repo),
			registry.WithPayout(func(ctx context.Context, to string, amount int64) error {
				paidTo = to
				paidAmount = amount
				return nil
			}),
		)
		require.NoError(t, err)

		mustStoreMessage(t, svc, testAlice, "QmWPay")

		amount, err := svc.Withdraw(ctx, testAdmin)
		require.NoError(t, err)
		assert.Equal(t, testFee, amount)
		assert.Equal(t, testAdmin, paidTo)
		assert.Equal(t, testFee, paidAmount)
	})
}

func TestEventEmission(t *testing.T) {
	ctx := context.Background()

	newServiceWithSink := func(t *testing.T) (registry.Service, *captureSink) {
		t.Helper()
		repo, err := memory.New(testParams())
		require.NoError(t, err)
		sink := &captureSink{}
		svc, err := registry.New(
			registry.WithRepository(repo),
			registry.WithEventSink(sink),
		)
		require.NoError(t, err)
		return svc, sink
	}

	t.Run("MutationsEmitEvents", func(t *testing.T) {
		svc, sink := newServiceWithSink(t)

		msg := mustStoreMessage(t, svc, testAlice, "QmEvt")
		require.NoError(t, svc.GrantAccess(ctx, registry.AccessRequest{ID: msg.ID, Grantee: testBob, Caller: testAlice}))
		require.NoError(t, svc.RemoveMessage(ctx, registry.RemoveMessageRequest{ID: msg.ID, Caller: testAlice}))

		events := sink.all()
		require.Len(t, events, 3)

		assert.Equal(t, registry.EventMessageStored, events[0].Kind)
		assert.Equal(t, msg.ID, events[0].MessageID)
		assert.Equal(t, testAdmin, events[0].Actor)
		assert.Equal(t, "QmEvt", events[0].Payload["content_ref"])
		assert.NotEmpty(t, events[0].ID)
		assert.False(t, events[0].Time.IsZero())

		assert.Equal(t, registry.EventAccessGranted, events[1].Kind)
		assert.Equal(t, testBob, events[1].Payload["grantee"])

		assert.Equal(t, registry.EventMessageDeleted, events[2].Kind)
		assert.Equal(t, testAlice, events[2].Actor)
	})

	t.Run("FailedMutationsEmitNothing", func(t *testing.T) {
		svc, sink := newServiceWithSink(t)

		_, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     testAlice,
			Sender:     testAlice,
			ContentRef: "QmNoEvt",
			Payment:    testFee,
		})
		require.Error(t, err)
		assert.Empty(t, sink.all())
	})

	t.Run("RepeatInitializeEmitsOnce", func(t *testing.T) {
		svc, sink := newServiceWithSink(t)

		require.NoError(t, svc.InitializeAccount(ctx, testAdmin, testAlice))
		require.NoError(t, svc.InitializeAccount(ctx, testAdmin, testAlice))

		var initEvents int
		for _, event := range sink.all() {
			if event.Kind == registry.EventAccountInitialized {
				initEvents++
			}
		}
		assert.Equal(t, 1, initEvents)
	})

	t.Run("SinkFailureDoesNotFailOperation", func(t *testing.T) {
		repo, err := memory.New(testParams())
		require.NoError(t, err)
		svc, err := registry.New(
			registry.WithRepository(repo),
			registry.WithEventSink(failingSink{}),
		)
		require.NoError(t, err)

		msg, err := svc.StoreMessage(ctx, registry.StoreMessageRequest{
			Caller:     testAdmin,
			Sender:     testAlice,
			ContentRef: "QmSinkDown",
			Payment:    testFee,
		})
		assert.NoError(t, err)
		assert.NotNil(t, msg)
	})
}
