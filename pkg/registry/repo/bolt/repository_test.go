package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftbridge/message-registry/pkg/registry"
	"github.com/swiftbridge/message-registry/pkg/registry/repo/bolt"
)

func testParams() registry.Params {
	return registry.Params{
		Admin:               "admin",
		MessageSizeEstimate: 512,
		DefaultStorageQuota: 1 << 16,
		MinimumStoreFee:     10,
	}
}

func tempRepository(t *testing.T) *bolt.Repository {
	t.Helper()
	repo, err := bolt.Open(filepath.Join(t.TempDir(), "registry.db"), testParams())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustStore(t *testing.T, repo *bolt.Repository, sender, ref string) *registry.Message {
	t.Helper()
	msg, err := repo.StoreMessage(context.Background(), registry.StoreMessageParams{
		Caller:     "admin",
		Sender:     sender,
		ContentRef: ref,
		Payment:    10,
	})
	require.NoError(t, err)
	return msg
}

func TestBoltRepository_StoreAndRetrieve(t *testing.T) {
	repo := tempRepository(t)
	ctx := context.Background()

	msg := mustStore(t, repo, "alice", "QmFirst")
	assert.Equal(t, int64(1), msg.ID)

	ref, err := repo.RetrieveMessage(ctx, msg.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "QmFirst", ref)

	// Admin reads everything, strangers read nothing.
	_, err = repo.RetrieveMessage(ctx, msg.ID, "admin")
	assert.NoError(t, err)
	_, err = repo.RetrieveMessage(ctx, msg.ID, "bob")
	assert.ErrorIs(t, err, registry.ErrAccessDenied)

	_, err = repo.RetrieveMessage(ctx, 99, "alice")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestBoltRepository_StoreChecks(t *testing.T) {
	repo := tempRepository(t)
	ctx := context.Background()

	_, err := repo.StoreMessage(ctx, registry.StoreMessageParams{
		Caller: "stranger", Sender: "alice", ContentRef: "Qm1", Payment: 10,
	})
	assert.ErrorIs(t, err, registry.ErrUnauthorized)

	_, err = repo.StoreMessage(ctx, registry.StoreMessageParams{
		Caller: "admin", Sender: "alice", ContentRef: "Qm1", Payment: 9,
	})
	assert.ErrorIs(t, err, registry.ErrInsufficientFee)

	_, err = repo.StoreMessage(ctx, registry.StoreMessageParams{
		Caller: "admin", Sender: "alice", Payment: 10,
	})
	assert.ErrorIs(t, err, registry.ErrEmptyContentRef)

	mustStore(t, repo, "alice", "Qm1")
	_, err = repo.StoreMessage(ctx, registry.StoreMessageParams{
		Caller: "admin", Sender: "bob", ContentRef: "Qm1", Payment: 10,
	})
	assert.ErrorIs(t, err, registry.ErrDuplicateContent)
}

func TestBoltRepository_NoIDGapsAfterFailedStore(t *testing.T) {
	repo := tempRepository(t)
	ctx := context.Background()

	first := mustStore(t, repo, "alice", "QmA")
	assert.Equal(t, int64(1), first.ID)

	// A rejected store never burns an id.
	_, err := repo.StoreMessage(ctx, registry.StoreMessageParams{
		Caller: "admin", Sender: "bob", ContentRef: "QmA", Payment: 10,
	})
	require.ErrorIs(t, err, registry.ErrDuplicateContent)

	second := mustStore(t, repo, "bob", "QmB")
	assert.Equal(t, int64(2), second.ID)

	count, err := repo.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestBoltRepository_RemoveKeepsRefClaimed(t *testing.T) {
	repo := tempRepository(t)
	ctx := context.Background()

	msg := mustStore(t, repo, "alice", "QmGone")

	require.NoError(t, repo.RemoveMessage(ctx, msg.ID, "alice"))

	_, err := repo.RetrieveMessage(ctx, msg.ID, "alice")
	assert.ErrorIs(t, err, registry.ErrDeleted)

	err = repo.RemoveMessage(ctx, msg.ID, "alice")
	assert.ErrorIs(t, err, registry.ErrAlreadyDeleted)

	// The reverse index outlives the message.
	_, err = repo.StoreMessage(ctx, registry.StoreMessageParams{
		Caller: "admin", Sender: "bob", ContentRef: "QmGone", Payment: 10,
	})
	assert.ErrorIs(t, err, registry.ErrDuplicateContent)

	next := mustStore(t, repo, "alice", "QmNext")
	assert.Equal(t, msg.ID+1, next.ID)
}

func TestBoltRepository_AccessLifecycle(t *testing.T) {
	repo := tempRepository(t)
	ctx := context.Background()

	msg := mustStore(t, repo, "alice", "QmShared")

	err := repo.GrantAccess(ctx, msg.ID, "bob", "bob")
	assert.ErrorIs(t, err, registry.ErrNotSender)

	require.NoError(t, repo.GrantAccess(ctx, msg.ID, "bob", "alice"))
	ref, err := repo.RetrieveMessage(ctx, msg.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "QmShared", ref)

	require.NoError(t, repo.RevokeAccess(ctx, msg.ID, "bob", "alice"))
	_, err = repo.RetrieveMessage(ctx, msg.ID, "bob")
	assert.ErrorIs(t, err, registry.ErrAccessDenied)

	// Revoking every explicit entry leaves an empty set, which gob
	// round-trips as nil. A later grant must still work.
	require.NoError(t, repo.RevokeAccess(ctx, msg.ID, "alice", "alice"))
	has, err := repo.HasAccess(ctx, msg.ID, "alice")
	require.NoError(t, err)
	assert.True(t, has, "sender access is implicit")

	require.NoError(t, repo.GrantAccess(ctx, msg.ID, "carol", "alice"))
	has, err = repo.HasAccess(ctx, msg.ID, "carol")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestBoltRepository_GrantOnDeleted(t *testing.T) {
	repo := tempRepository(t)
	ctx := context.Background()

	msg := mustStore(t, repo, "alice", "QmDel")
	require.NoError(t, repo.GrantAccess(ctx, msg.ID, "bob", "alice"))
	require.NoError(t, repo.RemoveMessage(ctx, msg.ID, "alice"))

	err := repo.GrantAccess(ctx, msg.ID, "carol", "alice")
	assert.ErrorIs(t, err, registry.ErrDeleted)

	// Revocation still works on deleted messages.
	require.NoError(t, repo.RevokeAccess(ctx, msg.ID, "bob", "alice"))
	has, err := repo.HasAccess(ctx, msg.ID, "bob")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestBoltRepository_ListBySubmitter(t *testing.T) {
	repo := tempRepository(t)
	ctx := context.Background()

	var aliceIDs []int64
	for _, ref := range []string{"Qm1", "Qm2", "Qm3"} {
		aliceIDs = append(aliceIDs, mustStore(t, repo, "alice", ref).ID)
	}
	// A submitter whose name shares alice's prefix must not leak in.
	mustStore(t, repo, "alicea", "QmOther")

	ids, err := repo.ListBySubmitter(ctx, "alice", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, aliceIDs, ids)

	ids, err = repo.ListBySubmitter(ctx, "alice", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, aliceIDs[1:2], ids)

	ids, err = repo.ListBySubmitter(ctx, "alice", 5, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = repo.ListBySubmitter(ctx, "nobody", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBoltRepository_Accounts(t *testing.T) {
	repo := tempRepository(t)
	ctx := context.Background()

	activated, err := repo.InitializeAccount(ctx, "admin", "alice")
	require.NoError(t, err)
	assert.True(t, activated)

	activated, err = repo.InitializeAccount(ctx, "admin", "alice")
	require.NoError(t, err)
	assert.False(t, activated)

	_, err = repo.InitializeAccount(ctx, "stranger", "bob")
	assert.ErrorIs(t, err, registry.ErrUnauthorized)

	mustStore(t, repo, "alice", "QmAcct1")
	mustStore(t, repo, "alice", "QmAcct2")

	account, err := repo.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), account.MessageCount)
	assert.Equal(t, int64(1024), account.UsedStorage)
	assert.Equal(t, int64(1<<16), account.StorageQuota)
	assert.True(t, account.Active)

	require.NoError(t, repo.SetQuota(ctx, "admin", "alice", 99))
	account, err = repo.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(99), account.StorageQuota)

	assert.ErrorIs(t, repo.SetQuota(ctx, "alice", "alice", 5), registry.ErrUnauthorized)
	assert.ErrorIs(t, repo.SetQuota(ctx, "admin", "alice", 0), registry.ErrInvalidQuota)

	account, err = repo.GetAccount(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", account.Address)
	assert.False(t, account.Active)
}

func TestBoltRepository_AdminAndBalance(t *testing.T) {
	repo := tempRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.AuthorizeCaller(ctx, "admin", "gateway"))
	ok, err := repo.IsAuthorized(ctx, "gateway")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.StoreMessage(ctx, registry.StoreMessageParams{
		Caller: "gateway", Sender: "alice", ContentRef: "QmGw", Payment: 25,
	})
	require.NoError(t, err)

	balance, err := repo.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	_, err = repo.DebitBalance(ctx, "gateway")
	assert.ErrorIs(t, err, registry.ErrUnauthorized)

	amount, err := repo.DebitBalance(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(25), amount)

	_, err = repo.DebitBalance(ctx, "admin")
	assert.ErrorIs(t, err, registry.ErrNoBalance)

	require.NoError(t, repo.CreditBalance(ctx, 25))
	balance, err = repo.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	require.NoError(t, repo.RevokeCaller(ctx, "admin", "gateway"))
	ok, err = repo.IsAuthorized(ctx, "gateway")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.TransferAdmin(ctx, "admin", "newadmin"))
	admin, err := repo.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "newadmin", admin)

	assert.ErrorIs(t, repo.TransferAdmin(ctx, "admin", "x"), registry.ErrUnauthorized)
	assert.ErrorIs(t, repo.TransferAdmin(ctx, "newadmin", ""), registry.ErrInvalidAdmin)
}

func TestBoltRepository_Reopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.db")
	ctx := context.Background()

	repo, err := bolt.Open(path, testParams())
	require.NoError(t, err)

	mustStore(t, repo, "alice", "QmKeep1")
	mustStore(t, repo, "alice", "QmKeep2")
	require.NoError(t, repo.AuthorizeCaller(ctx, "admin", "gateway"))
	require.NoError(t, repo.TransferAdmin(ctx, "admin", "successor"))
	require.NoError(t, repo.Close())

	// Reopening with a different configured admin must not clobber the
	// persisted one.
	params := testParams()
	params.Admin = "latecomer"
	repo, err = bolt.Open(path, params)
	require.NoError(t, err)
	defer repo.Close()

	admin, err := repo.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "successor", admin)

	ok, err := repo.IsAuthorized(ctx, "gateway")
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := repo.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	balance, err := repo.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	// The id sequence continues where it left off.
	msg, err := repo.StoreMessage(ctx, registry.StoreMessageParams{
		Caller: "gateway", Sender: "alice", ContentRef: "QmKeep3", Payment: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.ID)

	ref, err := repo.RetrieveMessage(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, "QmKeep1", ref)
}
