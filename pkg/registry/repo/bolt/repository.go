// Package bolt provides a bbolt-backed implementation of the registry
// Repository interface for single-node deployments.
//
// Message ids come from the messages bucket sequence, which is bumped
// inside the same transaction as the write. A failed transaction rolls
// the bump back, so ids stay sequential with no gaps.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/swiftbridge/message-registry/pkg/registry"
)

var (
	bucketMessages    = []byte("messages")
	bucketContentRefs = []byte("content_refs")
	bucketSubmitters  = []byte("submitter_index")
	bucketAccounts    = []byte("accounts")
	bucketAuthorized  = []byte("authorized_callers")
	bucketState       = []byte("registry_state")
)

var (
	keyAdmin   = []byte("admin")
	keyBalance = []byte("balance")
)

// Repository implements registry.Repository on top of a bbolt database.
type Repository struct {
	db     *bbolt.DB
	params registry.Params
}

// Compile-time interface check.
var _ registry.Repository = (*Repository)(nil)

// Open opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist. The admin address
// is seeded from params on first open; a previously persisted admin wins
// on reopen, so transfers survive restarts.
func Open(dbPath string, params registry.Params) (*Repository, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("bolt: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: open db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMessages, bucketContentRefs, bucketSubmitters, bucketAccounts, bucketAuthorized, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("bolt: create bucket %q: %w", name, err)
			}
		}
		state := tx.Bucket(bucketState)
		if state.Get(keyAdmin) == nil {
			if err := state.Put(keyAdmin, []byte(params.Admin)); err != nil {
				return fmt.Errorf("bolt: seed admin: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db, params: params}, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error { return r.db.Close() }

// idKey encodes a message id as an 8-byte big-endian key for sorted storage.
func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

// submitterKey builds a composite index key: submitter + NUL + idKey.
// The NUL delimiter keeps one submitter's prefix from matching another's.
func submitterKey(submitter string, id int64) []byte {
	k := make([]byte, 0, len(submitter)+9)
	k = append(k, submitter...)
	k = append(k, 0)
	return append(k, idKey(id)...)
}

// encodeGob serializes a value using gob encoding.
func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGob deserializes gob-encoded data into a value.
func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func getMessage(tx *bbolt.Tx, id int64) (*registry.Message, error) {
	data := tx.Bucket(bucketMessages).Get(idKey(id))
	if data == nil {
		return nil, registry.ErrNotFound
	}
	var msg registry.Message
	if err := decodeGob(data, &msg); err != nil {
		return nil, fmt.Errorf("bolt: decode message: %w", err)
	}
	return &msg, nil
}

func putMessage(tx *bbolt.Tx, msg *registry.Message) error {
	data, err := encodeGob(msg)
	if err != nil {
		return fmt.Errorf("bolt: encode message: %w", err)
	}
	if err := tx.Bucket(bucketMessages).Put(idKey(msg.ID), data); err != nil {
		return fmt.Errorf("bolt: put message: %w", err)
	}
	return nil
}

func adminOf(tx *bbolt.Tx) string {
	return string(tx.Bucket(bucketState).Get(keyAdmin))
}

func isAuthorized(tx *bbolt.Tx, addr string) bool {
	return addr == adminOf(tx) || tx.Bucket(bucketAuthorized).Get([]byte(addr)) != nil
}

func readBalance(tx *bbolt.Tx) int64 {
	data := tx.Bucket(bucketState).Get(keyBalance)
	if data == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(data))
}

func writeBalance(tx *bbolt.Tx, balance int64) error {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(balance))
	if err := tx.Bucket(bucketState).Put(keyBalance, k); err != nil {
		return fmt.Errorf("bolt: write balance: %w", err)
	}
	return nil
}

// loadAccount returns the stored account for addr, or a zero-valued
// inactive record when addr has never been seen.
func loadAccount(tx *bbolt.Tx, addr string) (*registry.SubmitterAccount, error) {
	data := tx.Bucket(bucketAccounts).Get([]byte(addr))
	if data == nil {
		return &registry.SubmitterAccount{Address: addr}, nil
	}
	var account registry.SubmitterAccount
	if err := decodeGob(data, &account); err != nil {
		return nil, fmt.Errorf("bolt: decode account: %w", err)
	}
	return &account, nil
}

func saveAccount(tx *bbolt.Tx, account *registry.SubmitterAccount) error {
	data, err := encodeGob(account)
	if err != nil {
		return fmt.Errorf("bolt: encode account: %w", err)
	}
	if err := tx.Bucket(bucketAccounts).Put([]byte(account.Address), data); err != nil {
		return fmt.Errorf("bolt: put account: %w", err)
	}
	return nil
}

// Message operations

func (r *Repository) StoreMessage(ctx context.Context, params registry.StoreMessageParams) (*registry.Message, error) {
	var msg *registry.Message
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if !isAuthorized(tx, params.Caller) {
			return registry.ErrUnauthorized
		}
		if params.Payment < r.params.MinimumStoreFee {
			return registry.ErrInsufficientFee
		}
		if params.ContentRef == "" {
			return registry.ErrEmptyContentRef
		}
		refs := tx.Bucket(bucketContentRefs)
		if refs.Get([]byte(params.ContentRef)) != nil {
			return registry.ErrDuplicateContent
		}

		seq, err := tx.Bucket(bucketMessages).NextSequence()
		if err != nil {
			return fmt.Errorf("bolt: next sequence: %w", err)
		}

		msg = &registry.Message{
			ID:          int64(seq),
			Sender:      params.Sender,
			ContentRef:  params.ContentRef,
			MessageType: params.MessageType,
			CreatedAt:   time.Now().UTC(),
			Access:      map[string]bool{params.Sender: true},
		}

		if err := putMessage(tx, msg); err != nil {
			return err
		}
		if err := refs.Put([]byte(params.ContentRef), idKey(msg.ID)); err != nil {
			return fmt.Errorf("bolt: put content ref: %w", err)
		}
		if err := tx.Bucket(bucketSubmitters).Put(submitterKey(params.Sender, msg.ID), []byte{}); err != nil {
			return fmt.Errorf("bolt: put submitter index: %w", err)
		}

		account, err := loadAccount(tx, params.Sender)
		if err != nil {
			return err
		}
		account.MessageCount++
		account.UsedStorage += r.params.MessageSizeEstimate
		if err := saveAccount(tx, account); err != nil {
			return err
		}

		return writeBalance(tx, readBalance(tx)+params.Payment)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *Repository) RetrieveMessage(ctx context.Context, id int64, requester string) (string, error) {
	var ref string
	err := r.db.View(func(tx *bbolt.Tx) error {
		msg, err := getMessage(tx, id)
		if err != nil {
			return err
		}
		if msg.Deleted {
			return registry.ErrDeleted
		}
		if !msg.HasAccess(requester) && requester != adminOf(tx) {
			return registry.ErrAccessDenied
		}
		ref = msg.ContentRef
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (r *Repository) RemoveMessage(ctx context.Context, id int64, caller string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		msg, err := getMessage(tx, id)
		if err != nil {
			return err
		}
		if caller != msg.Sender {
			return registry.ErrNotSender
		}
		if msg.Deleted {
			return registry.ErrAlreadyDeleted
		}

		msg.Deleted = true
		if err := putMessage(tx, msg); err != nil {
			return err
		}

		account, err := loadAccount(tx, msg.Sender)
		if err != nil {
			return err
		}
		account.MessageCount--
		account.UsedStorage -= r.params.MessageSizeEstimate
		return saveAccount(tx, account)
	})
}

func (r *Repository) GrantAccess(ctx context.Context, id int64, grantee, caller string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		msg, err := getMessage(tx, id)
		if err != nil {
			return err
		}
		if caller != msg.Sender {
			return registry.ErrNotSender
		}
		if msg.Deleted {
			return registry.ErrDeleted
		}

		// gob decodes an empty map as nil.
		if msg.Access == nil {
			msg.Access = make(map[string]bool)
		}
		msg.Access[grantee] = true
		return putMessage(tx, msg)
	})
}

func (r *Repository) RevokeAccess(ctx context.Context, id int64, grantee, caller string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		msg, err := getMessage(tx, id)
		if err != nil {
			return err
		}
		if caller != msg.Sender {
			return registry.ErrNotSender
		}

		delete(msg.Access, grantee)
		return putMessage(tx, msg)
	})
}

func (r *Repository) GetMessage(ctx context.Context, id int64) (*registry.Message, error) {
	var msg *registry.Message
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		msg, err = getMessage(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *Repository) HasAccess(ctx context.Context, id int64, user string) (bool, error) {
	var has bool
	err := r.db.View(func(tx *bbolt.Tx) error {
		msg, err := getMessage(tx, id)
		if err != nil {
			return err
		}
		has = msg.HasAccess(user)
		return nil
	})
	if err != nil {
		return false, err
	}
	return has, nil
}

func (r *Repository) ListBySubmitter(ctx context.Context, submitter string, offset, limit int) ([]int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	ids := []int64{}
	err := r.db.View(func(tx *bbolt.Tx) error {
		prefix := append([]byte(submitter), 0)
		c := tx.Bucket(bucketSubmitters).Cursor()

		skipped := 0
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if len(ids) >= limit {
				break
			}
			ids = append(ids, int64(binary.BigEndian.Uint64(k[len(prefix):])))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repository) TotalCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.View(func(tx *bbolt.Tx) error {
		count = int64(tx.Bucket(bucketMessages).Sequence())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Account operations

func (r *Repository) InitializeAccount(ctx context.Context, caller, user string) (bool, error) {
	var activated bool
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if !isAuthorized(tx, caller) {
			return registry.ErrUnauthorized
		}

		account, err := loadAccount(tx, user)
		if err != nil {
			return err
		}
		if account.Active {
			return nil
		}

		account.StorageQuota = r.params.DefaultStorageQuota
		account.Active = true
		activated = true
		return saveAccount(tx, account)
	})
	if err != nil {
		return false, err
	}
	return activated, nil
}

func (r *Repository) SetQuota(ctx context.Context, caller, user string, newQuota int64) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if caller != adminOf(tx) {
			return registry.ErrUnauthorized
		}
		if newQuota <= 0 {
			return registry.ErrInvalidQuota
		}

		account, err := loadAccount(tx, user)
		if err != nil {
			return err
		}
		account.StorageQuota = newQuota
		return saveAccount(tx, account)
	})
}

func (r *Repository) GetAccount(ctx context.Context, user string) (*registry.SubmitterAccount, error) {
	var account *registry.SubmitterAccount
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		account, err = loadAccount(tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Authorization operations

func (r *Repository) AuthorizeCaller(ctx context.Context, caller, addr string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if caller != adminOf(tx) {
			return registry.ErrUnauthorized
		}
		if err := tx.Bucket(bucketAuthorized).Put([]byte(addr), []byte{}); err != nil {
			return fmt.Errorf("bolt: put authorized caller: %w", err)
		}
		return nil
	})
}

func (r *Repository) RevokeCaller(ctx context.Context, caller, addr string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if caller != adminOf(tx) {
			return registry.ErrUnauthorized
		}
		if err := tx.Bucket(bucketAuthorized).Delete([]byte(addr)); err != nil {
			return fmt.Errorf("bolt: delete authorized caller: %w", err)
		}
		return nil
	})
}

func (r *Repository) TransferAdmin(ctx context.Context, caller, newAdmin string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if caller != adminOf(tx) {
			return registry.ErrUnauthorized
		}
		if newAdmin == "" {
			return registry.ErrInvalidAdmin
		}
		if err := tx.Bucket(bucketState).Put(keyAdmin, []byte(newAdmin)); err != nil {
			return fmt.Errorf("bolt: put admin: %w", err)
		}
		return nil
	})
}

func (r *Repository) Admin(ctx context.Context) (string, error) {
	var admin string
	err := r.db.View(func(tx *bbolt.Tx) error {
		admin = adminOf(tx)
		return nil
	})
	if err != nil {
		return "", err
	}
	return admin, nil
}

func (r *Repository) IsAuthorized(ctx context.Context, addr string) (bool, error) {
	var ok bool
	err := r.db.View(func(tx *bbolt.Tx) error {
		ok = isAuthorized(tx, addr)
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Fee balance operations

func (r *Repository) Balance(ctx context.Context) (int64, error) {
	var balance int64
	err := r.db.View(func(tx *bbolt.Tx) error {
		balance = readBalance(tx)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *Repository) DebitBalance(ctx context.Context, caller string) (int64, error) {
	var amount int64
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if caller != adminOf(tx) {
			return registry.ErrUnauthorized
		}
		amount = readBalance(tx)
		if amount == 0 {
			return registry.ErrNoBalance
		}
		return writeBalance(tx, 0)
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (r *Repository) CreditBalance(ctx context.Context, amount int64) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return writeBalance(tx, readBalance(tx)+amount)
	})
}
