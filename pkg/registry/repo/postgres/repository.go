package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swiftbridge/message-registry/pkg/registry"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements registry.Repository using PostgreSQL
type Repository struct {
	db     DBTX
	params registry.Params
}

// Compile-time interface check.
var _ registry.Repository = (*Repository)(nil)

// New creates a new PostgreSQL repository
func New(db DBTX, params registry.Params) (*Repository, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Repository{db: db, params: params}, nil
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool, params registry.Params) (*Repository, error) {
	return New(pool, params)
}

// InitSchema creates the registry tables if they do not exist and seeds
// the singleton state row. The configured admin is only written on first
// init; a previously persisted admin wins, so transfers survive restarts.
func (r *Repository) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS registry_state (
			id              SMALLINT PRIMARY KEY CHECK (id = 1),
			admin_address   TEXT NOT NULL,
			next_message_id BIGINT NOT NULL DEFAULT 0,
			fee_balance     BIGINT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS messages (
			id           BIGINT PRIMARY KEY,
			sender       TEXT NOT NULL,
			content_ref  TEXT NOT NULL,
			message_type TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			deleted      BOOLEAN NOT NULL DEFAULT FALSE,
			CONSTRAINT messages_content_ref_key UNIQUE (content_ref)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender, id);

		CREATE TABLE IF NOT EXISTS message_access (
			message_id BIGINT NOT NULL REFERENCES messages (id),
			grantee    TEXT NOT NULL,
			PRIMARY KEY (message_id, grantee)
		);

		CREATE TABLE IF NOT EXISTS submitter_accounts (
			address       TEXT PRIMARY KEY,
			used_storage  BIGINT NOT NULL DEFAULT 0,
			storage_quota BIGINT NOT NULL DEFAULT 0,
			message_count BIGINT NOT NULL DEFAULT 0,
			active        BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS authorized_callers (
			address TEXT PRIMARY KEY
		);`

	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	seed := `
		INSERT INTO registry_state (id, admin_address)
		VALUES (1, $1)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.Exec(ctx, seed, r.params.Admin); err != nil {
		return fmt.Errorf("seed registry state: %w", err)
	}

	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "content_ref") {
				return registry.ErrDuplicateContent
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			return registry.ErrNotFound
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func isAuthorizedTx(ctx context.Context, tx pgx.Tx, admin, addr string) (bool, error) {
	if addr == admin {
		return true, nil
	}
	var ok bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM authorized_callers WHERE address = $1)`,
		addr).Scan(&ok)
	return ok, err
}

// lockAdmin locks the singleton state row and returns the current admin.
// Every mutating transaction takes this lock first, which serializes
// registry mutations the same way the other backends do.
func lockAdmin(ctx context.Context, tx pgx.Tx) (string, error) {
	var admin string
	err := tx.QueryRow(ctx,
		`SELECT admin_address FROM registry_state WHERE id = 1 FOR UPDATE`).Scan(&admin)
	if err != nil {
		return "", fmt.Errorf("lock registry state: %w", err)
	}
	return admin, nil
}

// Message operations

func (r *Repository) StoreMessage(ctx context.Context, params registry.StoreMessageParams) (*registry.Message, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin store: %w", err)
	}
	defer tx.Rollback(ctx)

	admin, err := lockAdmin(ctx, tx)
	if err != nil {
		return nil, err
	}
	authorized, err := isAuthorizedTx(ctx, tx, admin, params.Caller)
	if err != nil {
		return nil, r.handlePostgresError("store message", err)
	}
	if !authorized {
		return nil, registry.ErrUnauthorized
	}
	if params.Payment < r.params.MinimumStoreFee {
		return nil, registry.ErrInsufficientFee
	}
	if params.ContentRef == "" {
		return nil, registry.ErrEmptyContentRef
	}

	var taken bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE content_ref = $1)`,
		params.ContentRef).Scan(&taken)
	if err != nil {
		return nil, r.handlePostgresError("store message", err)
	}
	if taken {
		return nil, registry.ErrDuplicateContent
	}

	var id int64
	err = tx.QueryRow(ctx, `
		UPDATE registry_state
		SET next_message_id = next_message_id + 1,
		    fee_balance = fee_balance + $1
		WHERE id = 1
		RETURNING next_message_id`,
		params.Payment).Scan(&id)
	if err != nil {
		return nil, r.handlePostgresError("store message", err)
	}

	msg := &registry.Message{
		ID:          id,
		Sender:      params.Sender,
		ContentRef:  params.ContentRef,
		MessageType: params.MessageType,
		CreatedAt:   time.Now().UTC(),
		Access:      map[string]bool{params.Sender: true},
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, sender, content_ref, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.Sender, msg.ContentRef, msg.MessageType, msg.CreatedAt)
	if err != nil {
		return nil, r.handlePostgresError("store message", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO message_access (message_id, grantee) VALUES ($1, $2)`,
		msg.ID, msg.Sender)
	if err != nil {
		return nil, r.handlePostgresError("store message", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO submitter_accounts (address, used_storage, message_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (address) DO UPDATE SET
			used_storage = submitter_accounts.used_storage + EXCLUDED.used_storage,
			message_count = submitter_accounts.message_count + 1`,
		msg.Sender, r.params.MessageSizeEstimate)
	if err != nil {
		return nil, r.handlePostgresError("store message", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit store: %w", err)
	}
	return msg, nil
}

func (r *Repository) RetrieveMessage(ctx context.Context, id int64, requester string) (string, error) {
	query := `
		SELECT m.content_ref, m.deleted,
		       (m.sender = $2
		        OR EXISTS (SELECT 1 FROM message_access a WHERE a.message_id = m.id AND a.grantee = $2)
		        OR $2 = (SELECT admin_address FROM registry_state WHERE id = 1)) AS allowed
		FROM messages m WHERE m.id = $1`

	var ref string
	var deleted, allowed bool
	err := r.db.QueryRow(ctx, query, id, requester).Scan(&ref, &deleted, &allowed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", registry.ErrNotFound
		}
		return "", r.handlePostgresError("retrieve message", err)
	}
	if deleted {
		return "", registry.ErrDeleted
	}
	if !allowed {
		return "", registry.ErrAccessDenied
	}

	return ref, nil
}

func (r *Repository) RemoveMessage(ctx context.Context, id int64, caller string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer tx.Rollback(ctx)

	var sender string
	var deleted bool
	err = tx.QueryRow(ctx,
		`SELECT sender, deleted FROM messages WHERE id = $1 FOR UPDATE`,
		id).Scan(&sender, &deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.ErrNotFound
		}
		return r.handlePostgresError("remove message", err)
	}
	if caller != sender {
		return registry.ErrNotSender
	}
	if deleted {
		return registry.ErrAlreadyDeleted
	}

	if _, err := tx.Exec(ctx, `UPDATE messages SET deleted = TRUE WHERE id = $1`, id); err != nil {
		return r.handlePostgresError("remove message", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE submitter_accounts
		SET used_storage = used_storage - $2, message_count = message_count - 1
		WHERE address = $1`,
		sender, r.params.MessageSizeEstimate)
	if err != nil {
		return r.handlePostgresError("remove message", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) GrantAccess(ctx context.Context, id int64, grantee, caller string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin grant: %w", err)
	}
	defer tx.Rollback(ctx)

	var sender string
	var deleted bool
	err = tx.QueryRow(ctx,
		`SELECT sender, deleted FROM messages WHERE id = $1 FOR UPDATE`,
		id).Scan(&sender, &deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.ErrNotFound
		}
		return r.handlePostgresError("grant access", err)
	}
	if caller != sender {
		return registry.ErrNotSender
	}
	if deleted {
		return registry.ErrDeleted
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO message_access (message_id, grantee) VALUES ($1, $2)
		ON CONFLICT (message_id, grantee) DO NOTHING`,
		id, grantee)
	if err != nil {
		return r.handlePostgresError("grant access", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) RevokeAccess(ctx context.Context, id int64, grantee, caller string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin revoke: %w", err)
	}
	defer tx.Rollback(ctx)

	var sender string
	err = tx.QueryRow(ctx,
		`SELECT sender FROM messages WHERE id = $1 FOR UPDATE`,
		id).Scan(&sender)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.ErrNotFound
		}
		return r.handlePostgresError("revoke access", err)
	}
	if caller != sender {
		return registry.ErrNotSender
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM message_access WHERE message_id = $1 AND grantee = $2`,
		id, grantee)
	if err != nil {
		return r.handlePostgresError("revoke access", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) GetMessage(ctx context.Context, id int64) (*registry.Message, error) {
	query := `
		SELECT id, sender, content_ref, message_type, created_at, deleted
		FROM messages WHERE id = $1`

	var msg registry.Message
	err := r.db.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.Sender, &msg.ContentRef, &msg.MessageType,
		&msg.CreatedAt, &msg.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, r.handlePostgresError("get message", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT grantee FROM message_access WHERE message_id = $1`, id)
	if err != nil {
		return nil, r.handlePostgresError("get message", err)
	}
	defer rows.Close()

	msg.Access = make(map[string]bool)
	for rows.Next() {
		var grantee string
		if err := rows.Scan(&grantee); err != nil {
			return nil, r.handlePostgresError("get message", err)
		}
		msg.Access[grantee] = true
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("get message", err)
	}

	return &msg, nil
}

func (r *Repository) HasAccess(ctx context.Context, id int64, user string) (bool, error) {
	query := `
		SELECT (m.sender = $2
		        OR EXISTS (SELECT 1 FROM message_access a WHERE a.message_id = m.id AND a.grantee = $2))
		FROM messages m WHERE m.id = $1`

	var has bool
	err := r.db.QueryRow(ctx, query, id, user).Scan(&has)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, registry.ErrNotFound
		}
		return false, r.handlePostgresError("has access", err)
	}

	return has, nil
}

func (r *Repository) ListBySubmitter(ctx context.Context, submitter string, offset, limit int) ([]int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return []int64{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id FROM messages WHERE sender = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		submitter, limit, offset)
	if err != nil {
		return nil, r.handlePostgresError("list by submitter", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, r.handlePostgresError("list by submitter", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list by submitter", err)
	}

	return ids, nil
}

func (r *Repository) TotalCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT next_message_id FROM registry_state WHERE id = 1`).Scan(&count)
	if err != nil {
		return 0, r.handlePostgresError("total count", err)
	}
	return count, nil
}

// Account operations

func (r *Repository) InitializeAccount(ctx context.Context, caller, user string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin initialize: %w", err)
	}
	defer tx.Rollback(ctx)

	admin, err := lockAdmin(ctx, tx)
	if err != nil {
		return false, err
	}
	authorized, err := isAuthorizedTx(ctx, tx, admin, caller)
	if err != nil {
		return false, r.handlePostgresError("initialize account", err)
	}
	if !authorized {
		return false, registry.ErrUnauthorized
	}

	// Already-active accounts pass through untouched, so a tuned quota
	// survives re-initialization.
	tag, err := tx.Exec(ctx, `
		INSERT INTO submitter_accounts (address, storage_quota, active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (address) DO UPDATE SET
			storage_quota = EXCLUDED.storage_quota,
			active = TRUE
		WHERE submitter_accounts.active = FALSE`,
		user, r.params.DefaultStorageQuota)
	if err != nil {
		return false, r.handlePostgresError("initialize account", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit initialize: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) SetQuota(ctx context.Context, caller, user string, newQuota int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set quota: %w", err)
	}
	defer tx.Rollback(ctx)

	admin, err := lockAdmin(ctx, tx)
	if err != nil {
		return err
	}
	if caller != admin {
		return registry.ErrUnauthorized
	}
	if newQuota <= 0 {
		return registry.ErrInvalidQuota
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO submitter_accounts (address, storage_quota)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET storage_quota = EXCLUDED.storage_quota`,
		user, newQuota)
	if err != nil {
		return r.handlePostgresError("set quota", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) GetAccount(ctx context.Context, user string) (*registry.SubmitterAccount, error) {
	query := `
		SELECT address, used_storage, storage_quota, message_count, active
		FROM submitter_accounts WHERE address = $1`

	var account registry.SubmitterAccount
	err := r.db.QueryRow(ctx, query, user).Scan(
		&account.Address, &account.UsedStorage, &account.StorageQuota,
		&account.MessageCount, &account.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &registry.SubmitterAccount{Address: user}, nil
		}
		return nil, r.handlePostgresError("get account", err)
	}

	return &account, nil
}

// Authorization operations

func (r *Repository) AuthorizeCaller(ctx context.Context, caller, addr string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin authorize: %w", err)
	}
	defer tx.Rollback(ctx)

	admin, err := lockAdmin(ctx, tx)
	if err != nil {
		return err
	}
	if caller != admin {
		return registry.ErrUnauthorized
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO authorized_callers (address) VALUES ($1)
		ON CONFLICT (address) DO NOTHING`,
		addr)
	if err != nil {
		return r.handlePostgresError("authorize caller", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) RevokeCaller(ctx context.Context, caller, addr string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin revoke caller: %w", err)
	}
	defer tx.Rollback(ctx)

	admin, err := lockAdmin(ctx, tx)
	if err != nil {
		return err
	}
	if caller != admin {
		return registry.ErrUnauthorized
	}

	if _, err := tx.Exec(ctx, `DELETE FROM authorized_callers WHERE address = $1`, addr); err != nil {
		return r.handlePostgresError("revoke caller", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) TransferAdmin(ctx context.Context, caller, newAdmin string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	admin, err := lockAdmin(ctx, tx)
	if err != nil {
		return err
	}
	if caller != admin {
		return registry.ErrUnauthorized
	}
	if newAdmin == "" {
		return registry.ErrInvalidAdmin
	}

	if _, err := tx.Exec(ctx, `UPDATE registry_state SET admin_address = $1 WHERE id = 1`, newAdmin); err != nil {
		return r.handlePostgresError("transfer admin", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) Admin(ctx context.Context) (string, error) {
	var admin string
	err := r.db.QueryRow(ctx,
		`SELECT admin_address FROM registry_state WHERE id = 1`).Scan(&admin)
	if err != nil {
		return "", r.handlePostgresError("admin", err)
	}
	return admin, nil
}

func (r *Repository) IsAuthorized(ctx context.Context, addr string) (bool, error) {
	query := `
		SELECT $1 = admin_address
		       OR EXISTS (SELECT 1 FROM authorized_callers WHERE address = $1)
		FROM registry_state WHERE id = 1`

	var ok bool
	if err := r.db.QueryRow(ctx, query, addr).Scan(&ok); err != nil {
		return false, r.handlePostgresError("is authorized", err)
	}
	return ok, nil
}

// Fee balance operations

func (r *Repository) Balance(ctx context.Context) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx,
		`SELECT fee_balance FROM registry_state WHERE id = 1`).Scan(&balance)
	if err != nil {
		return 0, r.handlePostgresError("balance", err)
	}
	return balance, nil
}

func (r *Repository) DebitBalance(ctx context.Context, caller string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin debit: %w", err)
	}
	defer tx.Rollback(ctx)

	var admin string
	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT admin_address, fee_balance FROM registry_state WHERE id = 1 FOR UPDATE`).Scan(&admin, &balance)
	if err != nil {
		return 0, fmt.Errorf("lock registry state: %w", err)
	}
	if caller != admin {
		return 0, registry.ErrUnauthorized
	}
	if balance == 0 {
		return 0, registry.ErrNoBalance
	}

	if _, err := tx.Exec(ctx, `UPDATE registry_state SET fee_balance = 0 WHERE id = 1`); err != nil {
		return 0, r.handlePostgresError("debit balance", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit debit: %w", err)
	}
	return balance, nil
}

func (r *Repository) CreditBalance(ctx context.Context, amount int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE registry_state SET fee_balance = fee_balance + $1 WHERE id = 1`, amount)
	if err != nil {
		return r.handlePostgresError("credit balance", err)
	}
	return nil
}
