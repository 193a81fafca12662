package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/swiftbridge/message-registry/pkg/registry"
	boltrepo "github.com/swiftbridge/message-registry/pkg/registry/repo/bolt"
	"github.com/swiftbridge/message-registry/pkg/registry/repo/memory"
	repopg "github.com/swiftbridge/message-registry/pkg/registry/repo/postgres"
)

const usage = `Message Registry Admin CLI

A lightweight admin tool for the message registry that only requires
database access. Gated operations run as the admin address recorded in
the store.

USAGE:
  admin <command> [options]

COMMANDS:
  status     Show admin address, fee balance and message total
  list       List messages stored by a submitter
  show       Show a single message record
  account    Show a submitter account
  authorize  Add an address to the authorized caller set
  revoke     Remove an address from the authorized caller set
  quota      Override a submitter's storage quota
  withdraw   Pay the accumulated fee balance out to the admin
  transfer   Hand registry administration to a new address

ENVIRONMENT VARIABLES:
  DATABASE_URL      PostgreSQL connection string (required for postgres)
  DATABASE_TYPE     Database type: postgres, bolt or memory (default: memory)
  DB_SCHEMA         PostgreSQL schema name (default: registry)
  BOLT_PATH         Bolt database file path (default: ./data/registry.db)
  ADMIN_ADDRESS     Admin address used to seed an empty store (default: admin)

  Configuration can be loaded from a .env file in the current directory.
  Command line environment variables override .env file values.

EXAMPLES:
  # Show registry status
  admin status

  # List messages for a submitter
  admin list --submitter=alice --limit=20

  # Show one message with its access set
  admin show --id=42

  # Authorize a gateway to store messages
  admin authorize --address=gateway-1

  # Tighten a submitter's quota
  admin quota --address=alice --quota=1073741824

  # Collect accumulated store fees
  admin withdraw

  # Output as JSON
  admin status --json
  admin list --submitter=alice --json

OPTIONS:
  --submitter=<address>   Submitter to list messages for (list)
  --id=<n>                Message ID (show)
  --address=<address>     Target address (account, authorize, revoke, quota)
  --quota=<bytes>         New storage quota (quota)
  --new-admin=<address>   New admin address (transfer)
  --offset=<n>            Pagination offset (list, default: 0)
  --limit=<n>             Maximum results (list, default: 100)
  --json                  Output as JSON
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	// Check for help
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Println(usage)
		os.Exit(0)
	}

	svc, err := createService()
	if err != nil {
		log.Fatalf("Failed to create registry service: %v", err)
	}

	ctx := context.Background()
	flags := parseFlags(os.Args[2:])

	// Execute command
	switch command {
	case "status":
		handleStatus(ctx, svc, flags)
	case "list":
		handleList(ctx, svc, flags)
	case "show":
		handleShow(ctx, svc, flags)
	case "account":
		handleAccount(ctx, svc, flags)
	case "authorize":
		handleAuthorize(ctx, svc, flags)
	case "revoke":
		handleRevoke(ctx, svc, flags)
	case "quota":
		handleQuota(ctx, svc, flags)
	case "withdraw":
		handleWithdraw(ctx, svc, flags)
	case "transfer":
		handleTransfer(ctx, svc, flags)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func createService() (registry.Service, error) {
	params := registry.DefaultParams(getEnv("ADMIN_ADDRESS", "admin"))
	dbType := getEnv("DATABASE_TYPE", "memory")

	var repo registry.Repository

	switch dbType {
	case "postgres":
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for postgres")
		}

		poolConfig, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database URL: %w", err)
		}
		poolConfig.ConnConfig.RuntimeParams["search_path"] = getEnv("DB_SCHEMA", "registry")

		pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		repo, err = repopg.NewWithPool(pool, params)
		if err != nil {
			return nil, err
		}

	case "bolt":
		boltRepo, err := boltrepo.Open(getEnv("BOLT_PATH", "./data/registry.db"), params)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt database: %w", err)
		}
		repo = boltRepo

	case "memory":
		memRepo, err := memory.New(params)
		if err != nil {
			return nil, err
		}
		repo = memRepo

	default:
		return nil, fmt.Errorf("unsupported database type: %s (use 'postgres', 'bolt' or 'memory')", dbType)
	}

	return registry.New(
		registry.WithRepository(repo),
		registry.WithEventSink(registry.NewNoopEventSink()),
	)
}

type cliFlags struct {
	submitter string
	id        int64
	address   string
	quota     int64
	newAdmin  string
	offset    int
	limit     int
	useJSON   bool
}

func parseFlags(args []string) cliFlags {
	flags := cliFlags{limit: 100}

	for _, arg := range args {
		if arg == "--json" {
			flags.useJSON = true
			continue
		}

		key, value := parseFlag(arg)

		switch key {
		case "submitter":
			flags.submitter = value
		case "id":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				flags.id = n
			}
		case "address":
			flags.address = value
		case "quota":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				flags.quota = n
			}
		case "new-admin":
			flags.newAdmin = value
		case "offset":
			if n, err := strconv.Atoi(value); err == nil {
				flags.offset = n
			}
		case "limit":
			if n, err := strconv.Atoi(value); err == nil {
				flags.limit = n
			}
		}
	}

	return flags
}

func parseFlag(arg string) (string, string) {
	if len(arg) > 2 && arg[:2] == "--" {
		arg = arg[2:]
		for i, c := range arg {
			if c == '=' {
				return arg[:i], arg[i+1:]
			}
		}
		return arg, "true"
	}
	return "", ""
}

// adminCaller resolves the admin address recorded in the store, which
// the gated commands act as.
func adminCaller(ctx context.Context, svc registry.Service) string {
	admin, err := svc.Admin(ctx)
	if err != nil {
		log.Fatalf("Failed to resolve admin address: %v", err)
	}
	return admin
}

func handleStatus(ctx context.Context, svc registry.Service, flags cliFlags) {
	admin, err := svc.Admin(ctx)
	if err != nil {
		log.Fatalf("Failed to get admin address: %v", err)
	}
	balance, err := svc.Balance(ctx)
	if err != nil {
		log.Fatalf("Failed to get balance: %v", err)
	}
	total, err := svc.TotalCount(ctx)
	if err != nil {
		log.Fatalf("Failed to count messages: %v", err)
	}

	if flags.useJSON {
		out := struct {
			Admin         string `json:"admin"`
			Balance       int64  `json:"balance"`
			TotalMessages int64  `json:"total_messages"`
		}{admin, balance, total}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Println("=== Registry Status ===")
	fmt.Printf("Admin:          %s\n", admin)
	fmt.Printf("Fee balance:    %d\n", balance)
	fmt.Printf("Total messages: %d\n", total)
}

func handleList(ctx context.Context, svc registry.Service, flags cliFlags) {
	if flags.submitter == "" {
		log.Fatal("--submitter is required for list")
	}

	ids, err := svc.ListBySubmitter(ctx, registry.ListBySubmitterRequest{
		Submitter: flags.submitter,
		Offset:    flags.offset,
		Limit:     flags.limit,
	})
	if err != nil {
		log.Fatalf("Failed to list messages: %v", err)
	}

	messages := make([]*registry.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := svc.GetMessage(ctx, id)
		if err != nil {
			log.Fatalf("Failed to get message %d: %v", id, err)
		}
		messages = append(messages, msg)
	}

	if flags.useJSON {
		data, _ := json.MarshalIndent(messages, "", "  ")
		fmt.Println(string(data))
		return
	}

	// Table output
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tCONTENT REF\tTYPE\tCREATED\tDELETED\n")
	fmt.Fprintf(w, "────────\t──────────────────────────────\t────────────────\t──────────────────────\t────────\n")

	for _, msg := range messages {
		msgType := msg.MessageType
		if msgType == "" {
			msgType = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\n",
			msg.ID,
			truncate(msg.ContentRef, 30),
			truncate(msgType, 15),
			msg.CreatedAt.Format("2006-01-02 15:04:05"),
			msg.Deleted,
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d\n", len(messages))
}

func handleShow(ctx context.Context, svc registry.Service, flags cliFlags) {
	if flags.id == 0 {
		log.Fatal("--id is required for show")
	}

	msg, err := svc.GetMessage(ctx, flags.id)
	if err != nil {
		log.Fatalf("Failed to get message: %v", err)
	}

	if flags.useJSON {
		data, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("ID:          %d\n", msg.ID)
	fmt.Printf("Sender:      %s\n", msg.Sender)
	fmt.Printf("Content ref: %s\n", msg.ContentRef)
	fmt.Printf("Type:        %s\n", msg.MessageType)
	fmt.Printf("Created:     %s\n", msg.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Deleted:     %v\n", msg.Deleted)
	fmt.Println("Access:")
	for grantee := range msg.Access {
		fmt.Printf("  %s\n", grantee)
	}
}

func handleAccount(ctx context.Context, svc registry.Service, flags cliFlags) {
	if flags.address == "" {
		log.Fatal("--address is required for account")
	}

	account, err := svc.AccountInfo(ctx, flags.address)
	if err != nil {
		log.Fatalf("Failed to get account: %v", err)
	}

	if flags.useJSON {
		data, _ := json.MarshalIndent(account, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Address:       %s\n", account.Address)
	fmt.Printf("Active:        %v\n", account.Active)
	fmt.Printf("Used storage:  %d\n", account.UsedStorage)
	fmt.Printf("Storage quota: %d\n", account.StorageQuota)
	fmt.Printf("Messages:      %d\n", account.MessageCount)
}

func handleAuthorize(ctx context.Context, svc registry.Service, flags cliFlags) {
	if flags.address == "" {
		log.Fatal("--address is required for authorize")
	}

	if err := svc.AuthorizeCaller(ctx, adminCaller(ctx, svc), flags.address); err != nil {
		log.Fatalf("Failed to authorize caller: %v", err)
	}
	fmt.Printf("Authorized %s\n", flags.address)
}

func handleRevoke(ctx context.Context, svc registry.Service, flags cliFlags) {
	if flags.address == "" {
		log.Fatal("--address is required for revoke")
	}

	if err := svc.RevokeCaller(ctx, adminCaller(ctx, svc), flags.address); err != nil {
		log.Fatalf("Failed to revoke caller: %v", err)
	}
	fmt.Printf("Revoked %s\n", flags.address)
}

func handleQuota(ctx context.Context, svc registry.Service, flags cliFlags) {
	if flags.address == "" {
		log.Fatal("--address is required for quota")
	}
	if flags.quota <= 0 {
		log.Fatal("--quota must be a positive byte count")
	}

	err := svc.SetQuota(ctx, registry.SetQuotaRequest{
		Caller:   adminCaller(ctx, svc),
		User:     flags.address,
		NewQuota: flags.quota,
	})
	if err != nil {
		log.Fatalf("Failed to set quota: %v", err)
	}
	fmt.Printf("Quota for %s set to %d\n", flags.address, flags.quota)
}

func handleWithdraw(ctx context.Context, svc registry.Service, flags cliFlags) {
	amount, err := svc.Withdraw(ctx, adminCaller(ctx, svc))
	if err != nil {
		log.Fatalf("Failed to withdraw fees: %v", err)
	}
	fmt.Printf("Withdrew %d\n", amount)
}

func handleTransfer(ctx context.Context, svc registry.Service, flags cliFlags) {
	if flags.newAdmin == "" {
		log.Fatal("--new-admin is required for transfer")
	}

	if err := svc.TransferAdmin(ctx, adminCaller(ctx, svc), flags.newAdmin); err != nil {
		log.Fatalf("Failed to transfer admin: %v", err)
	}
	fmt.Printf("Admin transferred to %s\n", flags.newAdmin)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
