package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"quizbox/internal/api"
	"quizbox/internal/auth"
	"quizbox/internal/model"
	"quizbox/internal/store"
)

const usage = `usage: quizbox <command> [args]

commands:
  signup  <email> <password>        register an account
  signin  <email> <password>        sign in and persist the session
  signout                           sign out and wipe local state
  profile [<first> <last>]          show or update the profile
  list    [--premium]               list questionnaires with AI status
  fill    <id> [--premium]          fill a questionnaire interactively
  init    <id> [--premium]          enqueue the AI summary jobs
  watch   <id> [--premium]          follow AI progress until done
  summary <id> [--premium]          print the AI summary sections
  chat    <id>                      chat about a premium summary
`

// app bundles the shared wiring every command needs.
type app struct {
	client  *api.Client
	store   store.Store
	session *auth.Session
	log     *zap.Logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore()
	if err != nil {
		logger.Fatal("open state store", zap.Error(err))
	}
	defer closeStore()

	client := api.New(apiBase(), logger)
	a := &app{
		client:  client,
		store:   st,
		session: auth.NewSession(client, st, logger),
		log:     logger,
	}

	cmd, args := os.Args[1], os.Args[2:]
	if err := a.run(ctx, cmd, args); err != nil {
		fmt.Fprintln(os.Stderr, "quizbox:", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "signup":
		return a.cmdSignup(ctx, args)
	case "signin":
		return a.cmdSignin(ctx, args)
	case "signout":
		return a.session.SignOut(ctx)
	case "profile":
		return a.cmdProfile(ctx, args)
	case "list":
		return a.cmdList(ctx, args)
	case "fill":
		return a.cmdFill(ctx, args)
	case "init":
		return a.cmdInit(ctx, args)
	case "watch":
		return a.cmdWatch(ctx, args)
	case "summary":
		return a.cmdSummary(ctx, args)
	case "chat":
		return a.cmdChat(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func apiBase() string {
	if base := os.Getenv("QUIZBOX_API_BASE"); base != "" {
		return base
	}
	return "http://localhost:8080"
}

// openStore picks the state backend: redis when REDIS_ADDR is set, otherwise
// a JSON file under the user config directory.
func openStore() (store.Store, func(), error) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rs, err := store.NewRedisStore(addr, "")
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil
	}

	path := os.Getenv("QUIZBOX_STATE_FILE")
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve config dir: %w", err)
		}
		path = filepath.Join(dir, "quizbox", "state.json")
	}
	fs, err := store.NewFileStore(path)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {}, nil
}

// variantArgs strips the --premium flag and returns the remaining args.
func variantArgs(args []string) (model.Variant, []string) {
	v := model.VariantStandard
	rest := args[:0:0]
	for _, arg := range args {
		if arg == "--premium" {
			v = model.VariantPremium
			continue
		}
		rest = append(rest, arg)
	}
	return v, rest
}
