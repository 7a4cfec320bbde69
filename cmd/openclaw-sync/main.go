// ABOUTME: CLI for syncing local agent configuration to OpenClaw gateways
// ABOUTME: Seeds gateways/boards/agents and runs bounded sync passes with a colored report

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/openclaw-sync/internal/auth"
	"github.com/2389/openclaw-sync/internal/config"
	"github.com/2389/openclaw-sync/internal/openclaw"
	"github.com/2389/openclaw-sync/internal/provision"
	"github.com/2389/openclaw-sync/internal/store"
	"github.com/2389/openclaw-sync/internal/sync"
)

const banner = `
                             _
  ___  _ __   ___ _ __   ___| | __ ___      __      ___ _   _ _ __   ___
 / _ \| '_ \ / _ \ '_ \ / __| |/ _' \ \ /\ / /____ / __| | | | '_ \ / __|
| (_) | |_) |  __/ | | | (__| | (_| |\ V  V /_____\__ \ |_| | | | | (__
 \___/| .__/ \___|_| |_|\___|_|\__,_| \_/\_/      |___/\__, |_| |_|\___|
      |_|                                              |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "sync":
		err = cmdSync(args)
	case "gateways":
		err = cmdGateways(args)
	case "boards":
		err = cmdBoards(args)
	case "agents":
		err = cmdAgents(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: openclaw-sync <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  sync --gateway <id|name>   Run a sync pass against a gateway")
	fmt.Println("  gateways list              List configured gateways")
	fmt.Println("  gateways add               Register a new gateway")
	fmt.Println("  boards list --gateway      List boards for a gateway")
	fmt.Println("  boards add                 Create a board under a gateway")
	fmt.Println("  agents add                 Create an agent on a board")
	fmt.Println()
	yellow.Println("Sync flags:")
	fmt.Println("  --board <id>               Restrict the pass to one board")
	fmt.Println("  --include-main             Also sync the gateway's main agent (default true)")
	fmt.Println("  --reset-sessions           Reset agent sessions during provisioning")
	fmt.Println("  --rotate-tokens            Re-key agents whose token is missing or drifted")
	fmt.Println("  --force-bootstrap          Force bootstrap during provisioning")
	fmt.Println("  --user <name>              Requesting user recorded with provisioning calls")
	fmt.Println("  --json                     Print the result as JSON")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  OPENCLAW_SYNC_CONFIG       Config file path (default: ./openclaw-sync.yaml)")
}

// setup loads configuration, initializes logging, and opens the store.
func setup() (*config.Config, *store.SQLiteStore, error) {
	path := os.Getenv("OPENCLAW_SYNC_CONFIG")
	if path == "" {
		path = "openclaw-sync.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	initLogging(cfg.Logging)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return cfg, st, nil
}

func initLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// resolveGateway looks a gateway up by ID first, then by name.
func resolveGateway(ctx context.Context, st store.Store, ref string) (*store.Gateway, error) {
	gw, err := st.GetGateway(ctx, ref)
	if err == nil {
		return gw, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	gw, err = st.GetGatewayByName(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("gateway %q not found", ref)
	}
	return gw, nil
}

func cmdSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	gatewayRef := fs.String("gateway", "", "gateway id or name (required)")
	boardID := fs.String("board", "", "restrict the pass to one board id")
	includeMain := fs.Bool("include-main", true, "also sync the gateway's main agent")
	resetSessions := fs.Bool("reset-sessions", false, "reset agent sessions during provisioning")
	rotateTokens := fs.Bool("rotate-tokens", false, "re-key agents whose token is missing or drifted")
	forceBootstrap := fs.Bool("force-bootstrap", false, "force bootstrap during provisioning")
	user := fs.String("user", "", "requesting user recorded with provisioning calls")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *gatewayRef == "" {
		return fmt.Errorf("--gateway is required")
	}

	cfg, st, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	gw, err := resolveGateway(ctx, st, *gatewayRef)
	if err != nil {
		return err
	}

	// Gateways without a static bearer token get a short-lived minted
	// connect token when a shared secret is configured.
	if gw.Token == "" && cfg.Auth.JWTSecret != "" {
		minted, err := auth.NewMinter([]byte(cfg.Auth.JWTSecret)).Mint(gw.ID, cfg.Auth.ConnectTokenTTL)
		if err != nil {
			return fmt.Errorf("minting connect token: %w", err)
		}
		gw.Token = minted
	}

	caller := openclaw.NewClient()
	syncer := sync.New(st, caller, provision.NewService(caller), openclaw.RetryOptions{
		Attempts:  cfg.Sync.Attempts,
		BaseDelay: cfg.Sync.BaseDelay,
	})

	result := syncer.Sync(ctx, gw, sync.Options{
		IncludeMain:    *includeMain,
		ResetSessions:  *resetSessions,
		RotateTokens:   *rotateTokens,
		ForceBootstrap: *forceBootstrap,
		BoardID:        *boardID,
		User:           *user,
	})

	if *asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	printResult(result)
	return nil
}

func printResult(result *sync.Result) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Printf("Gateway: %s\n", result.GatewayID)
	green.Printf("Updated: %d\n", result.AgentsUpdated)
	yellow.Printf("Skipped: %d\n", result.AgentsSkipped)
	if result.IncludeMain {
		fmt.Printf("Main agent updated: %v\n", result.MainUpdated)
	}

	if len(result.Errors) == 0 {
		return
	}
	fmt.Println()
	red.Printf("Errors (%d):\n", len(result.Errors))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tBOARD\tMESSAGE")
	for _, e := range result.Errors {
		name := e.AgentName
		if name == "" {
			name = "-"
		}
		board := e.BoardID
		if board == "" {
			board = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, board, e.Message)
	}
	_ = w.Flush()
}

func cmdGateways(args []string) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		_, st, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		gateways, err := st.ListGateways(context.Background())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tURL\tMAIN SESSION KEY")
		for _, gw := range gateways {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", gw.ID, gw.Name, gw.URL, gw.MainSessionKey)
		}
		return w.Flush()

	case "add":
		fs := flag.NewFlagSet("gateways add", flag.ExitOnError)
		name := fs.String("name", "", "gateway name (required)")
		url := fs.String("url", "", "gateway URL (required)")
		token := fs.String("token", "", "static bearer token (optional with jwt_secret)")
		mainKey := fs.String("main-session-key", "", "session key of the gateway's main agent")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *name == "" || *url == "" {
			return fmt.Errorf("--name and --url are required")
		}

		_, st, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		gw := &store.Gateway{Name: *name, URL: *url, Token: *token, MainSessionKey: *mainKey}
		if err := st.CreateGateway(context.Background(), gw); err != nil {
			return err
		}
		fmt.Printf("Created gateway %s (%s)\n", gw.Name, gw.ID)
		return nil

	default:
		return fmt.Errorf("unknown gateways subcommand: %s", sub)
	}
}

func cmdBoards(args []string) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		fs := flag.NewFlagSet("boards list", flag.ExitOnError)
		gatewayRef := fs.String("gateway", "", "gateway id or name (required)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *gatewayRef == "" {
			return fmt.Errorf("--gateway is required")
		}

		_, st, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx := context.Background()
		gw, err := resolveGateway(ctx, st, *gatewayRef)
		if err != nil {
			return err
		}
		boards, err := st.ListBoards(ctx, gw.ID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, board := range boards {
			fmt.Fprintf(w, "%s\t%s\n", board.ID, board.Name)
		}
		return w.Flush()

	case "add":
		fs := flag.NewFlagSet("boards add", flag.ExitOnError)
		gatewayRef := fs.String("gateway", "", "gateway id or name (required)")
		name := fs.String("name", "", "board name (required)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *gatewayRef == "" || *name == "" {
			return fmt.Errorf("--gateway and --name are required")
		}

		_, st, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx := context.Background()
		gw, err := resolveGateway(ctx, st, *gatewayRef)
		if err != nil {
			return err
		}
		board := &store.Board{GatewayID: gw.ID, Name: *name}
		if err := st.CreateBoard(ctx, board); err != nil {
			return err
		}
		fmt.Printf("Created board %s (%s)\n", board.Name, board.ID)
		return nil

	default:
		return fmt.Errorf("unknown boards subcommand: %s", sub)
	}
}

func cmdAgents(args []string) error {
	sub := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "add":
		fs := flag.NewFlagSet("agents add", flag.ExitOnError)
		boardID := fs.String("board", "", "board id (required)")
		name := fs.String("name", "", "agent display name (required)")
		sessionKey := fs.String("session-key", "", "remote session key (agent:<id>[:...])")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *boardID == "" || *name == "" {
			return fmt.Errorf("--board and --name are required")
		}

		_, st, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		agent := &store.Agent{BoardID: boardID, Name: *name, SessionKey: *sessionKey}
		if err := st.CreateAgent(context.Background(), agent); err != nil {
			return err
		}
		fmt.Printf("Created agent %s (%s)\n", agent.Name, agent.ID)
		return nil

	default:
		return fmt.Errorf("unknown agents subcommand: %q (try: agents add)", sub)
	}
}
