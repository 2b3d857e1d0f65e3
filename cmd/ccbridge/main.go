package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"phobos.org.uk/ccbridge/internal/api"
	"phobos.org.uk/ccbridge/internal/bridge"
	"phobos.org.uk/ccbridge/internal/config"
	"phobos.org.uk/ccbridge/internal/logging"
	"phobos.org.uk/ccbridge/internal/server"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(os.Args[2:])
	case "call":
		os.Exit(callCmd(os.Args[2:], os.Stdout, os.Stderr))
	case "operations":
		operationsCmd(os.Stdout)
	case "hash-token":
		hashTokenCmd(os.Args[2:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ccbridge - bridge between the desktop shell and the usage analytics engine

Usage:
  ccbridge <command> [flags]

Commands:
  serve         Run the local HTTP API
  call          Run one operation and print its JSON payload
  operations    List supported operations
  hash-token    Print an auth.token_hash value for a bearer token
  version       Show version
  help          Show this help

Run 'ccbridge <command> -h' for command-specific help.`)
}

// loadConfig reads path, or the default location when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

func newLogger(cfg *config.Config, out io.Writer) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.LogLevel)
	if env := os.Getenv("CCBRIDGE_LOG_LEVEL"); env != "" {
		if l, ok := logging.ParseLevel(env); ok {
			level = l
		}
	}
	return logging.New(logging.Config{
		Output:     out,
		Level:      level,
		Component:  "bridge",
		MaxEntries: 1000,
	})
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $CCBRIDGE_ROOT/config.yaml)")
	port := fs.Int("port", 0, "Port to listen on (overrides config)")
	bind := fs.String("bind", "", "Address to bind to (overrides config)")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *bind != "" {
		cfg.Bind = *bind
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Bind != "127.0.0.1" && cfg.Bind != "localhost" && cfg.Bind != "::1" && cfg.Auth.TokenHash == "" {
		fmt.Fprintf(os.Stderr, "Warning: bind=%q exposes the API without auth. Prefer 127.0.0.1 or set auth.token_hash.\n", cfg.Bind)
	}

	log := newLogger(cfg, os.Stderr)
	s := server.New(cfg, version, bridge.New(cfg.BridgeOptions(log)), log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintf(os.Stderr, "\nShutting down...\n")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	}()

	if err := s.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// callFlags maps CLI flag names onto the shell's JSON parameter names.
var callFlags = map[string]string{
	"from":        "from",
	"to":          "to",
	"refresh":     "refresh",
	"granularity": "granularity",
	"project-id":  "projectId",
	"date":        "date",
	"model":       "model",
	"session-id":  "sessionId",
	"name":        "name",
	"description": "description",
	"visible":     "visible",
}

// callCmd runs one operation. Only flags given on the command line are
// forwarded, so unset optional fields stay absent.
func callCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(stderr, "Usage: ccbridge call <operation> [flags]")
		return 1
	}
	operation := args[0]
	if _, ok := bridge.Lookup(operation); !ok {
		fmt.Fprintf(stderr, "Unknown operation: %s (see 'ccbridge operations')\n", operation)
		return 1
	}

	fs := flag.NewFlagSet("call "+operation, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 0, "Abort the engine after this long (0 = no limit)")
	strs := map[string]*string{}
	for _, f := range []struct{ name, usage string }{
		{"from", "Start date, YYYY-MM-DD (dashboard, model, limit-resets, png-export)"},
		{"to", "End date, YYYY-MM-DD (dashboard, model, limit-resets, png-export)"},
		{"granularity", "Timeline bucket: month, week, or day (dashboard, default month)"},
		{"project-id", "Restrict to one project (dashboard, day, model, session); required for update-project"},
		{"date", "Day to break down, YYYY-MM-DD (day)"},
		{"model", "Model identifier (model)"},
		{"session-id", "Session identifier (session)"},
		{"name", "New project name (update-project)"},
		{"description", "New project description (update-project)"},
	} {
		strs[f.name] = fs.String(f.name, "", f.usage)
	}
	refresh := fs.Bool("refresh", false, "Rescan usage logs before querying (dashboard)")
	visible := fs.Bool("visible", false, "Project visibility (update-project)")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	params := map[string]any{}
	fs.Visit(func(f *flag.Flag) {
		key, ok := callFlags[f.Name]
		if !ok {
			return
		}
		switch f.Name {
		case "refresh":
			params[key] = *refresh
		case "visible":
			params[key] = *visible
		default:
			params[key] = *strs[f.Name]
		}
	})
	body, err := json.Marshal(params)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	req, err := api.DecodeRequest(operation, body)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	b := bridge.New(cfg.BridgeOptions(newLogger(cfg, stderr)))
	payload, err := b.Call(ctx, req)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, string(payload))
	return 0
}

func operationsCmd(out io.Writer) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tSHAPE\tSUMMARY")
	for _, op := range bridge.Catalog() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", op.Name, op.Shape, op.Summary)
	}
	tw.Flush()
}

func hashTokenCmd(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: ccbridge hash-token <token>")
		os.Exit(1)
	}
	hash, err := server.HashToken(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
