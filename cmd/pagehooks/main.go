package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/pagehooks/internal/config"
	"github.com/mattjoyce/pagehooks/internal/events"
	"github.com/mattjoyce/pagehooks/internal/lock"
	"github.com/mattjoyce/pagehooks/internal/log"
	"github.com/mattjoyce/pagehooks/internal/relay"
	"github.com/mattjoyce/pagehooks/internal/router"
	"github.com/mattjoyce/pagehooks/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve", "start":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "sign":
		if hasHelpFlag(args) {
			printSignHelp()
			return 0
		}
		return runSign(args)
	case "config":
		return runConfigNoun(args)
	case "events":
		printEventsHelp()
		for _, k := range router.KnownKinds() {
			fmt.Printf("  %s\n", k)
		}
		return 0
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `pagehooks - webhook receiver for pages deployment events

Usage:
  pagehooks <command> [flags]

Commands:
  serve             Run the webhook server in the foreground
  sign              Compute the HMAC signature header for a request body
  config check      Validate configuration and print its digest
  config show       Print the effective configuration (secrets redacted)
  config digest     Print a file's BLAKE3 digest for serve --config-digest
  events            Show how to read accepted events and the known event types
  version           Show version information
  help              Show this help message

Use 'pagehooks <command> --help' for command flags.
`)
}

func printServeHelp() {
	fmt.Print(`Usage: pagehooks serve [--config PATH] [--config-digest HEX] [--env-file PATH] [--pid-file PATH]

Runs the webhook endpoints, /healthz and /metrics until SIGINT or SIGTERM.
Without --config the built-in endpoints are served:
  /webhooks/edgeone  hmac, secret from WEBHOOK_SECRET
  /webhooks/demo     bearer, token from WEBHOOK_TOKEN
An unset secret leaves its endpoint in open mode.
`)
}

func printSignHelp() {
	fmt.Print(`Usage: pagehooks sign --secret SECRET [--file PATH] [--plain]

Reads the body from --file (or stdin) and prints the value for the
signature header. --plain omits the "sha256=" prefix.
`)
}

func printEventsHelp() {
	fmt.Print(`Accepted events are kept in memory (events.buffer, default 100).

Set events.expose: true to serve them at /debug/events:
  curl http://127.0.0.1:8081/debug/events?since=0
  curl -H 'Accept: text/event-stream' http://127.0.0.1:8081/debug/events

Set relay.nats_url to publish every event to <relay.subject_prefix>.<eventType>.

Event types with built-in handlers (anything else is recorded as unknown):
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if isHelpToken(arg) {
			return true
		}
	}
	return false
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	configDigest := fs.String("config-digest", "", "Refuse to start unless the config file has this BLAKE3 digest")
	envFile := fs.String("env-file", "", "Load environment variables from this file (default: .env if present)")
	pidFile := fs.String("pid-file", "", "Hold an exclusive PID lock at this path")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := config.VerifyDigest(cfg, *configDigest); err != nil {
		fmt.Fprintf(os.Stderr, "Config integrity check failed: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("pagehooks starting", "version", version, "config", cfg.SourcePath, "config_digest", cfg.Digest)

	if *pidFile != "" {
		pidLock, err := lock.AcquirePIDLock(*pidFile)
		if err != nil {
			logger.Error("failed to acquire PID lock (another instance may be running)", "path", *pidFile, "error", err)
			return 1
		}
		defer pidLock.Release()
		logger.Info("acquired PID lock", "path", pidLock.Path())
	}

	srv, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		logger.Error("failed to configure webhook server", "error", err)
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("pagehooks running (press Ctrl+C to stop)")
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webhook server failed", "error", err)
		return 1
	}

	logger.Info("pagehooks stopped")
	return 0
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. An empty path loads .env when it exists.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	return godotenv.Load(path)
}

// buildServer wires endpoints, the router table and the sinks. The returned
// cleanup closes the relay connection, if any.
func buildServer(cfg *config.Config, logger *slog.Logger) (*webhook.Server, func(), error) {
	endpoints, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	hub := events.NewHub(cfg.Events.Buffer)
	sinks := webhook.MultiSink{webhook.HubSink(hub)}
	cleanup := func() {}

	if cfg.Relay.Enabled() {
		rc := relay.DefaultConfig()
		rc.URL = cfg.Relay.NATSURL
		rc.Token = cfg.Relay.Token
		rc.SubjectPrefix = cfg.Relay.SubjectPrefix
		rc.Name = cfg.Service.Name

		nc, err := relay.Connect(rc, log.WithComponent("relay"))
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, nc)
		cleanup = func() {
			if err := nc.Close(); err != nil {
				logger.Warn("nats drain failed", "error", err)
			}
		}
		logger.Info("nats relay enabled", "subject_prefix", rc.SubjectPrefix)
	}

	table := router.Default()
	pipelines := make([]*webhook.Pipeline, 0, len(endpoints))
	for _, ep := range endpoints {
		pipelines = append(pipelines, webhook.NewPipeline(ep, table, sinks, log.WithComponent("webhook")))
		logger.Info("webhook endpoint registered", "path", ep.Path, "scheme", ep.Scheme, "mode", endpointMode(ep.Secret, ep.Strict))
	}

	var opts []webhook.Option
	if cfg.Events.Expose {
		opts = append(opts, webhook.WithHandler("/debug/events", hub.Handler()))
		logger.Warn("event buffer exposed at /debug/events")
	}

	srv := webhook.New(webhook.ServerConfig{
		Listen:          cfg.Server.Listen,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, pipelines, log.WithComponent("http"), opts...)

	return srv, cleanup, nil
}

func endpointMode(secret string, strict bool) string {
	switch {
	case secret == "":
		return "open"
	case strict:
		return "strict"
	default:
		return "permissive"
	}
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	secret := fs.String("secret", "", "HMAC secret (default: $WEBHOOK_SECRET)")
	file := fs.String("file", "", "Read the body from this file instead of stdin")
	plain := fs.Bool("plain", false, "Print bare hex without the sha256= prefix")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	key := *secret
	if key == "" {
		key = os.Getenv("WEBHOOK_SECRET")
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "Usage: pagehooks sign --secret SECRET [--file PATH] [--plain]")
		return 1
	}

	var (
		body []byte
		err  error
	)
	if *file != "" {
		body, err = os.ReadFile(*file)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		return 1
	}

	sig := webhook.ComputeSignature(body, key)
	if !*plain {
		sig = webhook.FormatPrefixedSignature(sig)
	}
	fmt.Println(sig)
	return 0
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	case "digest":
		return runConfigDigest(actionArgs)
	case "help", "--help", "-h":
		fmt.Println("Usage: pagehooks config <check|show|digest> [--config PATH] [--env-file PATH]")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	envFile := fs.String("env-file", "", "Load environment variables from this file")
	jsonOut := fs.Bool("json", false, "Output the result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	endpoints, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	type endpointReport struct {
		Path        string `json:"path"`
		Scheme      string `json:"scheme"`
		Mode        string `json:"mode"`
		MaxBodySize int64  `json:"max_body_size"`
		Debug       bool   `json:"debug"`
	}
	report := struct {
		Valid     bool             `json:"valid"`
		Source    string           `json:"source"`
		Digest    string           `json:"digest,omitempty"`
		Endpoints []endpointReport `json:"endpoints"`
	}{Valid: true, Source: cfg.SourcePath, Digest: cfg.Digest}
	if report.Source == "" {
		report.Source = "built-in defaults"
	}
	for _, ep := range endpoints {
		report.Endpoints = append(report.Endpoints, endpointReport{
			Path:        ep.Path,
			Scheme:      ep.Scheme,
			Mode:        endpointMode(ep.Secret, ep.Strict),
			MaxBodySize: ep.MaxBodySize,
			Debug:       ep.Debug,
		})
	}

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("Configuration valid (%s)\n", report.Source)
	if report.Digest != "" {
		fmt.Printf("digest: %s\n", report.Digest)
	}
	for _, ep := range report.Endpoints {
		fmt.Printf("  %-24s %-7s %-10s max_body=%d\n", ep.Path, ep.Scheme, ep.Mode, ep.MaxBodySize)
	}
	return 0
}

// runConfigDigest prints the value to pass as serve --config-digest.
func runConfigDigest(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: pagehooks config digest <file>")
		return 1
	}
	digest, err := config.ComputeBlake3Hash(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash %s: %v\n", args[0], err)
		return 1
	}
	fmt.Println(digest)
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	envFile := fs.String("env-file", "", "Load environment variables from this file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	data, err := yaml.Marshal(redacted(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

// redacted returns a copy of cfg safe to print.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg
	out.Endpoints = append([]config.EndpointConfig(nil), cfg.Endpoints...)
	for i := range out.Endpoints {
		if out.Endpoints[i].Secret != "" {
			out.Endpoints[i].Secret = "[REDACTED]"
		}
	}
	if out.Relay.Token != "" {
		out.Relay.Token = "[REDACTED]"
	}
	return &out
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: pagehooks version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("pagehooks %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}
