package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/sigslot/internal/config"
	"github.com/mattjoyce/sigslot/internal/faults"
	"github.com/mattjoyce/sigslot/internal/storage"
	"github.com/mattjoyce/sigslot/internal/tui"
)

const version = "0.3.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "system":
		return runSystemNoun(rest)
	case "config":
		return runConfigNoun(rest)
	case "faults":
		return runFaultsNoun(rest)

	case "start":
		return runStart(rest)
	case "version":
		fmt.Printf("sigslot version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`sigslot - Thread-affine signal/slot dispatch service

Usage:
  sigslot <noun> <action> [flags]

Core Resources (Nouns):
  system    Service lifecycle and live monitoring
  config    Configuration validation and integrity
  faults    Persisted dispatch faults

System Commands:
  system start      Start threads, probes, and the diagnostics API in foreground
  system watch      Live monitor of pools, probes, and faults

Config Commands:
  config check      Validate syntax, capacities, probes, and integrity
  config lock       Authorize current state (write BLAKE3 checksums)

Faults Commands:
  faults list       Show the most recent persisted faults

General:
  version           Show version information
  help              Show this help message

Use 'sigslot <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runFaultsNoun(args []string) int {
	if len(args) < 1 {
		printFaultsNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printFaultsNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printFaultsListHelp()
			return 0
		}
		return runFaultsList(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown faults action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: sigslot system <action>")
	fmt.Fprintln(w, "Actions: start, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: sigslot config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printFaultsNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: sigslot faults <action> [flags]")
	fmt.Fprintln(w, "Actions: list")
}

func printSystemStartHelp() {
	fmt.Println("Usage: sigslot system start [--config PATH]")
	fmt.Println("Start the dispatch service in the foreground.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: sigslot system watch [--api-url URL]")
	fmt.Println()
	fmt.Println("Live monitor of pool usage, probe delivery, and dispatch faults.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Diagnostics API URL (default: http://127.0.0.1:8090)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: sigslot config check [--config PATH] [--strict] [--json]")
	fmt.Println("Validate configuration and report integrity. --strict fails when the config is not locked.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: sigslot config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func printFaultsListHelp() {
	fmt.Println("Usage: sigslot faults list [--config PATH] [--limit N] [--json]")
	fmt.Println("Show the most recent persisted dispatch faults, newest first.")
}

// --- ACTION IMPLEMENTATIONS ---

// resolveConfigPath returns explicit, or the discovered config path.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	discovered, err := config.DiscoverConfig()
	if err != nil {
		return "", err
	}
	return discovered, nil
}

type checkResult struct {
	Valid     bool     `json:"valid"`
	Path      string   `json:"path,omitempty"`
	Locked    bool     `json:"locked"`
	Threads   int      `json:"threads"`
	Probes    int      `json:"probes"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	APIListen string   `json:"api_listen,omitempty"`
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	res := checkResult{Path: path}
	cfg, err := config.Load(path)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	} else {
		res.Valid = true
		res.Path = cfg.Path
		res.Threads = len(cfg.Threads)
		res.Probes = len(cfg.Probes)
		if cfg.API.Enabled {
			res.APIListen = cfg.API.Listen
		}
		switch err := config.VerifyChecksums(cfg.Path); {
		case err == nil:
			res.Locked = true
		case errors.Is(err, config.ErrNoChecksums):
			res.Warnings = append(res.Warnings, "configuration is not locked (run 'sigslot config lock')")
		default:
			res.Valid = false
			res.Errors = append(res.Errors, err.Error())
		}
		if len(cfg.Probes) > 0 && len(cfg.Threads) == 0 {
			res.Warnings = append(res.Warnings, "probes configured without any threads; deliveries run on probe goroutines")
		}
	}

	if jsonOut {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(formatCheckHuman(res))
	}

	if !res.Valid {
		return 1
	}
	if strict && len(res.Warnings) > 0 {
		return 2
	}
	return 0
}

func formatCheckHuman(res checkResult) string {
	var b strings.Builder
	if res.Valid {
		fmt.Fprintf(&b, "Configuration valid: %s\n", res.Path)
		fmt.Fprintf(&b, "  threads: %d\n", res.Threads)
		fmt.Fprintf(&b, "  probes:  %d\n", res.Probes)
		if res.APIListen != "" {
			fmt.Fprintf(&b, "  api:     %s\n", res.APIListen)
		}
		if res.Locked {
			b.WriteString("  integrity: locked\n")
		}
	} else {
		fmt.Fprintf(&b, "Configuration invalid: %s\n", res.Path)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(&b, "ERROR: %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "WARNING: %s\n", w)
	}
	return b.String()
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	report, err := config.GenerateChecksums(path, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if verbose || verboseShort {
		fmt.Printf("Processing directory: %s\n", report.ConfigDir)
		for _, f := range report.Files {
			state := "unchanged"
			if f.Changed {
				state = "updated"
			}
			fmt.Printf("  HASH %s: %s (%s)\n", f.Filename, f.Hash, state)
		}
	}
	if dryRun {
		fmt.Printf("Dry run completed (no files written): %s\n", report.ChecksumPath)
	} else {
		fmt.Printf("Successfully locked configuration: %s\n", report.ChecksumPath)
	}
	return 0
}

func runFaultsList(args []string) int {
	var configPath string
	var limit int
	var jsonOut bool

	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.IntVar(&limit, "limit", 20, "Maximum number of faults to show")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if limit <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --limit must be positive")
		return 1
	}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if _, err := os.Stat(cfg.Faults.Path); err != nil {
		fmt.Fprintf(os.Stderr, "No fault store at %s (is faults.enabled set?)\n", cfg.Faults.Path)
		return 1
	}

	ctx, cancel := commandContext()
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.Faults.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open fault store: %v\n", err)
		return 1
	}
	defer db.Close()

	store := faults.NewStore(db)
	records, err := store.List(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list faults: %v\n", err)
		return 1
	}

	if jsonOut {
		out, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
		return 0
	}

	if len(records) == 0 {
		fmt.Println("No faults recorded.")
		return 0
	}
	for _, r := range records {
		name := r.SignalName
		if name == "" {
			name = r.SignalID
		}
		fmt.Printf("%s  %-20s %-24s %-14s %s\n",
			r.OccurredAt.Format("2006-01-02 15:04:05.000"), name, r.Strategy, r.Kind, r.Error)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8090", "Diagnostics API URL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(tui.NewMonitor(*apiURL))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
