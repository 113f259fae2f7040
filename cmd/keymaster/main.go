// keymaster is the operator-side tool: it generates signing keys,
// issues license tokens bound to customer hardware and manages the
// issuance history. It is never shipped to customers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"nodelock/internal/config"
	"nodelock/internal/infrastructure"
	"nodelock/internal/license"
	"nodelock/internal/security"
)

const passphraseEnv = "NODELOCK_KEY_PASSPHRASE"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Keep stdout clean for command output; diagnostics go to the log
	// file next to the executable.
	logCfg := cfg.Logging
	logCfg.Output = "file"
	logger, err := infrastructure.InitializeLogger(logCfg)
	if err != nil {
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx := infrastructure.EnsureTraceID(context.Background())

	var cmdErr error
	switch os.Args[1] {
	case "keygen":
		cmdErr = runKeygen(cfg, os.Args[2:])
	case "fingerprint":
		cmdErr = runFingerprint()
	case "issue":
		cmdErr = runIssue(ctx, cfg, logger, os.Args[2:])
	case "history":
		cmdErr = runHistory(cfg, logger, os.Args[2:])
	case "delete":
		cmdErr = runDelete(cfg, logger, os.Args[2:])
	case "export":
		cmdErr = runExport(cfg, logger, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `keymaster - license issuance tool

Usage:
  keymaster keygen      [-private path] [-public path] [-passphrase p]
  keymaster fingerprint
  keymaster issue       -customer name -hardware id -duration 1m|3m|6m|1y|lifetime
                        [-features a,b] [-private path] [-passphrase p] [-out path]
  keymaster history     [-search query] [-status active|expiring_soon|expired|lifetime]
  keymaster delete      -id entry-id
  keymaster export      [-out path.xlsx]

The passphrase may also be supplied via `+passphraseEnv+`.
`)
}

func passphraseFrom(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(passphraseEnv)
}

func runKeygen(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	private := fs.String("private", cfg.License.PrivateKeyFile, "private key output path")
	public := fs.String("public", cfg.License.PublicKeyFile, "public key output path")
	passphrase := fs.String("passphrase", "", "encrypt the private key at rest (recommended)")
	fs.Parse(args)

	pub, err := license.GenerateKeyPair(*private, *public, passphraseFrom(*passphrase))
	if err != nil {
		return err
	}

	fmt.Printf("private key: %s\n", *private)
	fmt.Printf("public key:  %s\n", *public)
	fmt.Printf("embed value: %s\n", license.EncodePublicKey(pub))
	if passphraseFrom(*passphrase) == "" {
		fmt.Println("warning: private key is NOT passphrase protected")
	}
	return nil
}

func runFingerprint() error {
	fm := security.NewFingerprintManager()
	fmt.Println(fm.Fingerprint())
	for k, v := range fm.Components() {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", k, v)
	}
	return nil
}

func runIssue(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	customer := fs.String("customer", "", "customer name (required)")
	hardware := fs.String("hardware", "", "customer hardware fingerprint (required)")
	duration := fs.String("duration", "", "duration preset: 1m, 3m, 6m, 1y or lifetime (required)")
	features := fs.String("features", "", "comma-separated feature flags")
	private := fs.String("private", cfg.License.PrivateKeyFile, "private key path")
	passphrase := fs.String("passphrase", "", "private key passphrase")
	out := fs.String("out", "", "also write the token to this file")
	fs.Parse(args)

	priv, err := license.LoadPrivateKey(*private, passphraseFrom(*passphrase))
	if err != nil {
		return err
	}

	history := license.NewHistoryStore(cfg.License.HistoryFile, logger)
	issuer := license.NewIssuer(priv, history, license.WithIssuerLogger(logger))

	req := license.IssueRequest{
		CustomerName: *customer,
		HardwareID:   *hardware,
		Duration:     license.DurationPreset(*duration),
	}
	if *features != "" {
		for _, f := range strings.Split(*features, ",") {
			if f = strings.TrimSpace(f); f != "" {
				req.Features = append(req.Features, f)
			}
		}
	}

	token, entry, err := issuer.Issue(ctx, req)
	if err != nil {
		return err
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "issued %s for %s (%s), expires %s\n",
		entry.ID, entry.CustomerName, entry.Duration.Label(), expiryLabel(*entry))

	if *out != "" {
		if err := os.WriteFile(*out, []byte(token+"\n"), 0o600); err != nil {
			return fmt.Errorf("token issued but not written to %s: %w", *out, err)
		}
	}
	return nil
}

func runHistory(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	search := fs.String("search", "", "filter by customer name or hardware id substring")
	status := fs.String("status", "", "filter by status: active, expiring_soon, expired, lifetime")
	fs.Parse(args)

	store := license.NewHistoryStore(cfg.License.HistoryFile, logger)

	var entries []license.HistoryEntry
	var err error
	switch {
	case *search != "":
		entries, err = store.Search(*search)
	case *status != "":
		parsed, perr := license.ParseHistoryStatus(*status)
		if perr != nil {
			return perr
		}
		entries, err = store.FilterStatus(parsed, time.Now())
	default:
		entries, err = store.List()
	}
	if err != nil {
		return err
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCUSTOMER\tHARDWARE\tDURATION\tSTATUS\tEXPIRES")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.CustomerName, e.HardwareID, e.Duration.Label(),
			e.StatusAt(now), expiryLabel(e))
	}
	return w.Flush()
}

func runDelete(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "history entry id (required)")
	fs.Parse(args)
	if *id == "" {
		return fmt.Errorf("delete requires -id")
	}

	store := license.NewHistoryStore(cfg.License.HistoryFile, logger)
	if err := store.Delete(*id); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", *id)
	return nil
}

func runExport(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "license-history.xlsx", "output workbook path")
	fs.Parse(args)

	store := license.NewHistoryStore(cfg.License.HistoryFile, logger)
	if err := store.ExportXLSX(*out, time.Now()); err != nil {
		return err
	}
	fmt.Printf("exported history to %s\n", *out)
	return nil
}

func expiryLabel(e license.HistoryEntry) string {
	if e.ExpiresAt.Equal(license.LifetimeExpiry) {
		return "never"
	}
	return e.ExpiresAt.UTC().Format("2006-01-02")
}
