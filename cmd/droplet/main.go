package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"droplet/cmd/internal/passphrase"
	"droplet/config"
	"droplet/core"
	"droplet/core/types"
	"droplet/crypto"
	"droplet/observability/logging"
	"droplet/observability/metrics"
	telemetry "droplet/observability/otel"
	"droplet/storage"
)

const (
	defaultConfig = "./config.toml"
	serviceName   = "droplet"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
	if err := cmd.run(args[1:], stdout, stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

type command struct {
	help string
	run  func(args []string, stdout, stderr io.Writer) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"generate-key":   {"Create an encrypted owner keystore", runGenerateKey},
		"deploy":         {"Derive a wallet contract identity for the keystore owner", runDeploy},
		"register-token": {"Register a token administered by the keystore owner", runRegisterToken},
		"init":           {"Bind a wallet to its owner", runInit},
		"fund":           {"Move tokens from the owner into wallet custody", runAmountCommand(types.MethodFund)},
		"withdraw":       {"Move tokens from wallet custody back to the owner", runAmountCommand(types.MethodWithdraw)},
		"transfer":       {"Pay a recipient from custody, splitting off the charity fee", runTransfer},
		"setup-charity":  {"Configure the charity address and fee in basis points", runSetupCharity},
		"mint":           {"Issue tokens as the token admin", runMint},
		"balance":        {"Print a token balance", runBalance},
		"info":           {"Print wallet owner, charity, and lifetime", runInfo},
	}
}

func usage() string {
	var b strings.Builder
	b.WriteString("droplet <command> [flags]\n\nCommands:\n")
	for _, name := range []string{
		"generate-key", "deploy", "register-token", "init", "fund", "withdraw",
		"transfer", "setup-charity", "mint", "balance", "info",
	} {
		fmt.Fprintf(&b, "  %-15s %s\n", name, commands[name].help)
	}
	return strings.TrimRight(b.String(), "\n")
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	config   string
	keystore string
	passEnv  string
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := &commonFlags{}
	fs.StringVar(&common.config, "config", defaultConfig, "Path to the droplet config file")
	fs.StringVar(&common.keystore, "keystore", "", "Keystore path (defaults to KeystorePath from the config)")
	fs.StringVar(&common.passEnv, "pass-env", passphrase.DefaultEnv, "Environment variable containing the keystore passphrase")
	return fs, common
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected positional arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

// session is an opened data directory plus the services bound to it.
type session struct {
	cfg      *config.Config
	db       storage.Database
	host     *core.Host
	registry *prometheus.Registry
	flags    *commonFlags
	shutdown func(context.Context) error
}

func openSession(flags *commonFlags) (*session, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logOpts := logging.Options{File: cfg.LogFile, Level: level}
	if cfg.LogFile == "" {
		// Keep stdout for command output.
		logOpts.Level = slog.LevelError + 1
	}
	logger := logging.Setup(serviceName, cfg.Environment, logOpts)

	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Network:     cfg.NetworkName,
		Endpoint:    cfg.TraceEndpoint,
		Insecure:    cfg.TraceInsecure,
		Headers:     telemetry.ParseHeaders(cfg.TraceHeaders),
	})
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	registry := prometheus.NewRegistry()
	host := core.NewHost(db, cfg.TTLLimits())
	host.SetLogger(logger.With(slog.String("network", cfg.NetworkName)))
	host.SetMetrics(metrics.NewWalletMetrics(registry, cfg.MetricsNamespace))
	return &session{cfg: cfg, db: db, host: host, registry: registry, flags: flags, shutdown: shutdown}, nil
}

func (s *session) Close() error {
	s.db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.shutdown(ctx)
	if s.cfg.MetricsFile != "" {
		if writeErr := prometheus.WriteToTextfile(s.cfg.MetricsFile, s.registry); writeErr != nil && err == nil {
			err = fmt.Errorf("write metrics file: %w", writeErr)
		}
	}
	return err
}

// closeInto closes the session and reports its error through err unless the
// command already failed.
func (s *session) closeInto(err *error) {
	if closeErr := s.Close(); closeErr != nil && *err == nil {
		*err = closeErr
	}
}

func (s *session) keystorePath() string {
	if s.flags.keystore != "" {
		return s.flags.keystore
	}
	return s.cfg.KeystorePath
}

func (s *session) loadKey() (*crypto.PrivateKey, error) {
	pass, err := passphrase.NewSource(s.flags.passEnv).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(s.keystorePath(), pass)
	if err != nil {
		return nil, fmt.Errorf("unlock keystore %s: %w", s.keystorePath(), err)
	}
	return key, nil
}

// invoke signs args with key (when non-nil) and executes the invocation.
func (s *session) invoke(stdout io.Writer, contract [20]byte, method types.Method, args interface{}, key *crypto.PrivateKey) error {
	inv, err := types.NewInvocation(contract, method, args)
	if err != nil {
		return err
	}
	if key != nil {
		nonce, err := s.host.Nonce(key.Identity())
		if err != nil {
			return err
		}
		if err := inv.Sign(key, nonce+1); err != nil {
			return err
		}
	}
	receipt, err := s.host.Invoke(context.Background(), inv)
	if receipt != nil {
		if encodeErr := printReceipt(stdout, receipt); encodeErr != nil && err == nil {
			err = encodeErr
		}
	}
	return err
}

func printReceipt(w io.Writer, receipt *types.Receipt) error {
	out := struct {
		ID       string        `json:"id"`
		Contract string        `json:"contract"`
		Method   types.Method  `json:"method"`
		Sequence uint32        `json:"sequence"`
		Status   string        `json:"status"`
		Error    string        `json:"error,omitempty"`
		Events   []types.Event `json:"events,omitempty"`
	}{
		ID:       "0x" + hex.EncodeToString(receipt.ID[:]),
		Contract: crypto.FormatContract(receipt.Contract),
		Method:   receipt.Method,
		Sequence: receipt.Sequence,
		Status:   receipt.Status.String(),
		Error:    receipt.Error,
		Events:   receipt.Events,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseIdentity(flagName, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, fmt.Errorf("--%s is required", flagName)
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return addr.Raw(), nil
}

func parseAmount(flagName, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("--%s is required", flagName)
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("--%s must be a base-10 integer", flagName)
	}
	return amount, nil
}
