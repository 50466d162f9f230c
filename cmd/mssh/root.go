package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trentearl/mssh/internal/config"
	"github.com/trentearl/mssh/internal/executor"
	"github.com/trentearl/mssh/internal/hostspec"
	"github.com/trentearl/mssh/internal/output"
	"github.com/trentearl/mssh/internal/ssh"
)

// rootFlags holds flag values shared between the run path and the
// push subcommand (persistent flags) plus the run-only ones.
type rootFlags struct {
	commands           []string
	privateKey         string
	sudoPromptPassword bool
	outputMode         string
	concurrency        int
	connectTimeout     time.Duration
	insecure           bool
	verbose            bool
	configPath         string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "mssh [flags] host...",
		Short:         "Run commands on many hosts over SSH",
		Long: `mssh fans shell commands out to many hosts concurrently, runs each
host's command sequence in order, and prints the collected results
sorted by hostname.

Hosts are specified as [user[@sudoUser]]@host[:port].`,
		Version:       Version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, flags, args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.privateKey, "private-key", "k", "", "private key file (default: ~/.ssh/id_ed25519 and friends)")
	pf.IntVar(&flags.concurrency, "concurrency", 0, "maximum hosts processed simultaneously (default 10)")
	pf.DurationVar(&flags.connectTimeout, "connect-timeout", 0, "timeout covering dial, handshake and auth (default 5s)")
	pf.BoolVar(&flags.insecure, "insecure", false, "skip known_hosts host key verification")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&flags.configPath, "config", "", "config file (default: ~/.config/mssh/config.yaml)")

	f := cmd.Flags()
	f.StringArrayVarP(&flags.commands, "command", "c", nil, "command to run on every host (repeatable, runs in order)")
	f.BoolVarP(&flags.sudoPromptPassword, "sudo-prompt-password", "p", false, "prompt once for a password to pipe to the remote sudo prompt")
	f.StringVarP(&flags.outputMode, "output", "o", "", "output mode: json, text or table (default table)")

	cmd.AddCommand(newPushCommand(flags))
	return cmd
}

func runExec(cmd *cobra.Command, flags *rootFlags, args []string) error {
	logger := newLogger(flags.verbose)

	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return err
	}
	applyConfigDefaults(flags, cfg)

	if len(flags.commands) == 0 {
		return fmt.Errorf("at least one --command is required")
	}

	mode, err := output.ParseMode(flags.outputMode)
	if err != nil {
		return err
	}

	hosts, err := hostspec.ParseAll(args)
	if err != nil {
		return err
	}

	dialer, err := newDialer(flags)
	if err != nil {
		return err
	}
	defer ssh.CloseAgent()

	opts := []executor.Option{
		executor.WithConcurrency(flags.concurrency),
		executor.WithLogger(logger),
	}
	if flags.sudoPromptPassword {
		password, err := promptSudoPassword(cmd)
		if err != nil {
			return err
		}
		opts = append(opts, executor.WithSudoPassword(password))
	}

	outcomes, err := executor.New(dialer, opts...).Run(cmd.Context(), hosts, flags.commands)
	if err != nil {
		return err
	}
	outcomes = executor.Aggregate(outcomes)

	rendered, err := output.Render(mode, outcomes)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)

	// Per-host failures are visible in the rendered output; the exit
	// status just reflects that some occurred.
	failed := 0
	for _, ho := range outcomes {
		if ho.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d hosts reported errors", failed, len(outcomes))
	}
	return nil
}

// applyConfigDefaults fills in flag values the user didn't set from
// the config file (or its built-in defaults).
func applyConfigDefaults(flags *rootFlags, cfg *config.Config) {
	if flags.concurrency <= 0 {
		flags.concurrency = cfg.Defaults.Concurrency
	}
	if flags.connectTimeout <= 0 {
		flags.connectTimeout = cfg.Defaults.ConnectTimeout.Duration
	}
	if flags.outputMode == "" {
		flags.outputMode = cfg.Defaults.Output
	}
	if flags.privateKey == "" {
		flags.privateKey = cfg.Defaults.PrivateKey
	}
}

func newDialer(flags *rootFlags) (*ssh.Dialer, error) {
	creds, err := ssh.LoadCredentials(flags.privateKey)
	if err != nil {
		return nil, err
	}
	return &ssh.Dialer{
		Creds: creds,
		Opts: ssh.Options{
			ConnectTimeout:  flags.connectTimeout,
			InsecureHostKey: flags.insecure,
		},
	}, nil
}

// promptSudoPassword reads the escalation password from the terminal
// without echo. It is asked once and shared across all hosts.
func promptSudoPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "sudo password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read sudo password: %w", err)
	}
	return string(password), nil
}

func newLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	return logger
}
