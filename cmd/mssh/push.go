package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trentearl/mssh/internal/config"
	"github.com/trentearl/mssh/internal/hostspec"
	"github.com/trentearl/mssh/internal/ssh"
	"github.com/trentearl/mssh/internal/transfer"
)

func newPushCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "push <local-file> <remote-path> host...",
		Short: "Upload a file to many hosts over SFTP",
		Long: `push uploads a local file to the same path on every host, with the
same concurrency cap as command execution. Each upload is verified by
reading the remote file back and comparing SHA-256 checksums.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd, flags, args)
		},
	}
}

func runPush(cmd *cobra.Command, flags *rootFlags, args []string) error {
	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return err
	}
	applyConfigDefaults(flags, cfg)

	localPath, remotePath := args[0], args[1]
	hosts, err := hostspec.ParseAll(args[2:])
	if err != nil {
		return err
	}

	dialer, err := newDialer(flags)
	if err != nil {
		return err
	}
	defer ssh.CloseAgent()

	e := transfer.New(dialer, transfer.WithConcurrency(flags.concurrency))
	results := e.Push(cmd.Context(), hosts, localPath, remotePath)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "%15s: error: %v\n", r.Host.Host, r.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%15s: sent %d bytes in %dms (sha256 %s)\n",
			r.Host.Host, r.BytesSent, r.DurationMillis, r.Checksum)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d hosts failed", failed, len(results))
	}
	return nil
}
