package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dockd/internal/config"
	"dockd/internal/decode"
	"dockd/internal/logging"
	"dockd/internal/mqttpub"
)

// stdoutPublisher prints payloads instead of sending them to the broker.
type stdoutPublisher struct {
	cmd *cobra.Command
}

func (p *stdoutPublisher) Publish(payload []byte) error {
	_, err := fmt.Fprintln(p.cmd.OutOrStdout(), string(payload))
	return err
}

func (p *stdoutPublisher) Close() {}

func newDecodeCommand(ctx *commandContext) *cobra.Command {
	var noPublish bool

	cmd := &cobra.Command{
		Use:   "decode <session-dir>",
		Short: "Decode a session directory and publish its records",
		Long: "Decode the binary sensor logs under the given session directory and " +
			"publish one message per record to the configured broker. " +
			"With --no-publish the JSON payloads are printed instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			sessionDir, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve session directory: %w", err)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			var publisher mqttpub.Publisher
			if noPublish {
				publisher = &stdoutPublisher{cmd: cmd}
			} else {
				publisher = mqttpub.New(cfg, logger)
			}
			defer publisher.Close()

			decoder := decode.NewDecoder(cfg, publisher, logger)
			stats, err := decoder.ProcessSession(cmd.Context(), sessionDir)
			if err != nil {
				return fmt.Errorf("decode session: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Decoded %d file(s): %d record(s), %d published, %d truncated\n",
				stats.Files, stats.Records, stats.Published, stats.Truncated)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPublish, "no-publish", false, "Print payloads instead of publishing to the broker")
	return cmd
}
