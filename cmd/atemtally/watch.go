package main

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zsiec/atemtally/internal/certs"
	"github.com/zsiec/atemtally/internal/tally"
)

// watchCmd is a reference tally indicator: it subscribes to a tally server
// and prints one line per frame.
func watchCmd() *cobra.Command {
	var (
		addr        string
		fingerprint string
		input       int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to a tally server and print frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tlsConf *tls.Config
			if fingerprint != "" {
				fp, err := certs.ParseFingerprint(fingerprint)
				if err != nil {
					return err
				}
				tlsConf = certs.PinnedClientConfig(fp)
			} else {
				slog.Warn("no fingerprint given, server certificate is not verified")
			}

			ctx, cancel := signalContext()
			defer cancel()

			client, err := tally.Dial(ctx, addr, tlsConf)
			if err != nil {
				return err
			}
			defer client.Close()
			go func() {
				<-ctx.Done()
				client.Close()
			}()

			for {
				f, err := client.Next()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("tally stream: %w", err)
				}
				fmt.Println(formatFrame(f, input))
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("TALLY_ADDR", "localhost:9444"), "tally server address (TALLY_ADDR)")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", envOr("TALLY_FINGERPRINT", ""), "server certificate SHA-256, hex or base64 (TALLY_FINGERPRINT)")
	cmd.Flags().IntVar(&input, "input", 0, "only report this input (1-based)")
	return cmd
}

func formatFrame(f tally.Frame, input int) string {
	if input > 0 {
		switch {
		case f.ProgramTally(input):
			return fmt.Sprintf("input %d: PROGRAM", input)
		case f.PreviewTally(input):
			return fmt.Sprintf("input %d: preview", input)
		default:
			return fmt.Sprintf("input %d: off", input)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "program=%d preview=%d", f.Program, f.Preview)
	for i := range f.Tally {
		switch {
		case f.ProgramTally(i + 1):
			fmt.Fprintf(&b, " %d:P", i+1)
		case f.PreviewTally(i + 1):
			fmt.Fprintf(&b, " %d:p", i+1)
		}
	}
	return b.String()
}
