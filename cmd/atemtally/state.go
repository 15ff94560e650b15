package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func stateCmd() *cobra.Command {
	var (
		sw      switcherFlags
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Connect, wait for the initial state transfer, and print the state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			drv, sess, err := sw.open(nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx, cancel := signalContext()
			defer cancel()
			if err := awaitReady(ctx, drv, timeout); err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(drv.Snapshot())
		},
	}
	sw.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the switcher")
	return cmd
}
