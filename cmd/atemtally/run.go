package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/atemtally/internal/api"
	"github.com/zsiec/atemtally/internal/certs"
	"github.com/zsiec/atemtally/internal/driver"
	"github.com/zsiec/atemtally/internal/metrics"
	"github.com/zsiec/atemtally/internal/session"
	"github.com/zsiec/atemtally/internal/state"
	"github.com/zsiec/atemtally/internal/tally"
	"github.com/zsiec/atemtally/internal/transport"
)

type switcherFlags struct {
	addr           string
	localPort      int
	pollInterval   time.Duration
	contactTimeout time.Duration
	strictAck      bool
}

func (f *switcherFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "atem", envOr("ATEM_ADDR", ""), "switcher address, host or host:port (ATEM_ADDR)")
	fl.IntVar(&f.localPort, "local-port", envInt("ATEM_LOCAL_PORT", 0), "local UDP port, 0 for ephemeral (ATEM_LOCAL_PORT)")
	fl.DurationVar(&f.pollInterval, "poll", envDuration("POLL_INTERVAL", driver.DefaultPollInterval), "poll interval (POLL_INTERVAL)")
	fl.DurationVar(&f.contactTimeout, "contact-timeout", envDuration("CONTACT_TIMEOUT", session.DefaultContactTimeout), "silence before the session is dropped (CONTACT_TIMEOUT)")
	fl.BoolVar(&f.strictAck, "strict-ack", false, "acknowledge only after the initial state transfer")
}

// open dials the switcher and builds a driver around a fresh session.
func (f *switcherFlags) open(m *metrics.Metrics) (*driver.Driver, *session.Session, error) {
	if f.addr == "" {
		return nil, nil, errors.New("switcher address required (--atem or ATEM_ADDR)")
	}
	conn, err := transport.DialUDP(f.addr, f.localPort)
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(conn, state.New(),
		session.WithLogger(slog.Default()),
		session.WithVerbose(slog.Default().Enabled(context.Background(), slog.LevelDebug)),
		session.WithContactTimeout(f.contactTimeout),
		session.WithStrictAck(f.strictAck),
		session.WithMetrics(m),
	)
	drv := driver.New(sess, driver.Config{PollInterval: f.pollInterval})
	return drv, sess, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	var (
		sw        switcherFlags
		apiAddr   string
		tallyAddr string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to a switcher and serve the API and tally feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			drv, sess, err := sw.open(m)
			if err != nil {
				return err
			}
			defer sess.Close()

			cert, err := certs.Generate(14 * 24 * time.Hour)
			if err != nil {
				return fmt.Errorf("generate certificate: %w", err)
			}
			slog.Info("certificate generated",
				"fingerprint", cert.FingerprintBase64(),
				"expires", cert.NotAfter.Format(time.RFC3339))

			hub := tally.NewHub(nil, m)
			tallySrv, err := tally.NewServer(tally.ServerConfig{Addr: tallyAddr, Cert: cert, Hub: hub})
			if err != nil {
				return err
			}
			handler, err := api.Handler(api.Config{
				Driver:    drv,
				Hub:       hub,
				Gatherer:  reg,
				Cert:      cert,
				TallyAddr: tallyAddr,
			})
			if err != nil {
				return err
			}
			apiSrv := &http.Server{Addr: apiAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

			ctx, cancel := signalContext()
			defer cancel()

			slog.Info("atemtally starting",
				"version", version,
				"atem", sw.addr,
				"api", apiAddr,
				"tally", tallyAddr,
				"poll", drv.PollInterval())

			g, ctx := errgroup.WithContext(ctx)

			updates, unsubscribe := drv.Subscribe()
			defer unsubscribe()

			g.Go(func() error { return ignoreCanceled(drv.Run(ctx)) })
			g.Go(func() error { return ignoreCanceled(hub.Run(ctx, updates)) })
			g.Go(func() error { return tallySrv.ListenAndServe(ctx) })
			g.Go(func() error {
				slog.Info("API server listening", "addr", apiAddr)
				if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("API server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				return apiSrv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
	sw.register(cmd)
	cmd.Flags().StringVar(&apiAddr, "api", envOr("API_ADDR", ":8080"), "HTTP API listen address (API_ADDR)")
	cmd.Flags().StringVar(&tallyAddr, "tally", envOr("TALLY_ADDR", ":9444"), "QUIC tally listen address (TALLY_ADDR)")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// awaitReady steps drv until the session is ready or timeout elapses.
func awaitReady(ctx context.Context, drv *driver.Driver, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(drv.PollInterval())
	defer ticker.Stop()
	for {
		drv.Step()
		if drv.State() == session.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("switcher not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
