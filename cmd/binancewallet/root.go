package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"binancewallet/internal/circuitbreaker"
	"binancewallet/internal/config"
	"binancewallet/internal/logger"
	"binancewallet/internal/metrics"
	"binancewallet/internal/poller"
	"binancewallet/internal/server"
	"binancewallet/pkg/core"
	"binancewallet/pkg/exchange/binance"
	"binancewallet/pkg/sensor"
)

type globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "binancewallet",
		Short:         "Binance wallet sensor",
		Long:          `binancewallet polls the Binance account snapshot endpoint and reports the wallet value in BTC.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "Env files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newOnceCmd(flags))

	return rootCmd
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the wallet and serve its state over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, err := setup(flags, cmd)
			if err != nil {
				return err
			}
			return run(ctx, cfg, log, listen)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", server.DefaultConfig().Addr, "Status server listen address (empty disables it)")
	return cmd
}

func newOnceCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single update and print the sensor as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags, cmd)
			if err != nil {
				return err
			}

			sn, err := sensor.NewFromConfig(cfg, binance.WithLogger(log))
			if err != nil {
				return err
			}
			defer sn.Close()

			if err := sn.Wallet().Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("update failed: %w", err)
			}

			data, err := sonic.ConfigStd.MarshalIndent(server.View(sn), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func setup(flags *globalFlags, cmd *cobra.Command) (*core.Config, zerolog.Logger, error) {
	cfg, err := config.Load(config.Options{
		Path:     flags.configPath,
		EnvFiles: flags.envFiles,
	})
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	log, err := logger.New(cmd.ErrOrStderr(), level)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	log.Debug().Stringer("credentials", cfg.Credentials()).Msg("configuration loaded")
	return cfg, log, nil
}

func run(ctx context.Context, cfg *core.Config, log zerolog.Logger, listen string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sn, err := sensor.NewFromConfig(cfg, binance.WithLogger(log))
	if err != nil {
		return err
	}
	defer sn.Close()

	log = log.With().Str("sensor", sn.UniqueID()).Logger()

	registry := metrics.NewRegistry()
	p := poller.New(sn.Wallet(), poller.ConfigFrom(cfg), poller.WithLogger(log))
	p.OnResult(func(state core.WalletState, err error) {
		registry.Observe(sn.UniqueID(), state, err)
		if err == nil {
			log.Info().
				Float64("total_btc", state.TotalBTC).
				Str("data_timestamp", state.FormattedTimestamp()).
				Msg("wallet updated")
		}
	})
	p.OnSkip(func() { registry.Skipped(sn.UniqueID()) })
	p.OnThrottle(func() { registry.RefreshThrottled(sn.UniqueID()) })
	if b := p.Breaker(); b != nil {
		registry.SetBreakerState(sn.UniqueID(), b.State())
		p.OnBreakerChange(func(_, to circuitbreaker.State) {
			registry.SetBreakerState(sn.UniqueID(), to)
		})
	}

	errCh := make(chan error, 1)
	var srv *server.Server
	if listen != "" {
		srvConfig := server.DefaultConfig()
		srvConfig.Addr = listen
		srv = server.New(srvConfig, []*sensor.Sensor{sn}, registry.Gatherer(), log)
		go func() { errCh <- srv.Start() }()
	}

	pollErr := make(chan error, 1)
	go func() { pollErr <- p.Run(ctx) }()

	select {
	case err = <-errCh:
		if err != nil {
			err = fmt.Errorf("status server: %w", err)
		}
	case err = <-pollErr:
	}
	cancel()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.Canceled) {
			log.Warn().Err(serr).Msg("status server shutdown")
		}
	}
	return err
}
