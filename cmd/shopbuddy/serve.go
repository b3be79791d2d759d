package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/centromex/shopping-buddy/internal/bot"
	"github.com/centromex/shopping-buddy/internal/config"
	"github.com/centromex/shopping-buddy/internal/db"
	"github.com/centromex/shopping-buddy/internal/gateway"
	"github.com/centromex/shopping-buddy/internal/geocode"
	"github.com/centromex/shopping-buddy/internal/httpapi"
	"github.com/centromex/shopping-buddy/internal/lifecycle"
	"github.com/centromex/shopping-buddy/internal/notify"
	"github.com/centromex/shopping-buddy/internal/payment"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when a token is configured, the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting shopbuddy", "version", version)

	database, err := db.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	gw, err := newGateway(cfg.Gateway, logger)
	if err != nil {
		return err
	}
	ledger := payment.New(database, gw, payment.Config{
		Currency:    cfg.Gateway.Currency,
		CallTimeout: cfg.Gateway.CallTimeout,
	}, logger)

	geo, err := newGeocoder(cfg.Geocoding, logger)
	if err != nil {
		return err
	}

	backends := []notify.Notifier{notify.NewLog(logger)}
	var tg *tgbotapi.BotAPI
	if cfg.Telegram.Token != "" {
		tg, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		logger.Info("telegram bot authorized", "account", tg.Self.UserName)
		backends = append(backends, notify.NewTelegram(tg, cfg.Telegram.ShopperChat, logger))
	}

	minFee, err := cfg.MinDeliveryFee()
	if err != nil {
		return err
	}
	manager := lifecycle.NewManager(database, ledger, geo,
		notify.NewDispatcher(logger, backends...),
		lifecycle.Config{MinDeliveryFee: minFee},
		logger)

	api := httpapi.New(manager, httpapi.Config{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		PublishableKey: cfg.Gateway.PublishableKey,
		Ping:           database.Ping,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if tg != nil {
		b := bot.New(tg, manager, bot.Config{
			CoordinatorIDs: cfg.Telegram.CoordinatorIDs,
			CommandTimeout: cfg.HTTP.RequestTimeout,
		}, logger)
		g.Go(func() error { return b.Run(ctx) })
	}

	return g.Wait()
}

func newGateway(cfg config.GatewayConfig, logger *slog.Logger) (gateway.Gateway, error) {
	var gw gateway.Gateway
	switch cfg.Provider {
	case "stripe":
		s, err := gateway.NewStripe(gateway.StripeConfig{SecretKey: cfg.SecretKey, Timeout: cfg.CallTimeout})
		if err != nil {
			return nil, err
		}
		gw = s
	default:
		logger.Warn("using the in-memory payment gateway; no card is ever charged")
		gw = gateway.NewFake()
	}
	return gateway.NewThrottled(gw, cfg.RatePerSecond, cfg.Burst), nil
}

func newGeocoder(cfg config.GeocodingConfig, logger *slog.Logger) (geocode.Geocoder, error) {
	if cfg.Provider != "google" {
		return geocode.Nop{}, nil
	}
	g, err := geocode.NewGoogle(cfg.APIKey, cfg.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocoder: %w", err)
	}
	return g, nil
}
