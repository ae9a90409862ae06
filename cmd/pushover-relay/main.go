package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/bark-labs/pushover-relay/internal/config"
	"github.com/bark-labs/pushover-relay/internal/logx"
	"github.com/bark-labs/pushover-relay/internal/server"
	"github.com/bark-labs/pushover-relay/internal/service"
	"github.com/bark-labs/pushover-relay/internal/storage/bolt"
	"github.com/bark-labs/pushover-relay/pkg/pushover"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logx.New("info", false)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logx.New(cfg.Log.Level, cfg.Log.Pretty)

	client, err := pushover.New(
		pushover.WithBaseURL(cfg.Pushover.BaseURL),
		pushover.WithTimeout(cfg.Pushover.RequestTimeout),
		pushover.WithLogger(log.With().Str("component", "pushover").Logger()),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("init pushover client")
	}
	if cfg.Pushover.Token == "" {
		log.Warn().Msg("pushover.token is empty; the service will reject every request")
	}

	store, err := bolt.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("open store")
	}
	defer store.Close()

	svcLog := log.With().Str("component", "service").Logger()
	recipients := service.NewRecipientService(store, client, cfg.Pushover.Token, svcLog)
	receipts := service.NewReceiptService(store, client, cfg.Pushover.Token, svcLog)
	svcs := server.Services{
		Recipients: recipients,
		Notices: service.NewNoticeService(store, client, service.NoticeDefaults{
			APIToken:    cfg.Pushover.Token,
			Sound:       cfg.Pushover.DefaultSound,
			Retry:       cfg.Pushover.Retry,
			Expire:      cfg.Pushover.Expire,
			CallbackURL: cfg.Pushover.CallbackURL,
		}, svcLog),
		Receipts: receipts,
		Logs:     service.NewNoticeLogService(store, recipients),
		Auth:     service.NewAuthService(cfg),
	}
	srv := server.New(cfg, store, svcs, client, log.With().Str("component", "http").Logger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pollReceipts(ctx, receipts, cfg.Pushover.ReceiptPoll, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

// pollReceipts refreshes pending emergency receipts until ctx is done.
// A non-positive interval disables polling.
func pollReceipts(ctx context.Context, receipts *service.ReceiptService, every time.Duration, log zerolog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := receipts.RefreshPending(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("receipt poll failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("refreshed", n).Msg("receipts polled")
			}
		}
	}
}
