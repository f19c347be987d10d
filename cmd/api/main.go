package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"BTCPayGateway/internal/chain"
	"BTCPayGateway/internal/config"
	internalhttp "BTCPayGateway/internal/http"
	"BTCPayGateway/internal/pubsub"
	"BTCPayGateway/internal/services"
	"BTCPayGateway/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		failStartup("config load failed", err)
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		failStartup("logger setup failed", err)
	}

	ctx := context.Background()
	pool, err := store.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect failed")
	}
	defer pool.Close()

	st := store.New(pool)
	addresses, err := newAddressSource(cfg, st, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("address source setup failed")
	}

	events := pubsub.New()
	invoiceSvc := &services.InvoiceService{
		Store:       st,
		Addresses:   addresses,
		Secret:      cfg.Gateway.Secret,
		CallbackURL: cfg.Gateway.CallbackBaseURL,
		Log:         logger,
	}
	paymentSvc := &services.PaymentService{
		Store:                 st,
		Secret:                cfg.Gateway.Secret,
		RequiredConfirmations: cfg.Gateway.RequiredConfirmations,
		AllowLateUpdates:      cfg.Gateway.AllowLateUpdates,
		Events:                events,
		Log:                   logger,
	}

	h := internalhttp.NewHandler(invoiceSvc, paymentSvc)
	stream := &internalhttp.StreamHandler{Invoices: invoiceSvc, Events: events}
	srv := internalhttp.NewServer(h, stream)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	logger.Info().Msg("api stopped")
}

func newLogger(level, file string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := os.Stdout
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), err
		}
		out = f
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func newAddressSource(cfg *config.Config, st *store.Store, logger zerolog.Logger) (chain.AddressSource, error) {
	if cfg.Address.Mode == "local" {
		return &chain.LocalSource{
			Deriver: chain.Deriver{XPub: cfg.Address.XPub, HRP: cfg.Address.HRP},
			Index:   st,
		}, nil
	}

	clients := make([]*chain.Client, 0, len(cfg.Address.APIBaseURLs))
	for _, base := range cfg.Address.APIBaseURLs {
		clients = append(clients, chain.NewClient(chain.ClientConfig{
			BaseURL:  base,
			XPub:     cfg.Address.XPub,
			APIKey:   cfg.Address.APIKey,
			GapLimit: cfg.Address.GapLimit,
		}, logger))
	}
	if len(clients) == 1 {
		return clients[0], nil
	}
	return chain.NewMultiClient(clients, cfg.Address.FailoverThreshold)
}

func failStartup(msg string, err error) {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	l.Fatal().Err(err).Msg(msg)
}
