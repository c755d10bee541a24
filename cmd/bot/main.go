package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rezme/internal/admin"
	"rezme/internal/bot"
	"rezme/internal/catalog"
	"rezme/internal/config"
	"rezme/internal/export"
	"rezme/internal/flow"
	"rezme/internal/google"
	"rezme/internal/logger"
	"rezme/internal/metrics"
	"rezme/internal/notify"
	"rezme/internal/state"
	"rezme/internal/storage/sqlite"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "configs/config.yaml"
	}
	configPath := pflag.StringP("config", "c", defaultPath, "path to config.yaml")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Bot stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	venues := catalog.NewStore(cfg.Catalog.Path)
	if _, err := venues.ListAll(); err != nil {
		return fmt.Errorf("load catalog %s: %w", cfg.Catalog.Path, err)
	}

	states := newStateStore(ctx, cfg.Redis, log)

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Monitoring.PrometheusEnabled {
		srv := serveMetrics(cfg.Monitoring.PrometheusPort, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("create bot api: %w", err)
	}
	api.Debug = cfg.Telegram.Debug
	log.Info().Str("account", api.Self.UserName).Msg("Authorized on Telegram")

	notifiers := notify.Multi{bot.NewOperatorNotifier(api, cfg.Operator.AdminID)}
	if cfg.SheetsEnabled() {
		if sheets := newSheets(ctx, cfg.Google, log); sheets != nil {
			notifiers = append(notifiers, sheets)
		}
	}
	if cfg.Operator.AdminID == 0 {
		log.Warn().Msg("Operator admin_id is not set, admin commands are disabled")
	}

	booking := flow.NewBooking(states, store, venues, notifiers, flow.BookingOptions{
		Categories: cfg.Booking.Categories,
		Times:      cfg.Booking.Times,
		PeopleMax:  cfg.Booking.PeopleMax,
	}, m, log)
	review := flow.NewReview(states, store, venues, m, log)
	venueAdd := flow.NewVenueAdd(states, venues, cfg.IsOperator, m, log)
	adminSvc := admin.NewService(cfg.IsOperator, store, venues, export.New(cfg.Exports.Path), cfg.Exports.Limit, m, log)

	router := bot.NewRouter(bot.RouterDeps{
		States:   states,
		Users:    store,
		Venues:   venues,
		Booking:  booking,
		Review:   review,
		VenueAdd: venueAdd,
		Admin:    adminSvc,
		Info:     cfg.Info,
		Metrics:  m,
		Logger:   log,
	})

	bot.NewBot(api, router, log).Start(ctx)
	log.Info().Msg("Shutdown complete")
	return nil
}

// newStateStore выбирает Redis, если он настроен и доступен, иначе память.
func newStateStore(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) state.Store {
	if cfg.Address == "" {
		log.Info().Msg("Dialog state kept in memory")
		return state.NewMemoryStore()
	}
	client := state.NewRedisClient(cfg)
	if err := state.Ping(ctx, client); err != nil {
		log.Warn().Err(err).Str("address", cfg.Address).Msg("Redis unavailable, falling back to in-memory state")
		_ = client.Close()
		return state.NewMemoryStore()
	}
	log.Info().Str("address", cfg.Address).Msg("Dialog state kept in Redis")
	return state.NewRedisStore(client, cfg.StateTTL)
}

// newSheets подключает выгрузку броней в Google Sheets. Ошибки не фатальны.
func newSheets(ctx context.Context, cfg config.GoogleConfig, log zerolog.Logger) notify.Notifier {
	sheets, err := google.NewSheetsService(ctx, cfg.CredentialsFile, cfg.BookingsSpreadsheetID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.CredentialsFile)
		log.Warn().Err(err).Str("service_account", email).Msg("Google Sheets connection test failed, share the sheet with the service account")
		return nil
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to write Google Sheets header")
	}
	log.Info().Msg("Google Sheets service initialized successfully")
	return sheets
}

func serveMetrics(port int, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Int("port", port).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}
