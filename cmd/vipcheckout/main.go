package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/vipcontent/vipcheckout/internal/checkout"
	"github.com/vipcontent/vipcheckout/internal/config"
	"github.com/vipcontent/vipcheckout/internal/events"
	"github.com/vipcontent/vipcheckout/internal/gateway"
	"github.com/vipcontent/vipcheckout/internal/http_api"
	"github.com/vipcontent/vipcheckout/internal/metrics"
	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/internal/notificator"
	"github.com/vipcontent/vipcheckout/internal/repository"
	"github.com/vipcontent/vipcheckout/internal/session"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "vipcheckout",
		Usage: "Pix checkout for the VIP content subscription",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "HTTP API port"},
			&cli.StringFlag{Name: "db-driver", Usage: "Ledger database driver (postgres or sqlite)"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database file"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "gateway-base-url", Aliases: []string{"g"}, Usage: "Payment gateway base URL"},
			&cli.StringFlag{Name: "gateway-amount-unit", Usage: "Amount unit sent to the gateway (cents or major)"},
			&cli.Float64Flag{Name: "price", Usage: "Subscription price in reais"},
			&cli.Float64Flag{Name: "order-bump-price", Usage: "Order bump price in reais"},
			&cli.StringFlag{Name: "delivery-url", Usage: "Where settled buyers are sent"},
			&cli.StringFlag{Name: "session-store", Aliases: []string{"s"}, Usage: "Checkout session store (memory, redis or bolt)"},
			&cli.StringFlag{Name: "redis-addr", Usage: "Redis address for the session store"},
			&cli.StringSliceFlag{Name: "kafka-brokers", Aliases: []string{"k"}, Usage: "Kafka brokers for settlement events"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func overrideConfig(c *cli.Context, cfg *config.Config) {
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("db-driver") {
		cfg.DBDriver = c.String("db-driver")
	}
	if c.IsSet("sqlite-path") {
		cfg.SQLitePath = c.String("sqlite-path")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("gateway-base-url") {
		cfg.GatewayBaseURL = c.String("gateway-base-url")
	}
	if c.IsSet("gateway-amount-unit") {
		cfg.GatewayAmountUnit = c.String("gateway-amount-unit")
	}
	if c.IsSet("price") {
		cfg.Price = c.Float64("price")
	}
	if c.IsSet("order-bump-price") {
		cfg.OrderBumpPrice = c.Float64("order-bump-price")
	}
	if c.IsSet("delivery-url") {
		cfg.DeliveryURL = c.String("delivery-url")
	}
	if c.IsSet("session-store") {
		cfg.SessionStore = c.String("session-store")
	}
	if c.IsSet("redis-addr") {
		cfg.RedisAddr = c.String("redis-addr")
	}
	if c.IsSet("kafka-brokers") {
		cfg.KafkaBrokers = c.StringSlice("kafka-brokers")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
}

func openRepository(cfg *config.Config, log *logger.Logger) (*repository.PostgresDB, error) {
	if cfg.DBDriver == config.DBDriverSQLite {
		return repository.NewSQLiteDB(cfg.SQLitePath, log)
	}
	return repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	overrideConfig(c, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := openRepository(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()

	store, err := session.NewFromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open session store: %v", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	// Initialize delivery channels
	var publisher models.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Info("Publishing settlement events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	var telegram *notificator.TelegramNotificator
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegram, err = notificator.NewTelegramNotificator(log, cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return err
		}
		telegram.Start(ctx)
	}
	var email *notificator.EmailNotificator
	if cfg.SMTPHost != "" {
		email = notificator.NewEmailNotificator(log, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender)
	}
	notif := notificator.NewNotificator(log, telegram, email, publisher)

	// Create checkout service
	service, err := checkout.NewService(db, gateway.NewFromConfig(cfg, log), notif, checkoutMetrics, log, cfg)
	if err != nil {
		return err
	}
	manager := checkout.NewManager(service, store, checkoutMetrics, checkout.MachineOptions{
		PollInterval: cfg.PollInterval,
		ConfirmDelay: cfg.ConfirmDelay,
		SessionTTL:   cfg.SessionTTL,
	}, log)

	apiServer := http_api.NewHTTPServer(service, manager, registry, cfg.APIPort, cfg.Development, log)

	go apiServer.Start()
	go service.Start(ctx)
	go manager.Start(ctx)

	<-ctx.Done()
	log.Info("Shutting down")
	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}
	manager.Shutdown()
	return nil
}
