package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/core-coin/coinstore/internal/catalog"
	"github.com/core-coin/coinstore/internal/config"
	"github.com/core-coin/coinstore/internal/events"
	"github.com/core-coin/coinstore/internal/http_api"
	"github.com/core-coin/coinstore/internal/idempotency"
	"github.com/core-coin/coinstore/internal/inventory"
	"github.com/core-coin/coinstore/internal/ledger"
	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/notificator"
	"github.com/core-coin/coinstore/internal/orders"
	"github.com/core-coin/coinstore/internal/payreq"
	"github.com/core-coin/coinstore/internal/reconcile"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/internal/settings"
	"github.com/core-coin/coinstore/internal/support"
	"github.com/core-coin/coinstore/internal/users"
	"github.com/core-coin/coinstore/internal/wallet"
	"github.com/core-coin/coinstore/pkg/logger"
)

// cliActor is the identity maintenance commands run as.
var cliActor = models.Actor{UserID: "cli", Role: models.RoleAdmin}

func main() {
	app := &cli.App{
		Name:  "coinstore",
		Usage: "Coin Store is an e-commerce backend with an internal wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.IntFlag{Name: "port", Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
			&cli.BoolFlag{Name: "refund-on-cancel", Usage: "Refund wallet payments when an order is cancelled"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "seed",
				Usage:  "Insert demo products and an administrator into an empty database",
				Action: seed,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "admin-email", Value: "admin@coinstore.local", Usage: "Email of the seeded administrator"},
				},
			},
			{
				Name:   "reconcile",
				Usage:  "Recompute cached wallet balances from the ledger",
				Action: reconcileBalances,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "Recalculate a single user"},
					&cli.BoolFlag{Name: "all", Usage: "Report every user whose cached balance drifted"},
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override with flags if set
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
	if c.IsSet("port") {
		cfg.APIPort = c.Int("port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("refund-on-cancel") {
		cfg.RefundOnCancel = c.Bool("refund-on-cancel")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *repository.Store
	publisher models.EventPublisher
	notifier  *notificator.Notificator

	catalog   *catalog.Catalog
	users     *users.Directory
	settings  *settings.Store
	wallet    *wallet.Service
	orders    *orders.Manager
	reconcile *reconcile.Engine
	payreq    *payreq.Flow
	support   *support.Desk
}

func setup(ctx context.Context, c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize database
	store, err := repository.NewPostgresStore(cfg.PostgresDSN(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var publisher models.EventPublisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, log)
		log.Info("Publishing domain events to Kafka", "brokers", cfg.KafkaBrokers)
	}

	notifier := notificator.NewNotificator(log, nil, nil, cfg.TelegramAdminChatID)
	if cfg.TelegramBotToken != "" {
		telegram, err := notificator.NewTelegramNotificator(ctx, log, cfg.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("failed to start telegram bot: %w", err)
		}
		notifier.TelegramNotificator = telegram
	}
	if cfg.SMTPUser != "" {
		notifier.EmailNotificator = notificator.NewEmailNotificator(log, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender)
	}

	l := ledger.New(store, log)
	settingsStore := settings.NewStore(store, log)
	wallets := wallet.NewService(store, l, settingsStore, notifier, publisher, log)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		catalog:   catalog.New(store, log),
		users:     users.NewDirectory(store, log),
		settings:  settingsStore,
		wallet:    wallets,
		orders:    orders.NewManager(store, inventory.NewGuard(log), wallets, notifier, publisher, orders.Options{RefundOnCancel: cfg.RefundOnCancel}, log),
		reconcile: reconcile.NewEngine(store, l, publisher, log),
		payreq:    payreq.NewFlow(store, wallets, notifier, publisher, log),
		support:   support.NewDesk(store, notifier, publisher, log),
	}, nil
}

func (a *app) close() {
	a.notifier.Wait()
	if err := a.publisher.Close(); err != nil {
		a.log.Warn("Failed to close event publisher", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close database", "error", err)
	}
	a.log.Sync()
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.close()

	services := http_api.Services{
		Catalog:         a.catalog,
		Users:           a.users,
		Settings:        a.settings,
		Orders:          a.orders,
		Wallet:          a.wallet,
		Reconcile:       a.reconcile,
		PaymentRequests: a.payreq,
		Support:         a.support,
	}
	if a.cfg.RedisAddr != "" {
		rdb, err := idempotency.Connect(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		services.Idempotency = idempotency.NewRedisStore(rdb, a.cfg.IdempotencyTTL)
	} else {
		a.log.Warn("REDIS_ADDR not set, Idempotency-Key headers are ignored")
	}

	apiServer := http_api.NewHTTPServer(services, http_api.Options{
		Port:        a.cfg.APIPort,
		JWTSecret:   a.cfg.JWTSecret,
		JWTIssuer:   a.cfg.JWTIssuer,
		Development: a.cfg.Development,
	}, a.log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.log.Info("Shutting down")
		return apiServer.Shutdown()
	}
}

var demoProducts = []models.Product{
	{Name: "Bitcoin Hardware Wallet", Category: "wallets", Price: decimal.RequireFromString("119.00"), Stock: 25,
		Description: "Cold storage device with a secure element"},
	{Name: "Steel Seed Backup", Category: "accessories", Price: decimal.RequireFromString("49.90"), Stock: 40,
		Description: "Fire and water resistant recovery phrase plate"},
	{Name: "Satoshi T-Shirt", Category: "apparel", Price: decimal.RequireFromString("24.50"), Stock: 100},
	{Name: "Node in a Box", Category: "hardware", Price: decimal.RequireFromString("349.00"), Stock: 5,
		Description: "Plug and play full node"},
}

func seed(c *cli.Context) error {
	a, err := setup(c.Context, c)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := c.Context

	count, err := a.catalog.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		a.log.Info("Catalog is not empty, skipping seed", "products", count)
		return nil
	}

	admin, err := a.users.Create(ctx, users.NewUser{Name: "Administrator", Email: c.String("admin-email"), Role: models.RoleAdmin})
	if err != nil && !errors.Is(err, models.ErrValidation) {
		return err
	}
	if admin != nil {
		a.log.Info("Seeded administrator", "id", admin.ID, "email", admin.Email)
	}

	for i := range demoProducts {
		product := demoProducts[i]
		if _, err := a.catalog.Create(ctx, &product, cliActor); err != nil {
			return fmt.Errorf("failed to seed product %q: %w", product.Name, err)
		}
	}
	if _, err := a.settings.Get(ctx); err != nil {
		return err
	}
	a.log.Info("Seeded demo catalog", "products", len(demoProducts))
	return nil
}

func reconcileBalances(c *cli.Context) error {
	if !c.IsSet("user") && !c.Bool("all") {
		return errors.New("either --user or --all is required")
	}
	a, err := setup(c.Context, c)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := c.Context

	if c.Bool("all") {
		report, err := a.reconcile.Report(ctx)
		if err != nil {
			return err
		}
		if len(report) == 0 {
			fmt.Println("All balances match the ledger")
		}
		for _, d := range report {
			fmt.Printf("%s\t%s\tcached %s\tledger %s\t(%s)\n", d.UserID, d.Email,
				d.CachedBalance.StringFixed(2), d.LedgerBalance.StringFixed(2), d.Difference.StringFixed(2))
		}
		return nil
	}

	result, err := a.reconcile.Recalculate(ctx, c.String("user"), cliActor)
	if err != nil {
		return fmt.Errorf("failed to recalculate balance: %w", err)
	}
	fmt.Printf("%s\t%s -> %s\t(%s, %d transactions)\n", result.UserID,
		result.OldBalance.StringFixed(2), result.NewBalance.StringFixed(2),
		result.Difference.StringFixed(2), result.TransactionsProcessed)
	return nil
}
