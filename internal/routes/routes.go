package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/petnest/settlement/internal/booking"
	"github.com/petnest/settlement/internal/config"
	"github.com/petnest/settlement/internal/gateway/payos"
	"github.com/petnest/settlement/internal/gateway/vnpay"
	"github.com/petnest/settlement/internal/infra"
	"github.com/petnest/settlement/internal/ledger"
	"github.com/petnest/settlement/internal/middleware"
	"github.com/petnest/settlement/internal/notification"
	"github.com/petnest/settlement/internal/reconcile"
	"github.com/petnest/settlement/internal/wallet"
	"github.com/petnest/settlement/internal/withdrawal"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Services is the assembled core, exposed so callers can seed or inspect it.
type Services struct {
	Wallets     *wallet.Service
	Withdrawals *withdrawal.Service
	Payments    *reconcile.Service
	Bookings    booking.Service
}

// Build assembles the core services over Postgres when a pool is configured
// and over the in-memory backends otherwise.
func Build(d Deps) Services {
	var (
		tx             infra.Transactor
		ledgerBackend  ledger.Ledger
		walletRepo     wallet.Repository
		withdrawalRepo withdrawal.Repository
		paymentRepo    reconcile.Repository
		bookings       booking.Service
	)
	if d.DB != nil {
		tx = infra.NewPostgresTransactor(d.DB)
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		withdrawalRepo = withdrawal.NewPostgresRepository(d.DB)
		paymentRepo = reconcile.NewPostgresRepository(d.DB)
		bookings = booking.NewPostgresService(d.DB)
	} else {
		tx = infra.NewMemoryTransactor()
		ledgerBackend = ledger.NewInMemory()
		walletRepo = wallet.NewMemoryRepository()
		withdrawalRepo = withdrawal.NewMemoryRepository()
		paymentRepo = reconcile.NewMemoryRepository()
		bookings = booking.NewMemoryService()
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}
	policy := infra.RetryPolicy{MaxAttempts: d.Cfg.Wallet.MaxRetries, BaseDelay: d.Cfg.Wallet.RetryBaseDelay}

	walletSvc := wallet.NewService(walletRepo, ledgerBackend, tx, d.Logger, wallet.WithRetryPolicy(policy))
	withdrawalSvc := withdrawal.NewService(withdrawalRepo, walletSvc, tx, notifier,
		withdrawal.Limits{MinAmount: d.Cfg.Withdrawal.MinAmount, MaxAmount: d.Cfg.Withdrawal.MaxAmount},
		withdrawal.FeeSchedule{Flat: d.Cfg.Withdrawal.FeeFlat, Rate: d.Cfg.Withdrawal.FeeRate},
		d.Logger,
		withdrawal.WithRetryPolicy(policy),
	)
	paymentSvc := reconcile.NewService(paymentRepo, bookings, walletSvc, tx, notifier, d.Cfg.Payments.CommissionRate, d.Logger,
		reconcile.WithAdapter(vnpay.New(), d.Cfg.Payments.VNPayHashSecret),
		reconcile.WithAdapter(payos.New(), d.Cfg.Payments.PayOSChecksumKey),
		reconcile.WithRetryPolicy(policy),
	)

	return Services{Wallets: walletSvc, Withdrawals: withdrawalSvc, Payments: paymentSvc, Bookings: bookings}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (Services, error) {
	// In-memory backends are for development only.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return Services{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Services{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	svc := Build(d)

	// Callers retry unsafe requests with the same Idempotency-Key; gateway
	// callbacks are deduplicated by reconciliation instead.
	idempotent := func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, wallet.NewHandler(svc.Wallets))
	RegisterWithdrawalRoutes(api, withdrawal.NewHandler(svc.Withdrawals), idempotent,
		middleware.ProviderRateLimit(d.Cache, "withdrawal", d.Cfg.Withdrawal.RateLimitPerMin))
	RegisterPaymentRoutes(api, reconcile.NewHandler(svc.Payments, d.Cfg.Payments.ResultURL), idempotent)

	return svc, nil
}
