package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/auth"
	"github.com/aurum-chit/chitfund-backend/internal/config"
	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/events"
	"github.com/aurum-chit/chitfund-backend/internal/gateway"
	"github.com/aurum-chit/chitfund-backend/internal/handlers"
	"github.com/aurum-chit/chitfund-backend/internal/idempotency"
	"github.com/aurum-chit/chitfund-backend/internal/logging"
	"github.com/aurum-chit/chitfund-backend/internal/notify"
	"github.com/aurum-chit/chitfund-backend/internal/services"
)

// app holds everything built from configuration. close releases it in
// reverse order of construction.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	database *mongo.Database
	accounts *services.AccountService
	handlers handlers.Handlers
	resolver *auth.Resolver
	mailer   *notify.Async
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	client, err := db.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("error disconnecting from MongoDB", zap.Error(err))
		}
	})
	logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDB))
	a.database = client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, a.database, logger); err != nil {
		a.close()
		return nil, err
	}

	users := db.NewUserRepository(a.database)
	merchants := db.NewMerchantRepository(a.database)
	plans := db.NewChitPlanRepository(a.database)
	payments := db.NewPaymentRepository(a.database)
	verifications := db.NewVerificationRepository(a.database)

	var claims idempotency.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		claims = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
	} else {
		claims = idempotency.NewMongoStore(a.database.Collection(db.CollectionIdempotency), cfg.IdempotencyTTL)
	}

	var publisher events.Publisher
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		kp := events.NewKafkaPublisher(brokers, cfg.KafkaReconciliationTopic, logger.With(zap.String("component", "events")))
		a.closers = append(a.closers, func() { _ = kp.Close() })
		publisher = kp
	} else {
		publisher = events.NewLogPublisher(logger.With(zap.String("component", "events")))
	}

	var mailer notify.Notifier = notify.NewLogNotifier(logger.With(zap.String("component", "mail")))
	if cfg.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	a.mailer = notify.NewAsync(mailer, logger.With(zap.String("component", "mail")))
	a.closers = append(a.closers, a.mailer.Wait)

	cipher, err := auth.NewFieldCipher(cfg.EncryptionKey)
	if err != nil {
		a.close()
		return nil, err
	}
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	a.resolver = auth.NewResolver(tokens, users, merchants)

	gwOpts := gateway.Options{Timeout: cfg.GatewayTimeout, Retries: cfg.GatewayRetries}
	razorpayOpts, paypalOpts := gwOpts, gwOpts
	razorpayOpts.BaseURL = cfg.Razorpay.BaseURL
	paypalOpts.BaseURL = cfg.PayPal.BaseURL
	razorpay := gateway.NewRazorpayClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, razorpayOpts, logger.With(zap.String("component", "razorpay")))
	paypal := gateway.NewPayPalClient(cfg.PayPal.ClientID, cfg.PayPal.ClientSecret, paypalOpts, logger.With(zap.String("component", "paypal")))

	svcLogger := logger.With(zap.String("component", "services"))
	merchantSvc := services.NewMerchantService(merchants, plans, a.mailer, cipher, cfg.FrontendURL, svcLogger)
	paymentSvc := services.NewPaymentService(plans, merchants, payments, publisher, svcLogger)
	orderSvc := services.NewOrderService(
		services.OrderServiceConfig{KeySecret: cfg.Razorpay.KeySecret, PublicBaseURL: cfg.PublicBaseURL},
		razorpay, paypal, merchantSvc, paymentSvc, plans, merchants, claims, publisher, svcLogger,
	)
	a.accounts = services.NewAccountService(users, merchants, merchantSvc, verifications, tokens, mailer, a.mailer, cipher, svcLogger)

	httpLogger := logger.With(zap.String("component", "http"))
	a.handlers = handlers.Handlers{
		Accounts:  handlers.NewAccountHandler(a.accounts, httpLogger),
		Merchants: handlers.NewMerchantHandler(merchantSvc, orderSvc, httpLogger),
		ChitPlans: handlers.NewChitPlanHandler(services.NewChitPlanService(plans, svcLogger), httpLogger),
		Payments:  handlers.NewPaymentHandler(orderSvc, paymentSvc, httpLogger),
		Users:     handlers.NewUserHandler(services.NewUserService(users), httpLogger),
		KYC:       handlers.NewKYCHandler(services.NewKYCService(), httpLogger),
	}
	return a, nil
}
