package server

import (
	"context"
	"errors"
	"github.com/aim-pay/accountant/pkg"
	"github.com/aim-pay/accountant/pkg/bot"
	"github.com/aim-pay/accountant/pkg/checkout"
	"github.com/aim-pay/accountant/pkg/ledger"
	"github.com/aim-pay/accountant/pkg/notify"
	"github.com/aim-pay/accountant/pkg/pricing"
	"github.com/aim-pay/accountant/pkg/referral"
	"github.com/aim-pay/accountant/pkg/storage"
	"github.com/aim-pay/accountant/pkg/yookassa"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"net/http"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Debug          bool   `long:"debug" env:"DEBUG"`
	PrometheusPort int    `long:"prometheus" env:"PROMETHEUS_PORT" default:"3000" description:"0 disables metrics"`
	HttpAddr       string `long:"http" env:"HTTP_ADDR" default:":8000"`

	Ledger     string `long:"ledger" env:"LEDGER" default:"postgres" choice:"postgres" choice:"memory"`
	Postgres   string `long:"postgres" env:"POSTGRES" default:""`
	ClickHouse string `long:"clickhouse" env:"CLICKHOUSE" default:"" description:"settlement audit, disabled when empty"`
	Redis      string `long:"redis" env:"REDIS" default:"" description:"pricing updates and payout fan-out, disabled when empty"`

	RedisChannelPricingUpdate string `long:"redis-ch-pricing-update" env:"REDIS_CH_PRICING_UPDATE" default:"pricing"`
	RedisChannelPayout        string `long:"redis-ch-payout" env:"REDIS_CH_PAYOUT" default:"payout"`
	RedisPricingKey           string `long:"redis-pricing-key" env:"REDIS_PRICING_KEY" default:":4:referral_amount"`

	ReferralAmount float64 `long:"referral-amount" env:"REFERRAL_AMOUNT" default:"2000" description:"payout per paid referral"`
	CourseAmount   float64 `long:"course-amount" env:"COURSE_AMOUNT" default:"6000"`

	YooKassaURL         string        `long:"yookassa-url" env:"YOOKASSA_URL" default:"https://api.yookassa.ru/v3"`
	YooKassaShopID      string        `long:"yookassa-shop-id" env:"YOOKASSA_SHOP_ID" default:""`
	YooKassaSecretKey   string        `long:"yookassa-secret-key" env:"YOOKASSA_SECRET_KEY" default:""`
	YooKassaReturnURL   string        `long:"yookassa-return-url" env:"YOOKASSA_RETURN_URL" default:"tg://resolve?domain=AiM_Pay_Bot"`
	YooKassaTimeout     time.Duration `long:"yookassa-timeout" env:"YOOKASSA_TIMEOUT" default:"10s"`
	VerifyNotifications bool          `long:"verify-notifications" env:"VERIFY_NOTIFICATIONS" description:"re-read payments from the gateway before settling"`

	TelegramToken  string        `long:"telegram-token" env:"TELEGRAM_TOKEN" default:"" description:"bot and payout notifications, disabled when empty"`
	NotifyInterval time.Duration `long:"notify-interval" env:"NOTIFY_INTERVAL" default:"1m"`
}

func Listen(closing <-chan os.Signal, config *Config, logger *log.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	var ledgerStore pkg.Ledger
	switch config.Ledger {
	case "memory":
		ledgerStore = ledger.NewMemory()
		logger.Warn("using in-memory ledger, state is lost on exit")
	default:
		pg := newPostgres(config.Postgres)
		logger.Debugf("Postgres: connected to %s", config.Postgres)
		closers = append(closers, pg.Close)

		if err := ledger.ApplySchema(ctx, pg); err != nil {
			return err
		}
		ledgerStore = ledger.NewPostgres(pg)
	}

	var storages []pkg.Storage
	var prices pkg.Pricing = pricing.Static(decimal.NewFromFloat(config.ReferralAmount))
	var rd *redis.Client

	if config.ClickHouse != "" {
		ch := newClickHouse(config.ClickHouse)
		logger.Debugf("ClickHouse: connected to %s", config.ClickHouse)
		closers = append(closers, ch.Close)

		audit := storage.NewClickHouse(ch)
		if err := audit.Migrate(ctx); err != nil {
			return err
		}
		storages = append(storages, audit)
	}

	if config.Redis != "" {
		rd = newRedis(config.Redis)
		logger.Debugf("Redis: connected to %s", config.Redis)
		closers = append(closers, rd.Close)

		prices = pricing.NewRedis(ctx, logger, rd, config.RedisPricingKey, config.RedisChannelPricingUpdate, prices.ReferralAmount())
		storages = append(storages, storage.NewRedis(rd, config.RedisChannelPayout))
	}

	gateway := yookassa.NewClient(config.YooKassaURL, config.YooKassaShopID, config.YooKassaSecretKey, config.YooKassaTimeout)
	co := checkout.New(logger, ledgerStore, gateway, decimal.NewFromFloat(config.CourseAmount), config.YooKassaReturnURL)

	if config.TelegramToken != "" {
		api, err := tgbotapi.NewBotAPI(config.TelegramToken)
		if err != nil {
			return err
		}
		api.Debug = config.Debug
		logger.Debugf("Telegram: authorised as @%s", api.Self.UserName)

		telegram := notify.NewTelegram(api)
		storages = append(storages, telegram)

		// only the worker drains payout messages
		var wake <-chan *redis.Message
		if rd != nil {
			payoutSub := rd.Subscribe(ctx, config.RedisChannelPayout)
			closers = append(closers, payoutSub.Close)
			wake = payoutSub.Channel()
		}

		worker := notify.NewWorker(logger, notify.NewTracker(ledgerStore), telegram, config.NotifyInterval)
		go worker.Run(ctx, wake)

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := api.GetUpdatesChan(u)
		closers = append(closers, func() error { api.StopReceivingUpdates(); return nil })

		frontend := bot.New(logger, api, api.Self.UserName, ledgerStore, co, prices)
		go frontend.Run(ctx, updates)
	}

	accountant := pkg.NewDefault(logger,
		ledgerStore,
		referral.NewResolver(logger),
		referral.NewIssuer(logger),
		prices,
		storages...,
	)

	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	NewHandler(logger, accountant, co, gateway, config.VerifyNotifications).Routes(router)

	servers := []*http.Server{{Addr: config.HttpAddr, Handler: router}}
	if config.PrometheusPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: ":" + strconv.Itoa(config.PrometheusPort), Handler: mux})
	}

	failed := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Infof("listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				failed <- err
			}
		}(srv)
	}

	var err error
	select {
	case <-closing:
	case err = <-failed:
	}

	cancel()
	for _, srv := range servers {
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second*5)
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.WithError(serr).WithField("addr", srv.Addr).Error("failed to shut down server")
		}
		done()
	}

	return err
}

func newRedis(dsn string) *redis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	options, err := redis.ParseURL(dsn)
	if err != nil {
		panic(err)
	}

	rdb := redis.NewClient(options)

	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		panic(err)
	}

	return rdb
}

func newClickHouse(dsn string) *sqlx.DB {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "clickhouse", dsn)
	if err != nil {
		panic(err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		panic(err)
	}

	return db
}

func newPostgres(dsn string) *sqlx.DB {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		panic(err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		panic(err)
	}

	return db
}
