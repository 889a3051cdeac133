// betchaind runs the wagering contracts on an in-process chain and serves
// them over HTTP and WebSocket, with optional settlement keeper, Postgres
// log indexer and Redis stream publisher.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/betchain/internal/config"
	"github.com/phenomenon0/betchain/pkg/api"
	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/deploy"
	"github.com/phenomenon0/betchain/pkg/eth"
	"github.com/phenomenon0/betchain/pkg/indexer"
	"github.com/phenomenon0/betchain/pkg/keeper"
	"github.com/phenomenon0/betchain/pkg/metrics"
	"github.com/phenomenon0/betchain/pkg/publisher"
	"github.com/phenomenon0/betchain/pkg/streaming"
)

var (
	configPath = flag.String("config", "", "Path to config file (default: search ./config and . for betchain.yaml)")
	httpAddr   = flag.String("http", "", "HTTP listen address (overrides server.addr)")
	noKeeper   = flag.Bool("no-keeper", false, "Disable the settlement keeper")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}
	if *noKeeper {
		cfg.Keeper.Enabled = false
	}
	logger := cfg.NewLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize")
	}
	defer d.close()

	if d.keeper != nil {
		if err := d.keeper.Start(ctx); err != nil {
			logger.WithError(err).Fatal("failed to start keeper")
		}
	}

	logger.WithFields(logrus.Fields{
		"addr":   cfg.Server.Addr,
		"bet":    d.deployment.Bet.Address().Hex(),
		"oracle": d.deployment.Oracle.Address().Hex(),
		"dai":    d.deployment.DAI.Address().Hex(),
		"pool":   d.deployment.Pool.Address().Hex(),
		"owner":  d.deployment.Deployer.Hex(),
	}).Info("betchain running")
	logger.Infof("WebSocket streaming available at ws://%s/ws", cfg.Server.Addr)

	if err := d.server.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil {
		logger.WithError(err).Error("HTTP server failed")
	}
	logger.Info("shutting down")
}

type daemon struct {
	logger     *logrus.Logger
	chain      *chain.Chain
	deployment *deploy.Deployment
	metrics    *metrics.BetchainMetrics
	hub        *streaming.Hub
	keeper     *keeper.Keeper
	server     *api.Server

	store  *indexer.Store
	sink   *indexer.Sink
	pub    *publisher.StreamPublisher
	redis  *redis.Client
	unsubs []func()
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*daemon, error) {
	d := &daemon{
		logger:  logger,
		chain:   chain.New(),
		metrics: metrics.NewBetchainMetrics(),
		hub:     streaming.NewHub(logger),
	}
	go d.hub.Run(ctx)

	d.subscribe(d.metrics.ObserveLog)
	d.subscribe(d.hub.PublishLog)

	if err := d.startIndexer(ctx, cfg.Postgres); err != nil {
		d.close()
		return nil, err
	}
	if err := d.startPublisher(ctx, cfg.Redis); err != nil {
		d.close()
		return nil, err
	}

	wallets, err := eth.DevWallets(cfg.Chain.DevAccounts)
	if err != nil {
		d.close()
		return nil, err
	}
	fund, err := cfg.FundAmount()
	if err != nil {
		d.close()
		return nil, err
	}
	for i, w := range wallets {
		d.chain.Fund(w.Address(), fund)
		logger.WithFields(logrus.Fields{
			"index":   i,
			"address": w.AddressHex(),
			"balance": eth.FormatEther(fund),
		}).Debug("funded dev account")
	}

	opts, err := cfg.BetOptions()
	if err != nil {
		d.close()
		return nil, err
	}
	d.deployment, err = deploy.All(d.chain, wallets[0].Address(), opts)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("deploy contracts: %w", err)
	}

	var serverOpts []api.Option
	serverOpts = append(serverOpts, api.WithStream(d.hub.ServeWS))

	if cfg.Keeper.Enabled {
		d.keeper = keeper.New(&keeper.Config{
			Account:  wallets[cfg.Keeper.AccountIndex].Address(),
			Interval: cfg.Keeper.Interval,
		}, d.deployment.Bet, logger, d.metrics)
		d.keeper.OnSettled(func(s *keeper.Settlement) {
			d.metrics.UpdateEscrow(d.deployment.Bet.TotalEscrowed())
			d.hub.BroadcastStatus(s)
		})
		serverOpts = append(serverOpts, api.WithStatus(func() interface{} {
			return d.keeper.GetStatus()
		}))
	}

	d.server = api.NewServer(api.Config{
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
	}, d.chain, d.deployment, logger, d.metrics, serverOpts...)

	return d, nil
}

func (d *daemon) subscribe(fn func(chain.Log)) {
	d.unsubs = append(d.unsubs, d.chain.Subscribe(fn))
}

func (d *daemon) startIndexer(ctx context.Context, cfg config.PostgresConfig) error {
	if cfg.DSN == "" {
		d.logger.Info("postgres.dsn not set, log indexer disabled")
		return nil
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := indexer.Open(openCtx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open indexer store: %w", err)
	}
	if err := store.Migrate(openCtx); err != nil {
		store.Close()
		return fmt.Errorf("migrate indexer store: %w", err)
	}
	d.store = store
	d.sink = indexer.NewSink(store, d.logger, d.metrics, cfg.BufferSize)
	d.sink.Start(ctx)
	d.subscribe(d.sink.Handle)
	d.logger.Info("log indexer enabled")
	return nil
}

func (d *daemon) startPublisher(ctx context.Context, cfg config.RedisConfig) error {
	if cfg.Addr == "" {
		d.logger.Info("redis.addr not set, stream publisher disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	d.redis = client
	d.pub = publisher.NewStreamPublisher(client, d.logger, d.metrics, cfg.BufferSize)
	d.pub.Start(ctx)
	d.subscribe(d.pub.Handle)
	d.logger.WithField("stream", publisher.GlobalStream).Info("stream publisher enabled")
	return nil
}

// close releases everything newDaemon acquired. Safe on a partially built daemon.
func (d *daemon) close() {
	if d.keeper != nil {
		d.keeper.Stop()
	}
	for _, unsub := range d.unsubs {
		unsub()
	}
	d.unsubs = nil
	if d.sink != nil {
		d.sink.Stop()
		written, dropped, failed := d.sink.Stats()
		d.logger.WithFields(logrus.Fields{
			"written": written,
			"dropped": dropped,
			"failed":  failed,
		}).Info("log indexer stopped")
		d.sink = nil
	}
	if d.pub != nil {
		d.pub.Stop()
		published, dropped, failed := d.pub.Stats()
		d.logger.WithFields(logrus.Fields{
			"published": published,
			"dropped":   dropped,
			"failed":    failed,
		}).Info("stream publisher stopped")
		d.pub = nil
	}
	if d.store != nil {
		d.store.Close()
		d.store = nil
	}
	if d.redis != nil {
		d.redis.Close()
		d.redis = nil
	}
}
