package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"lossback/internal/cache"
	"lossback/internal/engine"
	"lossback/internal/store/gormdb"
	"lossback/pkg/config"
	"lossback/pkg/helius"
	solanaUtils "lossback/pkg/solana"
	"lossback/pkg/treasury"
	"lossback/pkg/utils"
)

const (
	payoutRequestQueue = "payout_attempt_request"

	refreshSpec = "0 */5 * * * *"  // holder refresh every 5 minutes
	tickSpec    = "*/30 * * * * *" // payout due check every 30 seconds
)

type attemptRequest struct {
	Reason string `json:"reason"`
}

func main() {
	// Initialize logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	// Initialize database
	config.InitDB()
	config.ExecuteMigrations()

	// Initialize RabbitMQ
	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()

	publisher, err := config.NewPublisher()
	if err != nil {
		logrus.Fatal("Failed to create publisher: ", err)
	}
	defer publisher.Close()

	cfg := loadEngineConfig()

	// Pick the healthiest RPC endpoint from the configured list
	rpcURLs := strings.Split(os.Getenv("RPC_URLS"), ",")
	rpcURL := solanaUtils.PickHealthyRPC(context.Background(), rpcURLs, 2*time.Second)
	if rpcURL == "" {
		logrus.Fatal("RPC_URLS is not configured")
	}
	logrus.Infof("Using RPC endpoint: %s", rpcURL)
	rpcClient := rpc.New(rpcURL)

	prices := utils.NewJupiterPriceClient(map[string]int{
		cfg.TokenMint:  envInt("TOKEN_DECIMALS", 9),
		cfg.NativeMint: 9,
	})

	heliusClient := helius.NewClient(os.Getenv("HELIUS_API_KEY"))
	indexer := helius.NewIndexer(heliusClient, prices, cfg.NativeMint, envInt("TOKEN_DECIMALS", 9))

	holderStore := gormdb.NewHolderStore(config.DB)
	holderCache := cache.New(cfg.TokenMint, envInt("REFRESH_CONCURRENCY", 4), indexer, holderStore)
	if err := holderCache.Load(context.Background()); err != nil {
		logrus.Warnf("Holder cache warm start failed: %v", err)
	}

	transferer := treasury.NewClient(os.Getenv("TREASURY_URL"), os.Getenv("TREASURY_API_KEY"))

	orch, err := engine.New(engine.Options{
		Config:                cfg,
		TimerStore:            gormdb.NewTimerStore(config.DB),
		PayoutStore:           gormdb.NewPayoutStore(config.DB),
		HolderStore:           holderStore,
		DisqualificationStore: gormdb.NewDisqualificationStore(config.DB),
		Holders:               holderCache,
		Prices:                prices,
		Balances:              solanaUtils.NewRPCBalanceSource(rpcClient),
		Transfer:              transferer,
		Notifier:              publisher,
	})
	if err != nil {
		logrus.Fatal("Failed to create orchestrator: ", err)
	}
	if err := orch.Init(context.Background()); err != nil {
		logrus.Fatal("Failed to init cycle timer state: ", err)
	}

	// Initial holder refresh so the first cycle ranks fresh data
	if err := holderCache.Refresh(context.Background()); err != nil {
		logrus.Errorf("Initial holder refresh failed: %v", err)
	}

	c := cron.New(cron.WithSeconds())

	_, err = c.AddFunc(refreshSpec, func() {
		if err := holderCache.Refresh(context.Background()); err != nil {
			logrus.Errorf("Holder refresh failed: %v", err)
		}
	})
	if err != nil {
		logrus.Fatalf("Failed to schedule holder refresh: %v", err)
	}

	_, err = c.AddFunc(tickSpec, func() {
		runAttempt(orch, "schedule")
	})
	if err != nil {
		logrus.Fatalf("Failed to schedule payout tick: %v", err)
	}

	c.Start()
	logrus.Info("Payout worker started, waiting for cycle ticks and messages...")

	// Manual attempt requests arrive over the command queue
	msgConsumer, err := config.NewConsumer(payoutRequestQueue)
	if err != nil {
		logrus.Fatal("Failed to create consumer: ", err)
	}
	defer msgConsumer.Close()

	err = msgConsumer.Consume(func(msg []byte) error {
		var req attemptRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			logrus.Errorf("Failed to unmarshal attempt request: %v", err)
			return err
		}
		logrus.Infof("Received payout attempt request: %+v", req)
		runAttempt(orch, "message")
		return nil
	})
	if err != nil {
		logrus.Fatal("Failed to start consumer: ", err)
	}
}

func runAttempt(orch *engine.Orchestrator, trigger string) {
	res := orch.AttemptPayoutCycle(context.Background())
	fields := logrus.Fields{
		"trigger": trigger,
		"status":  res.Status,
		"cycle":   res.Cycle,
	}
	if res.Reason != "" {
		fields["reason"] = res.Reason
	}
	switch res.Status {
	case engine.CycleSuccess:
		logrus.WithFields(fields).Info("Payout cycle executed")
	case engine.CycleFailed:
		logrus.WithFields(fields).Error("Payout cycle failed")
	default:
		logrus.WithFields(fields).Debug("Payout cycle not executed")
	}
}

func loadEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.TokenMint = os.Getenv("TOKEN_MINT")
	cfg.NativeMint = envStr("NATIVE_MINT", "So11111111111111111111111111111111111111112")
	cfg.SourceWallet = os.Getenv("SOURCE_WALLET")
	cfg.FeeWallet = os.Getenv("FEE_WALLET")
	cfg.Interval = envDuration("PAYOUT_INTERVAL", cfg.Interval)
	cfg.LockStaleAfter = 2 * cfg.Interval
	cfg.MinHolding = envFloat("MIN_HOLDING", cfg.MinHolding)
	cfg.MinHoldHours = envFloat("MIN_HOLD_HOURS", cfg.MinHoldHours)
	cfg.MinLossPct = envFloat("MIN_LOSS_PCT", cfg.MinLossPct)
	cfg.MinPoolNative = envFloat("MIN_POOL_NATIVE", cfg.MinPoolNative)
	cfg.MinTransferNative = envFloat("MIN_TRANSFER_NATIVE", cfg.MinTransferNative)

	if cfg.TokenMint == "" || cfg.SourceWallet == "" || cfg.FeeWallet == "" {
		logrus.Fatal("TOKEN_MINT, SOURCE_WALLET and FEE_WALLET must be configured")
	}
	return cfg
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
