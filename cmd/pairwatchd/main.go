package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"pair-engine-go/config"
	"pair-engine-go/engine"
	"pair-engine-go/gateway"
	"pair-engine-go/infrastructure/alert"
	"pair-engine-go/infrastructure/logger"
	"pair-engine-go/metrics"
	"pair-engine-go/pairs"
	"pair-engine-go/schedule"
	"pair-engine-go/store"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	metricsAddr := flag.String("metricsAddr", ":9100", "Prometheus metrics 监听地址，留空则关闭")
	adminAddr := flag.String("adminAddr", ":8087", "管理接口监听地址（refresh/pairs/healthz）")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正撤单/下单")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		lg.Fatal("打开存储失败", zap.Error(err))
	}
	defer st.Close()

	restClient := &gateway.BrokerRESTClient{
		BaseURL:    cfg.Broker.BaseURL,
		APIKey:     cfg.Broker.APIKey,
		APISecret:  cfg.Broker.APISecret,
		HTTPClient: gateway.NewDefaultHTTPClient(),
		Limiter:    gateway.NewTokenBucketLimiter(cfg.Broker.RateLimit, cfg.Broker.RateBurst),
	}
	fetcher := gateway.NewStatusFetcher(restClient, cfg.Engine.FetchAttempts,
		time.Duration(cfg.Engine.FetchBackoffMs)*time.Millisecond)

	var mutator engine.Mutator = restClient
	if *dryRun {
		mutator = &dryRunMutator{logger: lg}
	}

	session := schedule.NewStaticSession(true)
	guard, err := schedule.NewGuard(schedule.GuardConfig{
		Timezone:    cfg.Schedule.Timezone,
		MarketOpen:  cfg.Schedule.MarketOpen,
		MarketClose: cfg.Schedule.MarketClose,
		Weekdays:    cfg.Schedule.Weekdays,
	}, session, nil)
	if err != nil {
		lg.Fatal("初始化调度护栏失败", zap.Error(err))
	}

	alerts := alert.NewManager([]alert.Channel{
		alert.NewLogChannel("log", lg),
	}, 5*time.Minute)

	driver, err := engine.New(engine.Config{
		Interval:        time.Duration(cfg.Engine.PollIntervalSec) * time.Second,
		PairConcurrency: cfg.Engine.PairConcurrency,
	}, engine.Deps{
		Store:   st,
		Fetcher: fetcher,
		Broker:  mutator,
		Guard:   guard,
		Logger:  lg,
		Alerts:  alerts,
	})
	if err != nil {
		lg.Fatal("初始化驱动器失败", zap.Error(err))
	}

	if *metricsAddr != "" {
		metrics.StartMetricsServer(*metricsAddr)
	}

	// 券商订单推送：有更新就提示驱动器尽快扫描
	if cfg.Broker.WSEndpoint != "" {
		stream := gateway.NewOrderStream(cfg.Broker.WSEndpoint, cfg.Broker.APIKey)
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				lg.Warn("订单推送流退出", zap.Error(err))
			}
		}()
		go func() {
			for range stream.Updates() {
				driver.Nudge()
			}
		}()
	}

	// 配置热更新：目前只动态接受轮询周期
	go func() {
		w := config.Watcher{Path: *cfgPath}
		err := w.Start(ctx, func(newCfg config.AppConfig) {
			driver.SetInterval(time.Duration(newCfg.Engine.PollIntervalSec) * time.Second)
			lg.Info("配置已重载", zap.Int("pollIntervalSec", newCfg.Engine.PollIntervalSec))
		})
		if err != nil && ctx.Err() == nil {
			lg.Warn("配置监听退出", zap.Error(err))
		}
	}()

	if err := driver.Start(ctx); err != nil {
		lg.Fatal("启动驱动器失败", zap.Error(err))
	}

	go serveAdmin(*adminAddr, driver, st, lg)

	// systemd 就绪通知与看门狗
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if wd, err := daemon.SdWatchdogEnabled(false); err == nil && wd > 0 {
		go func() {
			t := time.NewTicker(wd / 2)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}()
	}

	lg.Info("pairwatchd 已启动",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store.Path),
		zap.Bool("dry_run", *dryRun))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err := driver.Stop(); err != nil {
		lg.Error("停止驱动器失败", zap.Error(err))
	}
}

// serveAdmin 提供手动刷新与只读查询接口。
func serveAdmin(addr string, driver *engine.Driver, st store.PairStore, lg *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rep, err := driver.Refresh(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, rep)
	})
	mux.HandleFunc("/pairs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list, err := st.ListPairs(r.Context(), pairs.PairActive)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, list)
		case http.MethodPost:
			var p pairs.OrderPair
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := validateNewPair(&p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			id, err := st.CreatePair(r.Context(), &p)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			driver.Nudge()
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, map[string]int64{"id": id})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		lg.Error("管理接口退出", zap.Error(err))
		os.Exit(1)
	}
}

// validateNewPair 收紧入库前的配对形状：OCO 两腿都要真实订单号，
// OAO 的 leg2 初始为等待哨兵。
func validateNewPair(p *pairs.OrderPair) error {
	switch p.Type {
	case pairs.TypeOCO:
		if pairs.IsSentinel(p.Leg1.OrderID) || pairs.IsSentinel(p.Leg2.OrderID) {
			return fmt.Errorf("OCO pair requires real order ids for both legs")
		}
	case pairs.TypeOAO:
		if pairs.IsSentinel(p.Leg1.OrderID) {
			return fmt.Errorf("OAO pair requires a real leg1 order id")
		}
		if p.Leg2.OrderID == "" {
			p.Leg2.OrderID = pairs.WaitingForLeg1
		}
		if p.Leg2.OrderID != pairs.WaitingForLeg1 {
			return fmt.Errorf("OAO leg2 must start as %s", pairs.WaitingForLeg1)
		}
	default:
		return fmt.Errorf("unknown pair type %q", p.Type)
	}
	if p.Leg1.Details.Status == "" {
		p.Leg1.Details.Status = pairs.LegOpen
	}
	if p.Type == pairs.TypeOCO && p.Leg2.Details.Status == "" {
		p.Leg2.Details.Status = pairs.LegOpen
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// dryRunMutator 替身：撤单/下单只写日志，返回假订单号。
type dryRunMutator struct {
	logger *logger.Logger
}

func (m *dryRunMutator) PlaceOrder(_ context.Context, params gateway.OrderParams) (string, error) {
	m.logger.Info("dryRun place order",
		zap.String("symbol", params.Symbol),
		zap.Int64("quantity", params.Quantity))
	return "dry-" + time.Now().UTC().Format("20060102150405.000000000"), nil
}

func (m *dryRunMutator) CancelOrder(_ context.Context, orderID string) error {
	m.logger.Info("dryRun cancel order", zap.String("order_id", orderID))
	return nil
}
