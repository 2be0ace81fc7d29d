// Package metrics provides Prometheus metrics for the pair lifecycle engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SweepsTotal 扫描次数，label result: ok/skipped/coalesced/error
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairwatch_sweeps_total",
		Help: "生命周期扫描次数",
	}, []string{"result"})

	// SweepDuration 一次完整扫描耗时
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pairwatch_sweep_duration_seconds",
		Help:    "扫描耗时",
		Buckets: prometheus.DefBuckets,
	})

	// ActivePairs 当前 ACTIVE 配对数量
	ActivePairs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pairwatch_active_pairs",
		Help: "存储中 ACTIVE 配对数量",
	})

	// SideEffectsTotal 副作用执行次数，label action: cancel/submit
	SideEffectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairwatch_side_effects_total",
		Help: "对券商执行的副作用次数",
	}, []string{"action"})

	// PairFailuresTotal 单配对处理失败次数，label stage: fetch/act/persist
	PairFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairwatch_pair_failures_total",
		Help: "单配对处理失败次数",
	}, []string{"stage"})

	// FetchRetriesTotal 状态查询重试次数
	FetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairwatch_fetch_retries_total",
		Help: "订单状态查询重试次数",
	})

	// PairsCompletedTotal 终结的配对数量，label type: OCO/OAO
	PairsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairwatch_pairs_completed_total",
		Help: "转入 COMPLETED 的配对数量",
	}, []string{"type"})

	// BrokerRequestsTotal 券商 REST 请求次数，label action: order_status/place_order/cancel_order
	BrokerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairwatch_broker_requests_total",
		Help: "券商REST请求总数",
	}, []string{"action"})

	// BrokerRequestErrors 券商 REST 请求失败次数
	BrokerRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairwatch_broker_request_errors_total",
		Help: "券商REST错误总数",
	}, []string{"action"})

	// BrokerRequestDuration 券商 REST 请求延迟
	BrokerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pairwatch_broker_request_duration_seconds",
		Help:    "券商REST请求延迟（秒）",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// StreamConnectsTotal 订单推送流连接次数
	StreamConnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairwatch_stream_connects_total",
		Help: "订单推送流连接次数",
	})

	// StreamDisconnectsTotal 订单推送流断开次数
	StreamDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairwatch_stream_disconnects_total",
		Help: "订单推送流断开次数",
	})
)

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
