// Package engine drives the order-pair lifecycle: it periodically reconciles
// persisted pairs against broker order state and executes the required side
// effect exactly once per detected trigger.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pair-engine-go/gateway"
	"pair-engine-go/infrastructure/alert"
	"pair-engine-go/infrastructure/logger"
	"pair-engine-go/metrics"
	"pair-engine-go/pairs"
	"pair-engine-go/store"
)

// Guard 轮询窗口判定（开市 + 会话有效）。
type Guard interface {
	PollingWindowOpen() bool
}

// Fetcher 单腿状态查询抽象；实现见 gateway.StatusFetcher。
type Fetcher interface {
	Fetch(ctx context.Context, orderID string) (pairs.LegStatus, error)
}

// Mutator 券商副作用子集：撤单与下单。查询走 Fetcher。
type Mutator interface {
	PlaceOrder(ctx context.Context, params gateway.OrderParams) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Config 驱动器配置
type Config struct {
	Interval        time.Duration // 轮询周期，默认 15s
	PairConcurrency int           // 单次扫描内并行处理的配对数，默认 4
}

// Deps 驱动器依赖组件
type Deps struct {
	Store   store.PairStore
	Fetcher Fetcher
	Broker  Mutator
	Guard   Guard
	Logger  *logger.Logger
	Alerts  *alert.Manager // 可为 nil
}

// Driver 订单对生命周期驱动器。单实例自带定时器与防重入护栏，
// 可多实例并存（各自独立的时钟与状态），便于测试。
type Driver struct {
	cfg  Config
	deps Deps

	interval intervalValue

	// 防重入护栏：同一时刻至多一次扫描在途
	mu        sync.Mutex
	sweeping  bool
	sweepDone chan struct{}
	lastRep   SweepReport

	// 运行控制
	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	nudge    chan struct{}
}

// New 创建驱动器；缺省值就地补齐。
func New(cfg Config, deps Deps) (*Driver, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if deps.Guard == nil {
		return nil, fmt.Errorf("guard is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.PairConcurrency <= 0 {
		cfg.PairConcurrency = 4
	}
	d := &Driver{
		cfg:   cfg,
		deps:  deps,
		nudge: make(chan struct{}, 1),
	}
	d.interval.Store(cfg.Interval)
	return d, nil
}

// SetInterval 运行时调整轮询周期（配置热更新）。
func (d *Driver) SetInterval(iv time.Duration) {
	if iv > 0 {
		d.interval.Store(iv)
	}
}

// Nudge 提示驱动器尽快扫描（订单推送到达时调用）；非阻塞。
func (d *Driver) Nudge() {
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

// Start 启动定时扫描循环。
func (d *Driver) Start(ctx context.Context) error {
	d.runMu.Lock()
	if d.running {
		d.runMu.Unlock()
		return fmt.Errorf("driver already started")
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.doneChan = make(chan struct{})
	d.runMu.Unlock()

	d.deps.Logger.Info("lifecycle driver starting",
		zap.Duration("interval", d.interval.Load()),
		zap.Int("pair_concurrency", d.cfg.PairConcurrency))

	go d.loop(ctx)
	return nil
}

// Stop 停止循环并等待在途扫描结束。
func (d *Driver) Stop() error {
	d.runMu.Lock()
	if !d.running {
		d.runMu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopChan)
	done := d.doneChan
	d.runMu.Unlock()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		d.deps.Logger.Warn("timeout waiting for driver to stop")
	}
	d.deps.Logger.Info("lifecycle driver stopped")
	return nil
}

// loop 定时器主循环。tick 到来时若上一轮仍在途则跳过本轮。
func (d *Driver) loop(ctx context.Context) {
	defer close(d.doneChan)

	timer := time.NewTimer(d.interval.Load())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case <-timer.C:
			d.timerSweep(ctx)
			timer.Reset(d.interval.Load())
		case <-d.nudge:
			d.timerSweep(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.interval.Load())
		}
	}
}

// timerSweep 定时/推送路径：在途则跳过，不排队。
func (d *Driver) timerSweep(ctx context.Context) {
	d.mu.Lock()
	if d.sweeping {
		d.mu.Unlock()
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		return
	}
	d.sweeping = true
	d.sweepDone = make(chan struct{})
	d.mu.Unlock()

	rep := d.sweep(ctx)
	d.finishSweep(rep)
}

// Refresh 手动刷新路径：与定时扫描共用护栏；若已有扫描在途则
// 等它结束并返回其结果，不会并发跑第二轮。
func (d *Driver) Refresh(ctx context.Context) (SweepReport, error) {
	d.mu.Lock()
	if d.sweeping {
		done := d.sweepDone
		d.mu.Unlock()
		select {
		case <-done:
			d.mu.Lock()
			rep := d.lastRep
			d.mu.Unlock()
			rep.Coalesced = true
			metrics.SweepsTotal.WithLabelValues("coalesced").Inc()
			return rep, nil
		case <-ctx.Done():
			return SweepReport{}, ctx.Err()
		}
	}
	d.sweeping = true
	d.sweepDone = make(chan struct{})
	d.mu.Unlock()

	rep := d.sweep(ctx)
	d.finishSweep(rep)
	return rep, nil
}

func (d *Driver) finishSweep(rep SweepReport) {
	d.mu.Lock()
	d.sweeping = false
	d.lastRep = rep
	close(d.sweepDone)
	d.mu.Unlock()

	switch {
	case rep.Skipped:
		metrics.SweepsTotal.WithLabelValues("guard_closed").Inc()
	case len(rep.Failures) > 0:
		metrics.SweepsTotal.WithLabelValues("error").Inc()
	default:
		metrics.SweepsTotal.WithLabelValues("ok").Inc()
	}
	d.report(rep)
}

// sweep 执行一次完整扫描：护栏 → 读存储 → 逐对 fetch/decide/act/persist。
// 单配对失败只影响自己，汇总后统一上报。
func (d *Driver) sweep(ctx context.Context) SweepReport {
	rep := SweepReport{Started: time.Now().UTC()}

	if !d.deps.Guard.PollingWindowOpen() {
		rep.Skipped = true
		rep.Finished = time.Now().UTC()
		return rep
	}

	active, err := d.deps.Store.ListPairs(ctx, pairs.PairActive)
	if err != nil {
		rep.Failures = append(rep.Failures, PairFailure{Stage: StageLoad, Err: err})
		rep.Finished = time.Now().UTC()
		return rep
	}
	rep.Pairs = len(active)
	metrics.ActivePairs.Set(float64(len(active)))

	// 配对之间相互独立，可并行；单配对内部 fetch→decide→act→persist 严格串行
	sem := make(chan struct{}, d.cfg.PairConcurrency)
	var wg sync.WaitGroup
	results := make([]pairResult, len(active))
	for i := range active {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = d.reconcilePair(ctx, &active[i])
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r.failure != nil {
			rep.Failures = append(rep.Failures, *r.failure)
		}
		if r.completed {
			rep.Completed++
		}
		rep.Cancels += r.cancels
		rep.Submits += r.submits
	}
	rep.Finished = time.Now().UTC()
	metrics.SweepDuration.Observe(rep.Finished.Sub(rep.Started).Seconds())
	return rep
}

type pairResult struct {
	completed bool
	cancels   int
	submits   int
	failure   *PairFailure
}

// reconcilePair 处理单个配对；返回结果供扫描汇总。
func (d *Driver) reconcilePair(ctx context.Context, p *pairs.OrderPair) pairResult {
	var delta pairs.Delta

	// 仅补查仍为 OPEN 且持有真实订单号的腿；终态粘滞，不回退
	s1, err := d.legStatus(ctx, p, &p.Leg1, &delta, true)
	if err != nil {
		metrics.PairFailuresTotal.WithLabelValues(StageFetch).Inc()
		return pairResult{failure: &PairFailure{PairID: p.ID, OrderID: p.Leg1.OrderID, Stage: StageFetch, Err: err}}
	}
	s2, err := d.legStatus(ctx, p, &p.Leg2, &delta, false)
	if err != nil {
		metrics.PairFailuresTotal.WithLabelValues(StageFetch).Inc()
		return pairResult{failure: &PairFailure{PairID: p.ID, OrderID: p.Leg2.OrderID, Stage: StageFetch, Err: err}}
	}

	tr := pairs.Reconcile(p, s1, s2)
	if err := pairs.ValidateTransition(p, tr); err != nil {
		return pairResult{failure: &PairFailure{PairID: p.ID, Stage: StageAct, Err: err}}
	}

	var res pairResult
	switch tr.Action {
	case pairs.ActionCancelLeg1:
		if err := d.cancelLeg(ctx, p, &p.Leg1); err != nil {
			metrics.PairFailuresTotal.WithLabelValues(StageAct).Inc()
			return pairResult{failure: &PairFailure{PairID: p.ID, OrderID: p.Leg1.OrderID, Stage: StageAct, Err: err}}
		}
		delta.Leg1Status = pairs.NewLegStatus(pairs.LegCancelled)
		res.cancels++
	case pairs.ActionCancelLeg2:
		if err := d.cancelLeg(ctx, p, &p.Leg2); err != nil {
			metrics.PairFailuresTotal.WithLabelValues(StageAct).Inc()
			return pairResult{failure: &PairFailure{PairID: p.ID, OrderID: p.Leg2.OrderID, Stage: StageAct, Err: err}}
		}
		delta.Leg2Status = pairs.NewLegStatus(pairs.LegCancelled)
		res.cancels++
	case pairs.ActionSubmitLeg2:
		d.submitLeg2(ctx, p, &delta, &res)
	}

	if tr.Complete {
		delta.PairStatus = pairs.NewPairStatus(pairs.PairCompleted)
		res.completed = true
		metrics.PairsCompletedTotal.WithLabelValues(string(p.Type)).Inc()
		d.deps.Logger.LogPair("pair_completed", p.ID, map[string]interface{}{
			"type": string(p.Type),
		})
	}

	if delta.Empty() {
		return res
	}
	if err := d.deps.Store.UpdatePair(ctx, p.ID, delta); err != nil {
		// 写回失败：丢弃本轮决策，下一轮重新从券商真相推导
		metrics.PairFailuresTotal.WithLabelValues(StagePersist).Inc()
		return pairResult{failure: &PairFailure{PairID: p.ID, Stage: StagePersist, Err: err}}
	}
	return res
}

// legStatus 返回该腿本轮参与决策的状态，必要时回查券商并记录增量。
func (d *Driver) legStatus(ctx context.Context, p *pairs.OrderPair, leg *pairs.Leg, delta *pairs.Delta, isLeg1 bool) (pairs.LegStatus, error) {
	if !leg.NeedsFetch() {
		return leg.Details.Status, nil
	}
	fetched, err := d.deps.Fetcher.Fetch(ctx, leg.OrderID)
	if err != nil {
		return pairs.LegUnknown, err
	}
	if fetched == pairs.LegUnknown {
		d.deps.Logger.Warn("unrecognized broker status, treating as no-op",
			zap.Int64("pair_id", p.ID),
			zap.String("order_id", leg.OrderID))
	}
	if fetched != leg.Details.Status && fetched != pairs.LegUnknown {
		if isLeg1 {
			delta.Leg1Status = pairs.NewLegStatus(fetched)
		} else {
			delta.Leg2Status = pairs.NewLegStatus(fetched)
		}
	}
	return fetched, nil
}

// cancelLeg 对券商撤单；每个触发点至多尝试一次，失败留给下一轮重判。
func (d *Driver) cancelLeg(ctx context.Context, p *pairs.OrderPair, leg *pairs.Leg) error {
	d.deps.Logger.LogOrder("cancel_order", leg.OrderID, map[string]interface{}{
		"pair_id": p.ID,
		"type":    string(p.Type),
	})
	if err := d.deps.Broker.CancelOrder(ctx, leg.OrderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", leg.OrderID, err)
	}
	metrics.SideEffectsTotal.WithLabelValues("cancel").Inc()
	return nil
}

// submitLeg2 提交 OAO 的 leg2。提交失败记在腿上（FAILED + 错误信息），
// 配对保持 ACTIVE 等待人工处理，不自动重试。
func (d *Driver) submitLeg2(ctx context.Context, p *pairs.OrderPair, delta *pairs.Delta, res *pairResult) {
	det := p.Leg2.Details
	params := gateway.OrderParams{
		Symbol:          det.Symbol,
		Exchange:        det.Exchange,
		TransactionType: det.TransactionType,
		Quantity:        det.Quantity,
		OrderType:       det.OrderType,
		Product:         det.Product,
		Validity:        det.Validity,
		Price:           det.Price,
	}
	d.deps.Logger.LogOrder("submit_leg2", pairs.WaitingForLeg1, map[string]interface{}{
		"pair_id": p.ID,
		"symbol":  det.Symbol,
	})
	orderID, err := d.deps.Broker.PlaceOrder(ctx, params)
	if err != nil {
		delta.Leg2OrderID = pairs.NewString(pairs.FailedOrderID)
		delta.Leg2Error = pairs.NewString(err.Error())
		metrics.PairFailuresTotal.WithLabelValues(StageAct).Inc()
		res.failure = &PairFailure{PairID: p.ID, OrderID: pairs.FailedOrderID, Stage: StageAct, Err: err}
		d.deps.Logger.LogError(err, map[string]interface{}{
			"pair_id": p.ID,
			"event":   "leg2_submit_failed",
		})
		return
	}
	delta.Leg2OrderID = pairs.NewString(orderID)
	delta.Leg2Status = pairs.NewLegStatus(pairs.LegOpen)
	metrics.SideEffectsTotal.WithLabelValues("submit").Inc()
	res.submits++
	d.deps.Logger.LogOrder("leg2_submitted", orderID, map[string]interface{}{
		"pair_id": p.ID,
	})
}

// report 扫描结束后的日志/告警汇总。
func (d *Driver) report(rep SweepReport) {
	if rep.Skipped {
		d.deps.Logger.Debug("sweep skipped, polling window closed")
		return
	}
	d.deps.Logger.LogSweep(map[string]interface{}{
		"pairs":     rep.Pairs,
		"completed": rep.Completed,
		"cancels":   rep.Cancels,
		"submits":   rep.Submits,
		"failures":  len(rep.Failures),
		"elapsed":   rep.Finished.Sub(rep.Started).String(),
	})
	if d.deps.Alerts == nil {
		return
	}
	for _, f := range rep.Failures {
		_ = d.deps.Alerts.SendWarning("pair sweep failure", map[string]interface{}{
			"pair_id":  f.PairID,
			"order_id": f.OrderID,
			"stage":    f.Stage,
			"error":    f.Err.Error(),
		})
	}
}

// intervalValue time.Duration 的原子封装，供热更新使用
type intervalValue struct {
	ns atomic.Int64
}

func (a *intervalValue) Store(v time.Duration) { a.ns.Store(int64(v)) }
func (a *intervalValue) Load() time.Duration   { return time.Duration(a.ns.Load()) }
