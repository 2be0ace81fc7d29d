package engine

import "time"

// 配对处理失败发生的阶段
const (
	StageLoad    = "load"    // 读取 ACTIVE 配对失败（整轮落空）
	StageFetch   = "fetch"   // 券商状态查询失败
	StageAct     = "act"     // 撤单/下单副作用失败
	StagePersist = "persist" // 写回存储失败
)

// PairFailure 单个配对在本轮扫描中的失败记录。
type PairFailure struct {
	PairID  int64  `json:"pair_id"`
	OrderID string `json:"order_id,omitempty"`
	Stage   string `json:"stage"`
	Err     error  `json:"-"`
}

// Error 返回失败的文字描述，供 JSON 输出使用。
func (f PairFailure) Error() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// SweepReport 一次扫描的汇总结果。失败是信息性的：下一轮扫描会对
// 仍然 ACTIVE 的配对自然重试。
type SweepReport struct {
	Started   time.Time     `json:"started"`
	Finished  time.Time     `json:"finished"`
	Skipped   bool          `json:"skipped"`   // 轮询窗口关闭，本轮零 I/O
	Coalesced bool          `json:"coalesced"` // 手动刷新合并进了在途扫描
	Pairs     int           `json:"pairs"`
	Completed int           `json:"completed"`
	Cancels   int           `json:"cancels"`
	Submits   int           `json:"submits"`
	Failures  []PairFailure `json:"failures,omitempty"`
}
