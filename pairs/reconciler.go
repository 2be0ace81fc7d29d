package pairs

import "fmt"

// Action 对账决策产生的副作用类型
type Action int

const (
	// ActionNone 无需任何副作用
	ActionNone Action = iota
	// ActionCancelLeg1 撤销 leg1
	ActionCancelLeg1
	// ActionCancelLeg2 撤销 leg2
	ActionCancelLeg2
	// ActionSubmitLeg2 提交 leg2（仅 OAO）
	ActionSubmitLeg2
)

// String 返回动作名称
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionCancelLeg1:
		return "CANCEL_LEG1"
	case ActionCancelLeg2:
		return "CANCEL_LEG2"
	case ActionSubmitLeg2:
		return "SUBMIT_LEG2"
	default:
		return "UNKNOWN"
	}
}

// Transition 一次对账的结论：最多一个副作用，以及配对是否就此终结。
type Transition struct {
	Action   Action
	Complete bool
}

// NoOp 无变化
var NoOp = Transition{}

// Reconcile 纯决策函数：给定配对类型和两腿的最新已知状态，决定下一步。
// 不触网、不持有内部状态；相同输入永远产生相同输出。
func Reconcile(p *OrderPair, s1, s2 LegStatus) Transition {
	if p == nil || p.Status == PairCompleted {
		return NoOp
	}
	switch p.Type {
	case TypeOCO:
		return reconcileOCO(s1, s2)
	case TypeOAO:
		return reconcileOAO(p, s1, s2)
	default:
		return NoOp
	}
}

// reconcileOCO 其一成交则撤另一腿；两腿都已离场则直接终结。
func reconcileOCO(s1, s2 LegStatus) Transition {
	// 状态未知时不做任何决策，等下一轮拿到可识别状态再说
	if s1 == LegUnknown || s2 == LegUnknown {
		return NoOp
	}
	// 双腿均为终态（COMPLETE/CANCELLED/REJECTED 任意组合）：终结，不再撤单。
	// 双双成交的竞态也落在这里：不尝试回撤超额成交。
	if IsTerminal(s1) && IsTerminal(s2) {
		return Transition{Complete: true}
	}
	if s1 == LegComplete && s2 == LegOpen {
		return Transition{Action: ActionCancelLeg2, Complete: true}
	}
	if s2 == LegComplete && s1 == LegOpen {
		return Transition{Action: ActionCancelLeg1, Complete: true}
	}
	// 其余组合（OPEN/OPEN，或一腿被外部撤销而另一腿仍挂着）：继续等待
	return NoOp
}

// reconcileOAO leg2 依赖 leg1：leg1 成交才提交，leg1 离场则永不提交。
func reconcileOAO(p *OrderPair, s1, s2 LegStatus) Transition {
	switch {
	case s1 == LegCancelled || s1 == LegRejected:
		// leg1 已离场且未成交，leg2 绝不提交
		return Transition{Complete: true}
	case s1 == LegComplete:
		switch p.Leg2.OrderID {
		case WaitingForLeg1:
			return Transition{Action: ActionSubmitLeg2}
		case FailedOrderID:
			// 提交失败留给人工处理，不自动重试
			return NoOp
		default:
			if IsTerminal(s2) {
				return Transition{Complete: true}
			}
			return NoOp
		}
	default:
		// leg1 仍 OPEN 或状态未知
		return NoOp
	}
}

// ValidateTransition 校验动作与配对类型是否匹配；驱动层在执行副作用前调用。
func ValidateTransition(p *OrderPair, tr Transition) error {
	if tr.Action == ActionSubmitLeg2 && p.Type != TypeOAO {
		return fmt.Errorf("submit leg2 is only valid for OAO pairs (pair %d is %s)", p.ID, p.Type)
	}
	if (tr.Action == ActionCancelLeg1 || tr.Action == ActionCancelLeg2) && p.Type != TypeOCO {
		return fmt.Errorf("cancel action is only valid for OCO pairs (pair %d is %s)", p.ID, p.Type)
	}
	return nil
}
