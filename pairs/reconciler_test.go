package pairs

import "testing"

func ocoPair() *OrderPair {
	return &OrderPair{
		ID:     1,
		Type:   TypeOCO,
		Status: PairActive,
		Leg1:   Leg{OrderID: "A1", Details: LegDetails{Status: LegOpen}},
		Leg2:   Leg{OrderID: "A2", Details: LegDetails{Status: LegOpen}},
	}
}

func oaoPair(leg2OrderID string) *OrderPair {
	return &OrderPair{
		ID:     2,
		Type:   TypeOAO,
		Status: PairActive,
		Leg1:   Leg{OrderID: "B1", Details: LegDetails{Status: LegOpen}},
		Leg2:   Leg{OrderID: leg2OrderID, Details: LegDetails{Symbol: "X", Quantity: 50}},
	}
}

func TestReconcileOCO(t *testing.T) {
	cases := []struct {
		name string
		s1   LegStatus
		s2   LegStatus
		want Transition
	}{
		{"两腿仍挂单", LegOpen, LegOpen, NoOp},
		{"leg1成交leg2已撤", LegComplete, LegCancelled, Transition{Complete: true}},
		{"leg1已撤leg2成交", LegCancelled, LegComplete, Transition{Complete: true}},
		{"leg1成交leg2还挂着", LegComplete, LegOpen, Transition{Action: ActionCancelLeg2, Complete: true}},
		{"leg2成交leg1还挂着", LegOpen, LegComplete, Transition{Action: ActionCancelLeg1, Complete: true}},
		{"双双成交的竞态", LegComplete, LegComplete, Transition{Complete: true}},
		{"双双被撤", LegCancelled, LegCancelled, Transition{Complete: true}},
		{"一拒一撤", LegRejected, LegCancelled, Transition{Complete: true}},
		{"一撤一拒", LegCancelled, LegRejected, Transition{Complete: true}},
		{"成交对拒绝", LegComplete, LegRejected, Transition{Complete: true}},
		{"外部撤了一腿另一腿仍挂", LegCancelled, LegOpen, NoOp},
		{"状态未知不决策", LegUnknown, LegComplete, NoOp},
		{"另一侧未知同样不决策", LegComplete, LegUnknown, NoOp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Reconcile(ocoPair(), tc.s1, tc.s2)
			if got != tc.want {
				t.Errorf("Reconcile(%s,%s) = %+v, want %+v", tc.s1, tc.s2, got, tc.want)
			}
		})
	}
}

func TestReconcileOAO(t *testing.T) {
	cases := []struct {
		name        string
		leg2OrderID string
		s1          LegStatus
		s2          LegStatus
		want        Transition
	}{
		{"leg1还挂着", WaitingForLeg1, LegOpen, LegUnknown, NoOp},
		{"leg1成交触发提交", WaitingForLeg1, LegComplete, LegUnknown, Transition{Action: ActionSubmitLeg2}},
		{"leg1被撤直接终结", WaitingForLeg1, LegCancelled, LegUnknown, Transition{Complete: true}},
		{"leg1被拒直接终结", WaitingForLeg1, LegRejected, LegUnknown, Transition{Complete: true}},
		{"leg2提交失败等人工", FailedOrderID, LegComplete, LegUnknown, NoOp},
		{"两腿都成交", "B2", LegComplete, LegComplete, Transition{Complete: true}},
		{"leg2成交后被撤", "B2", LegComplete, LegCancelled, Transition{Complete: true}},
		{"leg2还挂着", "B2", LegComplete, LegOpen, NoOp},
		{"leg1状态未知", WaitingForLeg1, LegUnknown, LegUnknown, NoOp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Reconcile(oaoPair(tc.leg2OrderID), tc.s1, tc.s2)
			if got != tc.want {
				t.Errorf("Reconcile = %+v, want %+v", got, tc.want)
			}
		})
	}
}

// 同一输入连续两次必须给出同一结论：纯函数，无内部计数器。
func TestReconcileIdempotent(t *testing.T) {
	p := ocoPair()
	first := Reconcile(p, LegComplete, LegOpen)
	second := Reconcile(p, LegComplete, LegOpen)
	if first != second {
		t.Errorf("reconcile not idempotent: %+v vs %+v", first, second)
	}
	if first.Action != ActionCancelLeg2 || !first.Complete {
		t.Errorf("unexpected transition %+v", first)
	}
}

func TestReconcileCompletedPairIsInert(t *testing.T) {
	p := ocoPair()
	p.Status = PairCompleted
	if got := Reconcile(p, LegComplete, LegOpen); got != NoOp {
		t.Errorf("completed pair must be no-op, got %+v", got)
	}
	if got := Reconcile(nil, LegComplete, LegOpen); got != NoOp {
		t.Errorf("nil pair must be no-op, got %+v", got)
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(ocoPair(), Transition{Action: ActionSubmitLeg2}); err == nil {
		t.Error("submit on OCO should be rejected")
	}
	if err := ValidateTransition(oaoPair("B2"), Transition{Action: ActionCancelLeg1}); err == nil {
		t.Error("cancel on OAO should be rejected")
	}
	if err := ValidateTransition(ocoPair(), Transition{Action: ActionCancelLeg2, Complete: true}); err != nil {
		t.Errorf("cancel on OCO should pass: %v", err)
	}
}
