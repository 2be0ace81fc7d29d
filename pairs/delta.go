package pairs

// Delta 描述一次扫描后需要写回存储的字段；nil 字段不写。
type Delta struct {
	Leg1Status  *LegStatus
	Leg2Status  *LegStatus
	Leg1OrderID *string
	Leg2OrderID *string
	Leg1Error   *string
	Leg2Error   *string
	PairStatus  *PairStatus
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return d.Leg1Status == nil && d.Leg2Status == nil &&
		d.Leg1OrderID == nil && d.Leg2OrderID == nil &&
		d.Leg1Error == nil && d.Leg2Error == nil &&
		d.PairStatus == nil
}

// Apply 把增量套用到内存中的配对副本上。
func (d Delta) Apply(p *OrderPair) {
	if d.Leg1Status != nil {
		p.Leg1.Details.Status = *d.Leg1Status
	}
	if d.Leg2Status != nil {
		p.Leg2.Details.Status = *d.Leg2Status
	}
	if d.Leg1OrderID != nil {
		p.Leg1.OrderID = *d.Leg1OrderID
	}
	if d.Leg2OrderID != nil {
		p.Leg2.OrderID = *d.Leg2OrderID
	}
	if d.Leg1Error != nil {
		p.Leg1.Details.Error = *d.Leg1Error
	}
	if d.Leg2Error != nil {
		p.Leg2.Details.Error = *d.Leg2Error
	}
	if d.PairStatus != nil {
		p.Status = *d.PairStatus
	}
}

// 指针构造，供 Delta 字段使用
func NewLegStatus(s LegStatus) *LegStatus    { return &s }
func NewPairStatus(s PairStatus) *PairStatus { return &s }
func NewString(s string) *string             { return &s }
