package synthesis

// flagKind splits rules into the two flag lists on the assessment.
type flagKind int

const (
	redFlag flagKind = iota
	greenFlag
)

// FlagRule is a data-driven finding. Rules are evaluated in declaration
// order so flag lists come out stable.
type FlagRule struct {
	ID   string
	Kind flagKind
	Text string
	When func(Signals) bool
}

// flagRules is the fixed rulebook. Adding a finding means adding a row,
// not touching the engine.
var flagRules = []FlagRule{
	{
		ID:   "baseline_unaudited",
		Kind: redFlag,
		Text: "baseline figure is not independently audited",
		When: func(s Signals) bool { return s.BaselineUnaudited },
	},
	{
		ID:   "baseline_mismatch",
		Kind: redFlag,
		Text: "declared baseline disagrees with documentary evidence",
		When: func(s Signals) bool { return s.BaselineMismatch },
	},
	{
		ID:   "insufficient_peer_sample",
		Kind: redFlag,
		Text: "peer comparison relies on a thin regional sample",
		When: func(s Signals) bool { return s.InsufficientPeerSample },
	},
	{
		ID:   "below_pathway",
		Kind: redFlag,
		Text: "target falls short of the sector decarbonization pathway",
		When: func(s Signals) bool { return s.PathwayAvailable && s.PathwayGap < 0 },
	},
	{
		ID:   "poor_track_record",
		Kind: redFlag,
		Text: "company has repeatedly missed past sustainability targets",
		When: func(s Signals) bool { return s.TrackRecordPoor },
	},
	{
		ID:   "exceeds_pathway",
		Kind: greenFlag,
		Text: "target exceeds the sector decarbonization pathway requirement",
		When: func(s Signals) bool { return s.PathwayAvailable && s.PathwayGap > 0 },
	},
	{
		ID:   "clean_track_record",
		Kind: greenFlag,
		Text: "company has met every disclosed past sustainability target",
		When: func(s Signals) bool { return s.TrackRecordPerfect },
	},
	{
		ID:   "strong_governance",
		Kind: greenFlag,
		Text: "sustainability governance is board-anchored with linked incentives",
		When: func(s Signals) bool { return s.StrongGovernance },
	},
	{
		ID:   "capex_backed",
		Kind: greenFlag,
		Text: "target is backed by a committed capital expenditure plan",
		When: func(s Signals) bool { return s.CapexBacked },
	},
}

// EvaluateFlags runs the rulebook against the collected signals.
func EvaluateFlags(sig Signals) (red, green []string) {
	for _, rule := range flagRules {
		if !rule.When(sig) {
			continue
		}
		if rule.Kind == redFlag {
			red = append(red, rule.Text)
		} else {
			green = append(green, rule.Text)
		}
	}
	return red, green
}
