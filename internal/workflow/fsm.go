package workflow

import (
	"regexp"
	"sort"
)

// Phase is a canonical phase token.
type Phase string

const (
	Phase1    Phase = "1"
	Phase1_1  Phase = "1.1"
	Phase1_2  Phase = "1.2"
	Phase1_3  Phase = "1.3"
	Phase1_5  Phase = "1.5"
	Phase2    Phase = "2"
	Phase2_1  Phase = "2.1"
	Phase3A   Phase = "3A"
	Phase3B1  Phase = "3B-1"
	Phase3B2  Phase = "3B-2"
	Phase4    Phase = "4"
	Phase5    Phase = "5"
	Phase5_3  Phase = "5.3"
	Phase5_4  Phase = "5.4"
	Phase5_5  Phase = "5.5"
	Phase5_6  Phase = "5.6"
	Phase6    Phase = "6"
	PhaseNone Phase = ""
)

// phaseOrder is the total order of the state machine.
var phaseOrder = []Phase{
	Phase1, Phase1_1, Phase1_2, Phase1_3, Phase1_5,
	Phase2, Phase2_1,
	Phase3A, Phase3B1, Phase3B2,
	Phase4,
	Phase5, Phase5_3, Phase5_4, Phase5_5, Phase5_6,
	Phase6,
}

var phaseRank = func() map[Phase]int {
	m := make(map[Phase]int, len(phaseOrder))
	for i, p := range phaseOrder {
		m[p] = i
	}
	return m
}()

var phaseLabels = map[Phase]string{
	Phase1:   "1-Start",
	Phase1_1: "1.1-Bootstrap",
	Phase1_2: "1.2-ProfileDetection",
	Phase1_3: "1.3-CoreRulesActivation",
	Phase1_5: "1.5-BusinessRules",
	Phase2:   "2-RepoDiscovery",
	Phase2_1: "2.1-DecisionPack",
	Phase3A:  "3A-Activation",
	Phase3B1: "3B-1-ContractValidation",
	Phase3B2: "3B-2-ContractConsistency",
	Phase4:   "4-Implementation",
	Phase5:   "5-ArchitectureReview",
	Phase5_3: "5.3-TestQuality",
	Phase5_4: "5.4-BusinessRulesCompliance",
	Phase5_5: "5.5-TechnicalDebt",
	Phase5_6: "5.6-RollbackSafety",
	Phase6:   "6-PostFlight",
}

type phasePattern struct {
	phase Phase
	re    *regexp.Regexp
}

// phasePatterns is tried in order; longer tokens come first so "1.1" wins
// over "1" and "3B-2" over anything shorter.
var phasePatterns = func() []phasePattern {
	ordered := append([]Phase(nil), phaseOrder...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})
	out := make([]phasePattern, 0, len(ordered))
	for _, p := range ordered {
		expr := `(?i)^\s*(?:phase[\s_:-]*)?` + regexp.QuoteMeta(string(p)) + `(?:$|[^0-9.]|\.(?:$|[^0-9]))`
		out = append(out, phasePattern{phase: p, re: regexp.MustCompile(expr)})
	}
	return out
}()

// NormalizePhaseToken derives the canonical token from free-form phase text
// such as "1.1-Bootstrap" or "Phase 3B-2". Unmatched text yields PhaseNone.
func NormalizePhaseToken(text string) Phase {
	for _, pp := range phasePatterns {
		if pp.re.MatchString(text) {
			return pp.phase
		}
	}
	return PhaseNone
}

// PhaseRank returns the position of p in the total order.
func PhaseRank(p Phase) (int, bool) {
	r, ok := phaseRank[p]
	return r, ok
}

// Valid reports whether p is one of the canonical tokens.
func (p Phase) Valid() bool {
	_, ok := phaseRank[p]
	return ok
}

// Label returns the display form of p, e.g. "1.1-Bootstrap".
func (p Phase) Label() string {
	if l, ok := phaseLabels[p]; ok {
		return l
	}
	return string(p)
}

// AtLeast reports whether p is ranked at or above floor. Unknown tokens never are.
func (p Phase) AtLeast(floor Phase) bool {
	rp, ok := phaseRank[p]
	if !ok {
		return false
	}
	rm, ok := phaseRank[floor]
	if !ok {
		return false
	}
	return rp >= rm
}

// InPhase5Family reports whether p is phase 5 or one of its sub-gates.
func (p Phase) InPhase5Family() bool {
	switch p {
	case Phase5, Phase5_3, Phase5_4, Phase5_5, Phase5_6:
		return true
	}
	return false
}

// Phases returns the canonical tokens in order.
func Phases() []Phase {
	return append([]Phase(nil), phaseOrder...)
}

// Distance is rank(to) - rank(from). Unknown tokens yield 0, false.
func Distance(from, to Phase) (int, bool) {
	rf, ok := phaseRank[from]
	if !ok {
		return 0, false
	}
	rt, ok := phaseRank[to]
	if !ok {
		return 0, false
	}
	return rt - rf, true
}

// IsValidTransition reports whether moving from one phase to another stays
// within a single forward step. Staying put and moving backwards are legal;
// regressions are handled by the router's monotonicity rule.
func IsValidTransition(from, to Phase) bool {
	d, ok := Distance(from, to)
	return ok && d <= 1
}
