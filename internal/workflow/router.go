package workflow

import (
	"fmt"
	"regexp"

	"github.com/Rogers-F/governance-engine/internal/session"
)

// Route sources explain which rule produced the routed phase.
const (
	SourceDefault            = "default"
	SourceRequested          = "requested"
	SourcePersisted          = "persisted"
	SourceMonotonic          = "persisted-monotonic"
	SourceWorkspaceReadyGate = "workspace-ready-gate"
	SourceEvidenceRequired   = "transition-evidence-required"
	SourceBusinessRules      = "business-rules-discovery"
	SourceAPIScope           = "api-scope-detected"
	SourceNoAPIScope         = "no-api-scope"
)

// TicketDeferredCondition replaces ticket or goal prompts before Phase 4.
const TicketDeferredCondition = "Ticket and goal input is accepted from Phase 4 onward; complete the active gate first."

var ticketPrompt = regexp.MustCompile(`(?i)\b(ticket|goal|user\s+story|task\s+description)s?\b`)

// RouteInput is everything the router reads.
type RouteInput struct {
	RequestedPhase string
	Session        session.Document
	// WorkspaceReady is set when the gate was committed during this evaluation,
	// before the session document was rewritten.
	WorkspaceReady bool
	// TransitionEvidence is set when the caller holds evidence for a multi-step jump.
	TransitionEvidence bool
}

// RoutedPhase is the router's decision.
type RoutedPhase struct {
	Phase             string `json:"phase"`
	Token             Phase  `json:"phase_token"`
	ActiveGate        string `json:"active_gate"`
	NextGateCondition string `json:"next_gate_condition"`
	WorkspaceReady    bool   `json:"workspace_ready"`
	Source            string `json:"source"`
}

// Router resolves the effective phase from a requested phase and the session.
type Router struct {
	gates *GateRegistry
}

// NewRouter creates a router. A nil registry uses the default gates.
func NewRouter(gates *GateRegistry) *Router {
	if gates == nil {
		gates = NewGateRegistry()
	}
	return &Router{gates: gates}
}

// Route applies, in order: the workspace-ready safety gate, persisted-phase
// monotonicity, the transition-evidence requirement for multi-step jumps and
// the business-rules/API domain routing.
func (r *Router) Route(in RouteInput) RoutedPhase {
	doc := in.Session
	persisted := NormalizePhaseToken(doc.Phase())
	requested := NormalizePhaseToken(in.RequestedPhase)
	ready := in.WorkspaceReady || doc.WorkspaceReady()
	evidence := in.TransitionEvidence || doc.TransitionEvidence()

	if persisted.AtLeast(Phase2) && !ready {
		return r.bootstrap()
	}

	var candidate Phase
	var source string
	switch {
	case requested == PhaseNone && persisted == PhaseNone:
		candidate, source = Phase1_1, SourceDefault
	case requested == PhaseNone:
		candidate, source = persisted, SourcePersisted
	case persisted != PhaseNone && !requested.AtLeast(persisted):
		return r.result(persisted, SourceMonotonic, doc.NextGateCondition(), ready)
	default:
		base := persisted
		if base == PhaseNone {
			base = Phase1_1
		}
		firstDiscovery := persisted == PhaseNone && ready && (requested == Phase2 || requested == Phase2_1)
		if !IsValidTransition(base, requested) && !evidence && !firstDiscovery {
			cond := fmt.Sprintf("Phase transition evidence is required to advance from %s to %s.", base.Label(), requested.Label())
			return r.result(base, SourceEvidenceRequired, cond, ready)
		}
		candidate, source = requested, SourceRequested
	}

	if candidate.AtLeast(Phase2) && !ready {
		return r.bootstrap()
	}

	routed, routedSource := r.domainRoute(candidate, doc, ready)
	if routed != candidate {
		return r.result(routed, routedSource, "", ready)
	}

	cond := ""
	if source == SourcePersisted {
		cond = doc.NextGateCondition()
	}
	return r.result(candidate, source, cond, ready)
}

// domainRoute redirects 1.5, 2.1 and 3A based on the business-rules decision
// and whether the repository exposes an API surface.
func (r *Router) domainRoute(p Phase, doc session.Document, ready bool) (Phase, string) {
	api := doc.OpenAPIDetected() || len(doc.ExternalAPIs()) > 0
	resolved := businessRulesResolved(doc.BusinessRulesDecision())

	afterRules := func() (Phase, string) {
		if api {
			return Phase3A, SourceAPIScope
		}
		return Phase4, SourceNoAPIScope
	}

	switch p {
	case Phase2_1:
		if !ready {
			return p, ""
		}
		if !resolved {
			return Phase1_5, SourceBusinessRules
		}
		return afterRules()
	case Phase1_5:
		if resolved {
			return afterRules()
		}
	case Phase3A:
		if !api {
			return Phase4, SourceNoAPIScope
		}
	}
	return p, ""
}

func businessRulesResolved(decision string) bool {
	switch decision {
	case "execute", "executed", "skip", "skipped":
		return true
	}
	return false
}

func (r *Router) bootstrap() RoutedPhase {
	return r.result(Phase1_1, SourceWorkspaceReadyGate, "", false)
}

func (r *Router) result(p Phase, source, cond string, ready bool) RoutedPhase {
	gate, _ := r.gates.Get(p)
	if cond == "" {
		cond = gate.ExitCondition
	}
	if !p.AtLeast(Phase4) && ticketPrompt.MatchString(cond) {
		cond = TicketDeferredCondition
	}
	return RoutedPhase{
		Phase:             p.Label(),
		Token:             p,
		ActiveGate:        gate.Name,
		NextGateCondition: cond,
		WorkspaceReady:    ready,
		Source:            source,
	}
}
