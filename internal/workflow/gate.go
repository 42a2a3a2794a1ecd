// Package workflow implements the governance phase state machine and the
// router that decides which phase a unit of work may occupy.
package workflow

// Gate is the named checkpoint that must be satisfied before leaving a phase.
type Gate struct {
	Name          string
	ExitCondition string
}

// WorkspaceReadyGate is the initial safety gate every repository passes first.
const WorkspaceReadyGate = "Workspace Ready Gate"

// GateRegistry maps each phase to its gate.
type GateRegistry struct {
	gates map[Phase]Gate
}

// NewGateRegistry creates a registry populated with the default gate for every phase.
func NewGateRegistry() *GateRegistry {
	bootstrap := Gate{
		Name:          WorkspaceReadyGate,
		ExitCondition: "Resolve repository identity and commit the workspace-ready gate.",
	}
	gates := map[Phase]Gate{
		Phase1:   bootstrap,
		Phase1_1: bootstrap,
		Phase1_2: {Name: "Profile Detection Gate", ExitCondition: "Confirm the detected stack profile."},
		Phase1_3: {Name: "Core Rules Gate", ExitCondition: "Load and acknowledge the core rule set."},
		Phase1_5: {Name: "Business Rules Gate", ExitCondition: "Decide whether business-rules discovery runs for this repository."},
		Phase2:   {Name: "Repo Discovery Gate", ExitCondition: "Build the repository cache and map digest."},
		Phase2_1: {Name: "Decision Pack Gate", ExitCondition: "Record the architectural decision pack."},
		Phase3A:  {Name: "API Inventory Gate", ExitCondition: "Inventory external API contracts."},
		Phase3B1: {Name: "Contract Validation Gate", ExitCondition: "Validate API contracts against their specifications."},
		Phase3B2: {Name: "Contract Consistency Gate", ExitCondition: "Confirm contract consistency across consumers."},
		Phase4:   {Name: "Ticket Intake Gate", ExitCondition: "Provide the ticket or goal for this unit of work."},
		Phase5:   {Name: "Architecture Review Gate", ExitCondition: "Pass the architecture review."},
		Phase5_3: {Name: "Test Quality Gate", ExitCondition: "Meet the test quality bar."},
		Phase5_4: {Name: "Business Rules Compliance Gate", ExitCondition: "Demonstrate business-rules compliance."},
		Phase5_5: {Name: "Technical Debt Gate", ExitCondition: "Record accepted technical debt."},
		Phase5_6: {Name: "Rollback Safety Gate", ExitCondition: "Document a safe rollback path."},
		Phase6:   {Name: "Post-Flight Gate", ExitCondition: "Complete the post-flight summary."},
	}
	return &GateRegistry{gates: gates}
}

// Register sets a custom gate for a phase.
func (r *GateRegistry) Register(phase Phase, gate Gate) {
	r.gates[phase] = gate
}

// Get returns the gate for a phase.
func (r *GateRegistry) Get(phase Phase) (Gate, bool) {
	g, ok := r.gates[phase]
	return g, ok
}
