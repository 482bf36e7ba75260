package council

// Role is the human-readable label of a council seat. Role names double as
// appendix marker keys, so they must stay stable.
type Role string

const (
	RoleResearcher  Role = "The Researcher"
	RoleAnalyst     Role = "The Analyst"
	RolePhilosopher Role = "The Philosopher"
	RoleJudge       Role = "The Judge"
)

// StageRoles lists the evidence-producing roles in pipeline order. The judge
// always runs last and is not part of this list.
var StageRoles = []Role{RoleResearcher, RoleAnalyst, RolePhilosopher}

// Slot names an evidence field filled by one stage.
type Slot string

const (
	SlotResearch   Slot = "research"
	SlotAnalysis   Slot = "analysis"
	SlotPhilosophy Slot = "philosophy"
)

// Status values carried by member_status events.
const (
	StatusResearching = "researching"
	StatusAnalyzing   = "analyzing"
	StatusPondering   = "pondering"
	StatusJudging     = "judging"
	StatusComplete    = "complete"
)

type roleInfo struct {
	verb string
	slot Slot
}

var roles = map[Role]roleInfo{
	RoleResearcher:  {verb: StatusResearching, slot: SlotResearch},
	RoleAnalyst:     {verb: StatusAnalyzing, slot: SlotAnalysis},
	RolePhilosopher: {verb: StatusPondering, slot: SlotPhilosophy},
	RoleJudge:       {verb: StatusJudging},
}

// Known reports whether r is one of the defined council roles.
func (r Role) Known() bool {
	_, ok := roles[r]
	return ok
}

// Verb is the active status a member of this role reports while working.
func (r Role) Verb() string { return roles[r].verb }

// Slot is the evidence field this role fills. The judge has none.
func (r Role) Slot() Slot { return roles[r].slot }

// Member is one seat on the council.
type Member struct {
	ID              string `json:"id" yaml:"id"`
	Role            Role   `json:"role" yaml:"role"`
	Avatar          string `json:"avatar" yaml:"avatar"`
	Color           string `json:"color" yaml:"color"`
	AllocatedTokens int    `json:"allocatedTokens" yaml:"allocatedTokens"`
	Priority        int    `json:"priority" yaml:"priority"`
	// Provider routes the member's calls; empty means the default provider.
	Provider string `json:"-" yaml:"provider,omitempty"`
}
