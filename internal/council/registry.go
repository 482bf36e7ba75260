package council

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoMembers   = errors.New("council has no members")
	ErrRoleMissing = errors.New("council role missing")
	ErrBadRegistry = errors.New("invalid council registry")
)

// DefaultMembers is the stock council.
func DefaultMembers() []Member {
	return []Member{
		{ID: "compound-beta", Role: RoleResearcher, Avatar: "🌐", Color: "#10b981", AllocatedTokens: 4096, Priority: 0},
		{ID: "llama-3.1-8b-instant", Role: RoleAnalyst, Avatar: "🔍", Color: "#3b82f6", AllocatedTokens: 2048, Priority: 1},
		{ID: "llama-3.3-70b-versatile", Role: RolePhilosopher, Avatar: "🧙‍♂️", Color: "#8b5cf6", AllocatedTokens: 2048, Priority: 2},
		{ID: "openai/gpt-oss-120b", Role: RoleJudge, Avatar: "⚖️", Color: "#ec4899", AllocatedTokens: 4096, Priority: 3},
	}
}

// Registry is an immutable member table. It is safe for concurrent use.
type Registry struct {
	members []Member
}

// NewRegistry sorts members by priority and freezes them. It does not
// validate; call Validate before serving sessions.
func NewRegistry(members []Member) *Registry {
	ms := append([]Member(nil), members...)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Priority < ms[j].Priority })
	return &Registry{members: ms}
}

// DefaultRegistry returns the stock council.
func DefaultRegistry() *Registry { return NewRegistry(DefaultMembers()) }

// ListMembersByPriority returns the members in ascending priority. Each call
// returns a fresh copy.
func (r *Registry) ListMembersByPriority() []Member {
	if r == nil {
		return []Member{}
	}
	return append(make([]Member, 0, len(r.members)), r.members...)
}

// Member looks up the member holding role.
func (r *Registry) Member(role Role) (Member, bool) {
	if r == nil {
		return Member{}, false
	}
	for _, m := range r.members {
		if m.Role == role {
			return m, true
		}
	}
	return Member{}, false
}

// Validate checks that the table can drive a full session.
func (r *Registry) Validate() error {
	return validateMembers(r.ListMembersByPriority())
}

func validateMembers(ms []Member) error {
	if len(ms) == 0 {
		return ErrNoMembers
	}
	seenRole := map[Role]bool{}
	seenPrio := map[int]bool{}
	for _, m := range ms {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("%w: member for %q has empty id", ErrBadRegistry, m.Role)
		}
		if m.AllocatedTokens <= 0 {
			return fmt.Errorf("%w: member %s has non-positive token budget", ErrBadRegistry, m.ID)
		}
		if !m.Role.Known() {
			return fmt.Errorf("%w: member %s has unknown role %q", ErrBadRegistry, m.ID, m.Role)
		}
		if err := checkMarkerSafe(m.Role); err != nil {
			return err
		}
		if seenRole[m.Role] {
			return fmt.Errorf("%w: role %q assigned twice", ErrBadRegistry, m.Role)
		}
		if seenPrio[m.Priority] {
			return fmt.Errorf("%w: priority %d assigned twice", ErrBadRegistry, m.Priority)
		}
		seenRole[m.Role] = true
		seenPrio[m.Priority] = true
	}
	order := append(append([]Role(nil), StageRoles...), RoleJudge)
	for _, role := range order {
		if !seenRole[role] {
			return fmt.Errorf("%w: %s", ErrRoleMissing, role)
		}
	}
	// Each stage prompt reads the outputs of the stages before it.
	for i, role := range order {
		if ms[i].Role != role {
			return fmt.Errorf("%w: priority order puts %s where %s belongs", ErrBadRegistry, ms[i].Role, role)
		}
	}
	return nil
}

type membersFile struct {
	Members []Member `yaml:"members"`
}

// LoadRegistryFile reads a YAML member table:
//
//	members:
//	  - id: compound-beta
//	    role: The Researcher
//	    allocatedTokens: 4096
//	    priority: 0
func LoadRegistryFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read members file: %w", err)
	}
	var f membersFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse members file %s: %w", path, err)
	}
	reg := NewRegistry(f.Members)
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("members file %s: %w", path, err)
	}
	return reg, nil
}
