// Package roster loads the committee membership catalog consulted during
// speaker labeling.
package roster

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Role classifies a committee member's speaking position.
type Role string

const (
	RoleChair   Role = "chair"
	RoleRanking Role = "ranking"
	RoleMember  Role = "member"
)

func (r Role) valid() bool {
	switch r {
	case RoleChair, RoleRanking, RoleMember:
		return true
	default:
		return false
	}
}

// precedence orders roles for speaking-order tie-breaks.
func (r Role) precedence() int {
	switch r {
	case RoleChair:
		return 0
	case RoleRanking:
		return 1
	default:
		return 2
	}
}

// Member is one catalog entry. SeniorityRank orders plain members; lower
// ranks speak earlier.
type Member struct {
	Name          string `toml:"name"`
	Role          Role   `toml:"role"`
	SeniorityRank int    `toml:"seniority_rank"`
}

// Committee groups the members sitting under one committee code.
type Committee struct {
	Code    string   `toml:"code"`
	Name    string   `toml:"name"`
	Chamber string   `toml:"chamber"`
	Members []Member `toml:"member"`
}

// SpeakingOrder returns the members sorted by precedence: chair, ranking
// member, then members by seniority rank. Catalog order breaks remaining
// ties.
func (c Committee) SpeakingOrder() []Member {
	ordered := make([]Member, len(c.Members))
	copy(ordered, c.Members)
	sort.SliceStable(ordered, func(i, j int) bool {
		if pi, pj := ordered[i].Role.precedence(), ordered[j].Role.precedence(); pi != pj {
			return pi < pj
		}
		return ordered[i].SeniorityRank < ordered[j].SeniorityRank
	})
	return ordered
}

// FindByRole returns the first member holding the given role.
func (c Committee) FindByRole(role Role) (Member, bool) {
	for _, m := range c.Members {
		if m.Role == role {
			return m, true
		}
	}
	return Member{}, false
}

// Roster is the parsed, validated catalog.
type Roster struct {
	committees []Committee
	byCode     map[string]int
}

type fileSchema struct {
	Committees []Committee `toml:"committee"`
}

// Load parses and validates the catalog at path.
func Load(path string) (*Roster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer file.Close()

	var schema fileSchema
	decoder := toml.NewDecoder(file)
	if err := decoder.Decode(&schema); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	roster := &Roster{
		committees: schema.Committees,
		byCode:     make(map[string]int, len(schema.Committees)),
	}
	for i := range roster.committees {
		if err := normalizeCommittee(&roster.committees[i]); err != nil {
			return nil, fmt.Errorf("roster: %w", err)
		}
		code := roster.committees[i].Code
		if _, dup := roster.byCode[code]; dup {
			return nil, fmt.Errorf("roster: duplicate committee code %q", code)
		}
		roster.byCode[code] = i
	}
	return roster, nil
}

func normalizeCommittee(c *Committee) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)
	c.Chamber = strings.ToLower(strings.TrimSpace(c.Chamber))
	if c.Code == "" {
		return fmt.Errorf("committee %q missing code", c.Name)
	}
	chairs := 0
	ranking := 0
	for i := range c.Members {
		m := &c.Members[i]
		m.Name = strings.TrimSpace(m.Name)
		m.Role = Role(strings.ToLower(strings.TrimSpace(string(m.Role))))
		if m.Name == "" {
			return fmt.Errorf("committee %s: member %d missing name", c.Code, i+1)
		}
		if m.Role == "" {
			m.Role = RoleMember
		}
		if !m.Role.valid() {
			return fmt.Errorf("committee %s: member %q has unknown role %q", c.Code, m.Name, m.Role)
		}
		if m.SeniorityRank < 0 {
			return fmt.Errorf("committee %s: member %q has negative seniority_rank", c.Code, m.Name)
		}
		switch m.Role {
		case RoleChair:
			chairs++
		case RoleRanking:
			ranking++
		}
	}
	if chairs > 1 {
		return fmt.Errorf("committee %s: multiple chairs", c.Code)
	}
	if ranking > 1 {
		return fmt.Errorf("committee %s: multiple ranking members", c.Code)
	}
	return nil
}

// Committee looks up a committee by code, case-insensitively.
func (r *Roster) Committee(code string) (Committee, bool) {
	if r == nil {
		return Committee{}, false
	}
	idx, ok := r.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Committee{}, false
	}
	return r.committees[idx], true
}

// Committees returns the catalog in file order.
func (r *Roster) Committees() []Committee {
	if r == nil {
		return nil
	}
	out := make([]Committee, len(r.committees))
	copy(out, r.committees)
	return out
}

// Len reports the number of committees in the catalog.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.committees)
}
