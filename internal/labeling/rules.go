package labeling

import (
	"strings"

	"golang.org/x/text/cases"

	"gavel/internal/roster"
)

// Candidate is a rule's proposed speaker for one segment.
type Candidate struct {
	Name       string
	Role       roster.Role
	Confidence float64
}

// Rule proposes speaker candidates for one segment of transcript text. Rules
// receive the raw text and the hearing's committee and may return any number
// of candidates.
type Rule struct {
	Name  string
	Match func(text string, committee roster.Committee) []Candidate
}

// DefaultRules returns the built-in rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "procedural-opening", Match: matchProceduralOpening},
		{Name: "self-identification", Match: matchSelfIdentification},
		{Name: "ranking-reference", Match: matchRankingReference},
	}
}

// proceduralPhrases mark language customarily spoken by the presiding chair.
var proceduralPhrases = []struct {
	phrase     string
	confidence float64
}{
	{"will come to order", 0.95},
	{"call this hearing to order", 0.95},
	{"stands adjourned", 0.85},
	{"the chair recognizes", 0.85},
	{"without objection", 0.70},
	{"so ordered", 0.70},
}

func matchProceduralOpening(text string, committee roster.Committee) []Candidate {
	chair, ok := committee.FindByRole(roster.RoleChair)
	if !ok {
		return nil
	}
	folded := fold(text)
	best := 0.0
	for _, entry := range proceduralPhrases {
		if entry.confidence > best && strings.Contains(folded, entry.phrase) {
			best = entry.confidence
		}
	}
	if best == 0 {
		return nil
	}
	return []Candidate{{Name: chair.Name, Role: chair.Role, Confidence: best}}
}

// selfIDPhrases introduce a speaker naming themselves.
var selfIDPhrases = []string{
	"my name is ",
	"i am ",
	"i'm ",
	"this is ",
	"for the record, ",
}

const (
	fullNameConfidence = 0.90
	surnameConfidence  = 0.75
)

func matchSelfIdentification(text string, committee roster.Committee) []Candidate {
	folded := fold(text)
	if !containsAny(folded, selfIDPhrases) {
		return nil
	}

	var candidates []Candidate
	for _, member := range committee.SpeakingOrder() {
		full := fold(member.Name)
		if full == "" {
			continue
		}
		if strings.Contains(folded, full) {
			candidates = append(candidates, Candidate{Name: member.Name, Role: member.Role, Confidence: fullNameConfidence})
			continue
		}
		// Surnames shorter than three runes collide with ordinary words.
		if surname := lastToken(full); len(surname) >= 3 && strings.Contains(folded, surname) {
			candidates = append(candidates, Candidate{Name: member.Name, Role: member.Role, Confidence: surnameConfidence})
		}
	}
	return candidates
}

func matchRankingReference(text string, committee roster.Committee) []Candidate {
	ranking, ok := committee.FindByRole(roster.RoleRanking)
	if !ok {
		return nil
	}
	folded := fold(text)
	if !strings.Contains(folded, "as ranking member") && !strings.Contains(folded, "as the ranking member") {
		return nil
	}
	return []Candidate{{Name: ranking.Name, Role: ranking.Role, Confidence: 0.80}}
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func lastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// fold normalizes text for caseless comparison. Casers are stateful, so each
// call builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
