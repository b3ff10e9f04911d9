package labeling

import (
	"fmt"

	"gavel/internal/roster"
	"gavel/internal/services"
)

// UnknownSpeaker labels segments no rule resolved with enough confidence.
const UnknownSpeaker = "unknown"

// Segment is one transcript utterance to label.
type Segment struct {
	Index int
	Text  string
}

// Label is the advisory speaker attribution for one segment.
type Label struct {
	Speaker    string  `json:"speaker"`
	Role       string  `json:"role"`
	Confidence float64 `json:"confidence"`
}

// Labeler resolves transcript segments against the roster catalog using an
// ordered rule table.
type Labeler struct {
	catalog       *roster.Roster
	minConfidence float64
	rules         []Rule
}

// New builds a Labeler over the catalog. When no rules are supplied the
// default table applies.
func New(catalog *roster.Roster, minConfidence float64, rules ...Rule) *Labeler {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Labeler{catalog: catalog, minConfidence: minConfidence, rules: rules}
}

// LabelSegments attributes every segment of the committee's hearing. The
// output aligns with the input; unresolved segments carry UnknownSpeaker
// with zero confidence. Identical inputs always yield identical labels.
func (l *Labeler) LabelSegments(committeeCode string, segments []Segment) ([]Label, error) {
	if l.catalog == nil {
		return nil, services.Wrap(services.ErrLabeling, "labeling", "resolve committee", "roster catalog not loaded", nil)
	}
	committee, ok := l.catalog.Committee(committeeCode)
	if !ok {
		return nil, services.Wrap(services.ErrLabeling, "labeling", "resolve committee",
			fmt.Sprintf("committee %q not in roster", committeeCode), nil)
	}

	precedence := speakingPrecedence(committee)
	labels := make([]Label, len(segments))
	for i, segment := range segments {
		labels[i] = l.labelSegment(segment.Text, committee, precedence)
	}
	return labels, nil
}

func (l *Labeler) labelSegment(text string, committee roster.Committee, precedence map[string]int) Label {
	var best *Candidate
	bestOrder := 0
	for _, rule := range l.rules {
		if rule.Match == nil {
			continue
		}
		for _, candidate := range rule.Match(text, committee) {
			order := precedenceOf(precedence, candidate.Name)
			if best == nil || candidate.Confidence > best.Confidence ||
				(candidate.Confidence == best.Confidence && order < bestOrder) {
				chosen := candidate
				best = &chosen
				bestOrder = order
			}
		}
	}
	if best == nil || best.Confidence < l.minConfidence {
		return Label{Speaker: UnknownSpeaker, Role: UnknownSpeaker}
	}
	return Label{Speaker: best.Name, Role: string(best.Role), Confidence: best.Confidence}
}

// speakingPrecedence maps member names to their speaking-order position so
// equal-confidence candidates resolve to the more senior member.
func speakingPrecedence(committee roster.Committee) map[string]int {
	order := make(map[string]int)
	for i, member := range committee.SpeakingOrder() {
		if _, exists := order[member.Name]; !exists {
			order[member.Name] = i
		}
	}
	return order
}

func precedenceOf(precedence map[string]int, name string) int {
	if idx, ok := precedence[name]; ok {
		return idx
	}
	// Names outside the roster rank after every member.
	return len(precedence) + 1
}

// AllUnknown returns the fallback labeling applied when rule evaluation
// fails outright.
func AllUnknown(count int) []Label {
	if count <= 0 {
		return nil
	}
	labels := make([]Label, count)
	for i := range labels {
		labels[i] = Label{Speaker: UnknownSpeaker, Role: UnknownSpeaker}
	}
	return labels
}

// CountLabeled reports how many labels resolved to a roster member.
func CountLabeled(labels []Label) int {
	count := 0
	for _, label := range labels {
		if label.Speaker != UnknownSpeaker && label.Speaker != "" {
			count++
		}
	}
	return count
}
