package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// Directory maps human names to user identities, so assignees are stored
// as ids rather than raw strings.
type Directory interface {
	LookupUser(ctx context.Context, name string) (string, error)
}

// DefaultConfidenceThreshold is the floor below which a classification
// is forced to clarify_needed.
const DefaultConfidenceThreshold = 0.5

// Extractor performs intent classification and entity extraction.
type Extractor struct {
	directory Directory
	threshold float64
	now       func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithConfidenceThreshold overrides the clarification floor.
func WithConfidenceThreshold(threshold float64) Option {
	return func(e *Extractor) { e.threshold = threshold }
}

// WithClock overrides the time source, for tests. Dates normalize
// against extraction time, not execution time.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an Extractor. The directory is required so assignee names
// always normalize to identities.
func New(directory Directory, opts ...Option) (*Extractor, error) {
	if directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	e := &Extractor{directory: directory, threshold: DefaultConfidenceThreshold, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

var clauseSeparators = []string{" and then ", ", then ", "; ", " then "}

var (
	quotedRe   = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	calledRe   = regexp.MustCompile(`(?i)\b(?:called|named|titled)\s+(.+)$`)
	taskWordRe = regexp.MustCompile(`(?i)\ba?\s*(?:new\s+)?task\s+(.+)$`)
	dueRe      = regexp.MustCompile(`(?i)\b(?:due|by)\s+(.+)$`)
	onDateRe   = regexp.MustCompile(`(?i)\bon\s+(.+)$`)
	planRefRe  = regexp.MustCompile(`(?i)\b(?:in|into|to|from)\s+(?:the\s+)?(.+?)\s+plan\b`)
	taskRefRe  = regexp.MustCompile(`(?i)\bthe\s+(.+?)\s+task\b`)
	assigneeRe = regexp.MustCompile(`(?i)\bassign(?:ed)?\b(?:\s+\S+){0,4}?\s+to\s+(.+)$`)
)

// Extract classifies the text and pulls out its entities. A confidence
// below the threshold forces clarify_needed. Unparseable dates and
// unknown assignees return typed validation errors so callers can ask a
// targeted follow-up instead of failing generically.
func (e *Extractor) Extract(ctx context.Context, text string, hints ContextHints) (Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Intent: IntentClarify}, nil
	}

	if clauses := splitClauses(trimmed); len(clauses) > 1 {
		return Result{Intent: IntentBatch, Confidence: 0.9, Clauses: clauses}, nil
	}

	intent, confidence := classifyIntent(trimmed)
	if confidence < e.threshold {
		return Result{Intent: IntentClarify, Confidence: confidence}, nil
	}

	entities, err := e.entities(ctx, trimmed, hints)
	if err != nil {
		return Result{}, err
	}
	result := Result{Intent: intent, Confidence: confidence, Entities: entities}
	if intent == IntentUpdate && completionRe.MatchString(trimmed) {
		result.Complete = true
	}
	return result, nil
}

var completionRe = regexp.MustCompile(`(?i)\b(?:done|complete[d]?|finish(?:ed)?)\b`)

// splitClauses breaks a multi-step message into ordered sub-texts. Only
// splits where every part carries its own verb, so "task called X and Y"
// stays one clause.
func splitClauses(text string) []string {
	parts := []string{text}
	for _, sep := range clauseSeparators {
		var next []string
		for _, part := range parts {
			for _, piece := range strings.Split(part, sep) {
				piece = strings.TrimSpace(piece)
				if piece != "" {
					next = append(next, piece)
				}
			}
		}
		parts = next
	}
	if len(parts) == 1 {
		return parts
	}
	for _, part := range parts {
		if _, confidence := classifyIntent(part); confidence < 0.5 {
			return []string{text}
		}
	}
	return parts
}

var intentVerbs = map[Intent][]string{
	IntentCreate: {"create", "add", "make", "new"},
	IntentRead:   {"list", "show", "view", "find", "what", "which"},
	IntentUpdate: {"update", "change", "rename", "move", "set", "assign", "reschedule", "mark", "complete", "finish", "postpone"},
	IntentDelete: {"delete", "remove", "cancel", "drop"},
}

// classifyIntent matches the leading verb of the message against the
// closed intent set. A verb in first position is a confident match; one
// buried later is weaker.
func classifyIntent(text string) (Intent, float64) {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return IntentClarify, 0
	}
	for intent, verbs := range intentVerbs {
		for _, verb := range verbs {
			if words[0] == verb {
				return intent, 0.9
			}
		}
	}
	for i, word := range words[1:] {
		for intent, verbs := range intentVerbs {
			for _, verb := range verbs {
				if word == verb {
					// A verb past the midpoint of the message is more
					// likely part of a title than the command itself.
					if i+1 > len(words)/2 {
						return intent, 0.4
					}
					return intent, 0.7
				}
			}
		}
	}
	return IntentClarify, 0
}

func (e *Extractor) entities(ctx context.Context, text string, hints ContextHints) ([]Entity, error) {
	var entities []Entity

	if span, phrase, ok := datePhrase(text, e.now()); ok {
		when, err := parseDate(phrase, e.now())
		if err != nil {
			return nil, apperrors.WithMetadata(apperrors.CodeValidation,
				"could not understand the date", map[string]string{"span": phrase})
		}
		entities = append(entities, Entity{Type: EntityDate, RawSpan: span, Date: &when})
	}

	if span, name, ok := assigneeName(text); ok {
		userID, err := e.directory.LookupUser(ctx, name)
		if err != nil {
			return nil, apperrors.WithMetadata(apperrors.CodeValidation,
				"could not find that person", map[string]string{"span": name})
		}
		entities = append(entities, Entity{Type: EntityAssignee, RawSpan: span, AssigneeID: userID})
	}

	if span, priority, ok := priorityWord(text); ok {
		entities = append(entities, Entity{Type: EntityPriority, RawSpan: span, Priority: priority})
	}

	entities = append(entities, e.references(text, hints)...)

	if span, title, ok := titleSpan(text); ok {
		entities = append(entities, Entity{Type: EntityTitle, RawSpan: span, Title: title})
	}

	return entities, nil
}

// datePhrase locates a due-date span. "due"/"by" phrases must parse;
// "on" phrases are tried opportunistically since "on" is overloaded.
func datePhrase(text string, now time.Time) (span, phrase string, ok bool) {
	if m := dueRe.FindStringSubmatch(text); m != nil {
		return m[0], cutAt(m[1], " in ", " to ", " for ", " assigned", " and "), true
	}
	if m := onDateRe.FindStringSubmatch(text); m != nil {
		candidate := cutAt(m[1], " in ", " to ", " for ", " assigned", " and ")
		if _, err := parseDate(candidate, now); err == nil {
			return m[0], candidate, true
		}
	}
	return "", "", false
}

func assigneeName(text string) (span, name string, ok bool) {
	m := assigneeRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	name = cutAt(m[1], " due ", " by ", " in ", " on ", " and ")
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if name == "" {
		return "", "", false
	}
	return m[0], name, true
}

var priorityWords = []struct {
	phrase   string
	priority int
}{
	{"urgent", 1},
	{"high priority", 3},
	{"important", 3},
	{"medium priority", 5},
	{"low priority", 9},
}

func priorityWord(text string) (span string, priority int, ok bool) {
	lower := strings.ToLower(text)
	for _, candidate := range priorityWords {
		if strings.Contains(lower, candidate.phrase) {
			return candidate.phrase, candidate.priority, true
		}
	}
	return "", 0, false
}

var taskPronouns = []string{"that task", "this task", "that one", "it"}

// references extracts object references: explicit plan/task descriptions
// and pronouns resolved through conversation hints. A pronoun with no
// hint still produces a reference, unresolved, so the resolver can ask
// rather than guess.
func (e *Extractor) references(text string, hints ContextHints) []Entity {
	var entities []Entity

	if m := planRefRe.FindStringSubmatch(text); m != nil {
		description := strings.TrimSpace(m[1])
		entities = append(entities, Entity{
			Type:    EntityObjectRef,
			RawSpan: m[0],
			Ref:     &Reference{Kind: RefPlan, Description: description},
		})
	} else if containsWord(text, "the plan") || containsWord(text, "that plan") {
		entities = append(entities, Entity{
			Type:    EntityObjectRef,
			RawSpan: "the plan",
			Ref:     &Reference{Kind: RefPlan, ID: hints.LastPlanID},
		})
	}

	if m := taskRefRe.FindStringSubmatch(text); m != nil {
		entities = append(entities, Entity{
			Type:    EntityObjectRef,
			RawSpan: m[0],
			Ref:     &Reference{Kind: RefTask, Description: strings.TrimSpace(m[1])},
		})
		return entities
	}
	for _, pronoun := range taskPronouns {
		if containsWord(text, pronoun) {
			entities = append(entities, Entity{
				Type:    EntityObjectRef,
				RawSpan: pronoun,
				Ref:     &Reference{Kind: RefTask, ID: hints.LastTaskID},
			})
			break
		}
	}
	return entities
}

// titleSpan pulls a title out of quotes, a called/named marker, or the
// text following "task".
func titleSpan(text string) (span, title string, ok bool) {
	if m := quotedRe.FindStringSubmatch(text); m != nil {
		for _, group := range m[1:] {
			if group != "" {
				return m[0], group, true
			}
		}
	}
	if m := calledRe.FindStringSubmatch(text); m != nil {
		title = trimTitle(m[1])
		if title != "" {
			return m[0], title, true
		}
	}
	if m := taskWordRe.FindStringSubmatch(text); m != nil {
		candidate := m[1]
		if calledRe.MatchString(text) {
			return "", "", false
		}
		title = trimTitle(candidate)
		if title != "" && !startsWithStopword(title) {
			return m[0], title, true
		}
	}
	return "", "", false
}

// startsWithStopword rejects "titles" that are really the tail of a
// prepositional phrase, e.g. "task to Alice".
func startsWithStopword(title string) bool {
	first := strings.ToLower(strings.Fields(title)[0])
	switch first {
	case "to", "in", "for", "on", "by", "due", "and", "from":
		return true
	}
	return false
}

// trimTitle cuts a candidate title at the first downstream marker.
func trimTitle(s string) string {
	s = cutAt(s, " due ", " by ", " in the ", " in ", " assigned", " assign ", " for ", " with ", " to the ", " on ")
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	return strings.TrimSpace(s)
}

// cutAt truncates s at the earliest case-insensitive occurrence of any
// marker.
func cutAt(s string, markers ...string) string {
	lower := strings.ToLower(s)
	cut := len(s)
	for _, marker := range markers {
		if idx := strings.Index(lower, marker); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return strings.TrimSpace(s[:cut])
}

// containsWord reports whether phrase appears in text on word
// boundaries.
func containsWord(text, phrase string) bool {
	lower := " " + strings.ToLower(text) + " "
	return strings.Contains(lower, " "+phrase+" ") ||
		strings.Contains(lower, " "+phrase+". ") ||
		strings.Contains(lower, " "+phrase+", ")
}
