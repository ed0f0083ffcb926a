// Package infostore is the content-addressed store for InformationUnits:
// the atomic facts, events, and claims extracted from articles, deduplicated
// across sources by fingerprint and by semantic similarity.
package infostore

import (
	"strings"
	"time"
)

// UnitType classifies the nature of an InformationUnit's claim.
type UnitType string

const (
	TypeFact  UnitType = "FACT"
	TypeOpinion UnitType = "OPINION"
	TypeEvent UnitType = "EVENT"
	TypeData  UnitType = "DATA"
)

// TimeSensitivity classifies how quickly a unit's value decays.
type TimeSensitivity string

const (
	SensitivityUrgent   TimeSensitivity = "urgent"
	SensitivityNormal   TimeSensitivity = "normal"
	SensitivityEvergreen TimeSensitivity = "evergreen"
)

// StateChangeType is the HEX classification of what kind of change a unit describes.
type StateChangeType string

const (
	StateChangeTech        StateChangeType = "TECH"
	StateChangeCapital     StateChangeType = "CAPITAL"
	StateChangeRegulation  StateChangeType = "REGULATION"
	StateChangeOrg         StateChangeType = "ORG"
	StateChangeRisk        StateChangeType = "RISK"
	StateChangeSentiment   StateChangeType = "SENTIMENT"
	StateChangeNone        StateChangeType = ""
)

// ValidStateChangeTypes is the HEX set state_change_type must belong to (or be empty).
var ValidStateChangeTypes = map[StateChangeType]bool{
	StateChangeTech: true, StateChangeCapital: true, StateChangeRegulation: true,
	StateChangeOrg: true, StateChangeRisk: true, StateChangeSentiment: true,
}

// PresetL3Roots is the externally-configurable single source of truth for
// the 18 preset L3 root categories. The spec notes the exact enumeration is
// not consistently defined across source material, so this list is a
// reasonable default. NormalizeL3Root uses it when given a nil preset list;
// a custom list passed to agents.NewExtractor replaces it for that
// Extractor.
var PresetL3Roots = []string{
	"Technology", "Finance", "Healthcare", "Energy", "Retail",
	"Manufacturing", "Transportation", "RealEstate", "Telecom",
	"Media", "Agriculture", "Defense", "Government", "Education",
	"Legal", "Insurance", "Hospitality", "Logistics",
}

// EntityAnchor links an InformationUnit to its place in the three-tier
// entity hierarchy (l1 = canonical entity, l2 = sector, l3 = root category).
type EntityAnchor struct {
	L1Name     string
	L1Role     string
	L2Sector   string
	L3Root     string
	Confidence float64
}

// ValueScores are the four raw dimensions behind a unit's aggregate value_score.
type ValueScores struct {
	InformationGain float64
	Actionability   float64
	Scarcity        float64
	ImpactMagnitude float64
}

// ValueScore computes the derived aggregate score from the four dimensions.
func (v ValueScores) ValueScore() float64 {
	return 0.30*v.InformationGain + 0.25*v.Actionability + 0.20*v.Scarcity + 0.25*v.ImpactMagnitude
}

// SourceReference is one article or feed entry a unit's content was drawn from.
type SourceReference struct {
	URL            string
	Title          string
	SourceName     string
	PublishedAt    time.Time
	Excerpt        string
	CredibilityTier string
}

// InformationUnit is an atomic, content-addressed fact/opinion/event/datum
// extracted from one or more articles.
type InformationUnit struct {
	ID          string // "iu_" + first 16 hex chars of Fingerprint
	Fingerprint string // md5(normalized_title + "|" + normalized_content)

	Type            UnitType
	Title           string
	Content         string
	Summary         string
	EventTime       string // may be relative ("last Tuesday")
	ReportTime      time.Time
	TimeSensitivity TimeSensitivity

	FiveWOneH struct {
		Who, What, When, Where, Why, How string
	}

	Scores          ValueScores
	StateChangeType StateChangeType
	StateSubtypes   []string

	EntityAnchors []EntityAnchor
	KeyInsights   []string
	Sources       []SourceReference
	PrimarySource string

	MergedCount int
	IsSent      bool
	SentAt      time.Time

	EntityProcessed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValueScore returns the derived aggregate score for the unit.
func (u *InformationUnit) ValueScore() float64 {
	return u.Scores.ValueScore()
}

// NormalizeL3Root resolves raw against PresetL3Roots: exact case-insensitive
// match, else case-insensitive substring match against a preset root,
// else "Other".
func NormalizeL3Root(raw string, presets []string) string {
	if presets == nil {
		presets = PresetL3Roots
	}
	return normalizeL3Root(raw, presets)
}

// NormalizeScore applies a scaling-then-clamping rule: a raw score
// in (0,1] is treated as a fraction and multiplied by 10, then the result is
// clamped to [1,10].
func NormalizeScore(raw float64) float64 {
	if raw > 0 && raw <= 1 {
		raw *= 10
	}
	if raw < 1 {
		raw = 1
	}
	if raw > 10 {
		raw = 10
	}
	return raw
}

// ValidateStateChangeType returns sct if it is in the HEX set, else "".
func ValidateStateChangeType(sct StateChangeType) StateChangeType {
	if ValidStateChangeTypes[sct] {
		return sct
	}
	return StateChangeNone
}

func normalizeL3Root(raw string, presets []string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range presets {
		if strings.ToLower(p) == lower {
			return p
		}
	}
	for _, p := range presets {
		if strings.Contains(lower, strings.ToLower(p)) || strings.Contains(strings.ToLower(p), lower) {
			return p
		}
	}
	return "Other"
}
