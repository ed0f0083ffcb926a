// Package entitystore is the three-tier entity graph: canonical entities,
// their aliases, the information units that mention them, and the typed
// relations between them.
package entitystore

import (
	"strings"
	"time"
)

// EntityType classifies what kind of thing a canonical entity is.
type EntityType string

const (
	EntityCompany  EntityType = "COMPANY"
	EntityPerson   EntityType = "PERSON"
	EntityProduct  EntityType = "PRODUCT"
	EntityOrg      EntityType = "ORG"
	EntityConcept  EntityType = "CONCEPT"
	EntityLocation EntityType = "LOCATION"
	EntityEvent    EntityType = "EVENT"
)

// MentionRole is how prominently an entity figures in a unit.
type MentionRole string

const (
	RoleProtagonist MentionRole = "protagonist"
	RoleSupporting  MentionRole = "supporting"
	RoleMentioned   MentionRole = "mentioned"
)

// Sentiment is the tone of a mention.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// RelationType is one of the eleven typed edges the graph recognizes.
type RelationType string

const (
	RelationParentOf     RelationType = "parent_of"
	RelationSubsidiaryOf RelationType = "subsidiary_of"
	RelationCompetitor   RelationType = "competitor"
	RelationPartner      RelationType = "partner"
	RelationPeer         RelationType = "peer"
	RelationSupplier     RelationType = "supplier"
	RelationCustomer     RelationType = "customer"
	RelationInvestor     RelationType = "investor"
	RelationCEOOf        RelationType = "ceo_of"
	RelationFounderOf    RelationType = "founder_of"
	RelationEmployeeOf   RelationType = "employee_of"
)

// Trend classifies a hot entity's mention-count trajectory over the
// comparison window.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
	TrendNew    Trend = "new"
)

// Entity is a canonical, deduplicated real-world thing: a company, person,
// product, and so on.
type Entity struct {
	ID            string
	CanonicalName string
	Type          EntityType
	L3Root        string
	L2Sector      string
	Attributes    map[string]string
	MentionCount  int
	FirstMentioned time.Time
	LastMentioned  time.Time
}

// EntityAlias maps a case-folded, trimmed alias string to an entity id.
type EntityAlias struct {
	Alias     string // normalized: lower-cased, trimmed
	EntityID  string
	IsPrimary bool
}

// EntityMention links an entity to an information unit it appears in.
type EntityMention struct {
	EntityID      string
	UnitID        string
	Role          MentionRole
	Sentiment     Sentiment
	StateDimension string
	StateDelta    string
	EventTime     string
}

// EntityRelation is a typed, evidence-backed edge between two entities.
type EntityRelation struct {
	SourceID     string
	TargetID     string
	Type         RelationType
	Strength     float64
	Confidence   float64
	Evidence     []string // unit ids, set-union on upsert
	ValidFrom    time.Time
	ValidUntil   time.Time
}

// NormalizeAlias case-folds and trims an alias for lookup/storage.
func NormalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}

// ExtractedEntity is the Extractor agent's raw output for one entity
// mentioned in an InformationUnit, before alias resolution.
type ExtractedEntity struct {
	Name        string
	Aliases     []string
	Type        EntityType
	Role        MentionRole
	Sentiment   Sentiment
	StateDimension string
	StateChange string // becomes StateDelta on the recorded mention
}

// ExtractedRelation is the Extractor agent's raw output for one relation
// between two named entities, before id resolution.
type ExtractedRelation struct {
	SourceName string
	TargetName string
	Type       RelationType
	Strength   float64
	Confidence float64
}

func mergeEvidence(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, e := range existing {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	for _, e := range incoming {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
