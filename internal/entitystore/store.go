package entitystore

import "context"

// HotEntity is one row of get_hot_entities: an entity plus its mention
// trend over the requested window compared to the prior equal-length window.
type HotEntity struct {
	Entity       Entity
	WindowMentions int
	Trend        Trend
}

// TimelineEntry is one chronologically-ordered mention returned by
// get_entity_timeline.
type TimelineEntry struct {
	Mention   EntityMention
	EventTime string
}

// NetworkNode is one entity reached by a BFS ego-network walk, tagged with
// its distance from the origin.
type NetworkNode struct {
	Entity Entity
	Depth  int
}

// NetworkEdge is one relation surfaced by get_entity_network.
type NetworkEdge struct {
	Relation EntityRelation
}

// EgoNetwork is the result of get_entity_network: the nodes and edges
// reachable from the origin entity within the requested depth.
type EgoNetwork struct {
	Nodes []NetworkNode
	Edges []NetworkEdge
}

// Store is the Entity Store contract: alias resolution, mention recording,
// and relation upserts for the entity graph.
type Store interface {
	// ProcessExtracted atomically resolves aliases (create-on-miss),
	// records mentions, and upserts relations for one information unit's
	// extracted entities and relations. Returns extracted name -> entity id.
	ProcessExtracted(ctx context.Context, unitID string, entities []ExtractedEntity, relations []ExtractedRelation, eventTime string) (map[string]string, error)

	GetEntity(ctx context.Context, id string) (*Entity, error)
	ResolveAlias(ctx context.Context, name string) (string, bool, error)

	// GetHotEntities returns the top-N entities by mention count within the
	// last `days` days, each tagged with a trend computed against the prior
	// equal-length window.
	GetHotEntities(ctx context.Context, days int, limit int) ([]HotEntity, error)

	// GetEntityTimeline returns an entity's mentions between start and end,
	// chronologically ordered, optionally filtered to the given state
	// dimensions, bounded to limit.
	GetEntityTimeline(ctx context.Context, id string, start, end string, dimensions []string, limit int) ([]TimelineEntry, error)

	// GetEntityNetwork returns the BFS ego-network rooted at id out to depth.
	GetEntityNetwork(ctx context.Context, id string, depth int) (*EgoNetwork, error)
}
