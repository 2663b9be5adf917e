package sync

import (
	"context"
	"fmt"

	"civisync/core/civi"
	"civisync/core/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// defaultPrimaryAttributes are the natural-key candidates used when a caller
// does not name its own.
var defaultPrimaryAttributes = []string{"id", "external_identifier"}

// Engine drives entity reconciliation against a remote CiviCRM instance.
// It owns the remote client, the process-lifetime lookup cache and the logger,
// and is safe for use by concurrent pipelines.
type Engine struct {
	client civi.Client
	cache  Lookup
	log    *zap.Logger
	sf     singleflight.Group
}

// NewEngine creates an engine on top of the given remote client and cache.
func NewEngine(client civi.Client, cache Lookup, log *zap.Logger) *Engine {
	if cache == nil {
		cache = NewLookup()
	}
	return &Engine{
		client: client,
		cache:  cache,
		log:    log,
	}
}

// Probe checks connectivity by fetching a single contact.
func (g *Engine) Probe(ctx context.Context) bool {
	_, err := g.client.Call(ctx, civi.Params{
		"entity":       "Contact",
		"action":       "get",
		"option.limit": 1,
	})
	return err == nil
}

// Load fetches one entity by its remote identifier. Returns (nil, nil) when
// the identifier does not exist.
func (g *Engine) Load(ctx context.Context, entityType string, id int64) (*Entity, error) {
	result, err := g.client.Call(ctx, civi.Params{
		"entity": entityType,
		"action": "get",
		"id":     id,
	})
	if err != nil {
		return nil, err
	}
	if result.Count == 0 {
		return nil, nil
	}
	return newEntity(entityType, result.Values[0]), nil
}

// GetEntity locates a unique entity by the subset of primaryAttrs present in
// attrs. It returns ErrNoPrimaryKey when no primary attribute is present,
// ErrAmbiguous when more than one entity matches, and (nil, nil) when none
// does.
func (g *Engine) GetEntity(ctx context.Context, entityType string, attrs map[string]any, primaryAttrs []string) (*Entity, error) {
	if primaryAttrs == nil {
		primaryAttrs = defaultPrimaryAttributes
	}

	query := civi.Params{}
	for _, key := range primaryAttrs {
		if value, ok := attrs[key]; ok {
			query[key] = value
		}
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%s lookup: %w", entityType, ErrNoPrimaryKey)
	}
	query["entity"] = entityType
	query["action"] = "get"

	result, err := g.client.Call(ctx, query)
	if err != nil {
		return nil, err
	}

	switch {
	case result.Count > 1:
		g.log.Warn("Query result not unique, please provide a more selective key set",
			zap.String("entity", entityType), zap.Int("count", result.Count))
		return nil, fmt.Errorf("%s lookup: %w", entityType, ErrAmbiguous)
	case result.Count == 1:
		return newEntity(entityType, result.Values[0]), nil
	default:
		return nil, nil
	}
}

// CreateEntity issues an unconditional create with the full attribute set and
// returns the persisted entity carrying its remote-assigned identifier.
func (g *Engine) CreateEntity(ctx context.Context, entityType string, attrs map[string]any) (*Entity, error) {
	params := civi.Params{}
	for key, value := range attrs {
		params[key] = value
	}
	params["entity"] = entityType
	params["action"] = "create"

	result, err := g.client.Call(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(result.Values) == 0 {
		return nil, fmt.Errorf("%s create returned no entity", entityType)
	}
	return newEntity(entityType, result.Values[0]), nil
}

// CreateOrUpdate reconciles the local attribute set against the remote store.
// An existing unique match is merged under the given policy and written back
// only when the resulting delta is non-empty; no match creates the entity with
// the full attribute set. More than one match fails with ErrAmbiguous.
func (g *Engine) CreateOrUpdate(ctx context.Context, entityType string, attrs map[string]any, policy Policy, primaryAttrs []string) (*Entity, error) {
	entity, err := g.GetEntity(ctx, entityType, attrs, primaryAttrs)
	if err != nil {
		return nil, err
	}

	if entity == nil {
		return g.CreateEntity(ctx, entityType, attrs)
	}

	if _, err := entity.Reconcile(policy, attrs); err != nil {
		return nil, err
	}
	if err := g.Store(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// Store persists the entity's pending attribute delta. An empty delta issues
// no remote call.
func (g *Engine) Store(ctx context.Context, entity *Entity) error {
	delta := entity.Delta()
	if len(delta) == 0 {
		g.log.Debug("No changes to store", zap.Stringer("entity", entity))
		return nil
	}

	params := civi.Params{
		"entity": entity.Type,
		"action": "create",
	}
	if id := entity.ID(); id != 0 {
		params["id"] = id
	}
	for _, key := range delta {
		params[key] = entity.Get(key)
	}

	result, err := g.client.Call(ctx, params)
	if err != nil {
		return err
	}

	if len(result.Values) > 0 {
		entity.absorb(result.Values[0])
	} else {
		entity.commit()
	}
	return nil
}

// ListEntities returns all entities matching the query attributes, in reply
// order.
func (g *Engine) ListEntities(ctx context.Context, entityType string, query civi.Params) ([]*Entity, error) {
	params := civi.Params{}
	for key, value := range query {
		params[key] = value
	}
	params["entity"] = entityType
	params["action"] = "get"

	result, err := g.client.Call(ctx, params)
	if err != nil {
		return nil, err
	}

	entities := make([]*Entity, 0, len(result.Values))
	for _, values := range result.Values {
		entities = append(entities, newEntity(entityType, values))
	}
	return entities, nil
}

// DeleteEntity removes one entity by its remote identifier.
func (g *Engine) DeleteEntity(ctx context.Context, entityType string, id int64) error {
	_, err := g.client.Call(ctx, civi.Params{
		"entity": entityType,
		"action": "delete",
		"id":     id,
	})
	return err
}

// SetOptionValue creates or updates a value in the given option group and
// caches the resolved identifier.
func (g *Engine) SetOptionValue(ctx context.Context, optionGroupID int64, name string, attrs map[string]any) (int64, error) {
	params := civi.Params{}
	for key, value := range attrs {
		params[key] = value
	}
	params["entity"] = "OptionValue"
	params["action"] = "create"
	params["option_group_id"] = optionGroupID
	params["name"] = name

	result, err := g.client.Call(ctx, params)
	if err != nil {
		return 0, err
	}
	if len(result.Values) == 0 {
		return 0, fmt.Errorf("OptionValue create returned no entity")
	}

	valueID := utils.ToInt64(result.Values[0]["value"])
	g.cache.Store(optionValueCategory(optionGroupID), name, valueID)
	return valueID, nil
}

// GetOrCreateTagID resolves a tag by name, creating it when missing.
func (g *Engine) GetOrCreateTagID(ctx context.Context, name, description string) (int64, error) {
	return g.getOrCreate(ctx, "Tag", "name", name, description, nil)
}

// GetOrCreateGroupID resolves a contact group by title, creating it as a
// mailing group when missing.
func (g *Engine) GetOrCreateGroupID(ctx context.Context, title, description string) (int64, error) {
	return g.getOrCreate(ctx, "Group", "title", title, description, civi.Params{"group_type": "[2]"})
}

func (g *Engine) getOrCreate(ctx context.Context, entityType, keyAttr, keyValue, description string, extra civi.Params) (int64, error) {
	query := civi.Params{
		"entity": entityType,
		"action": "get",
		keyAttr:  keyValue,
	}
	result, err := g.client.Call(ctx, query)
	if err != nil {
		return 0, err
	}
	if result.Count > 1 {
		return 0, fmt.Errorf("%s %q: %w", entityType, keyValue, ErrAmbiguous)
	}
	if result.Count == 1 {
		return utils.ToInt64(result.Values[0]["id"]), nil
	}

	query["action"] = "create"
	if description != "" {
		query["description"] = description
	}
	for key, value := range extra {
		query[key] = value
	}
	result, err = g.client.Call(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(result.Values) == 0 {
		return 0, fmt.Errorf("%s create returned no entity", entityType)
	}
	return utils.ToInt64(result.Values[0]["id"]), nil
}
