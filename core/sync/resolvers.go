package sync

import (
	"context"
	"fmt"
	"strconv"

	"civisync/core/civi"
	"civisync/core/utils"

	"go.uber.org/zap"
)

// ContactID resolves the canonical contact identifier for the given attribute
// set. A present "id" or "contact_id" attribute short-circuits without a
// remote call. Otherwise the subset of primaryAttrs present in attrs forms
// the lookup query; no usable primary attribute resolves to 0. When
// searchDeleted is set and the query did not already constrain the deletion
// state, a miss is retried exactly once with is_deleted=1 to recover
// soft-deleted contacts. An ambiguous match is a hard error: a wrong contact
// identity is unsafe.
func (g *Engine) ContactID(ctx context.Context, attrs map[string]any, primaryAttrs []string, searchDeleted bool) (int64, error) {
	if value, ok := attrs["id"]; ok {
		return utils.ToInt64(value), nil
	}
	if value, ok := attrs["contact_id"]; ok {
		return utils.ToInt64(value), nil
	}

	if primaryAttrs == nil {
		primaryAttrs = []string{"external_identifier"}
	}

	query := civi.Params{}
	for _, key := range primaryAttrs {
		if value, ok := attrs[key]; ok {
			query[key] = value
		}
	}
	if len(query) == 0 {
		g.log.Debug("No primary key provided for contact resolution")
		return 0, nil
	}
	query["entity"] = "Contact"
	query["action"] = "get"
	query["return"] = "contact_id"

	_, constrained := query["is_deleted"]

	// At most two attempts: the plain query and, on a miss, one retry against
	// soft-deleted contacts.
	for attempt := 0; attempt < 2; attempt++ {
		result, err := g.client.Call(ctx, query)
		if err != nil {
			return 0, err
		}
		switch {
		case result.Count > 1:
			return 0, fmt.Errorf("Contact lookup: %w", ErrAmbiguous)
		case result.Count == 1:
			return utils.ToInt64(result.Values[0]["contact_id"]), nil
		}
		if attempt == 0 && searchDeleted && !constrained {
			query["is_deleted"] = "1"
			continue
		}
		break
	}

	g.log.Debug("Contact not found")
	return 0, nil
}

// CampaignID resolves a campaign by the given attribute (usually "title").
func (g *Engine) CampaignID(ctx context.Context, attributeKey, attributeValue string) (int64, error) {
	return g.resolveCached(ctx, "campaign|"+attributeKey, attributeValue, civi.Params{
		"entity":     "Campaign",
		"action":     "get",
		attributeKey: attributeValue,
	}, "id")
}

// CustomFieldID resolves a custom field by its label.
func (g *Engine) CustomFieldID(ctx context.Context, label string) (int64, error) {
	return g.resolveCached(ctx, "custom_field", label, civi.Params{
		"entity": "CustomField",
		"action": "get",
		"label":  label,
	}, "id")
}

// OptionGroupID resolves an option group by name.
func (g *Engine) OptionGroupID(ctx context.Context, name string) (int64, error) {
	return g.resolveCached(ctx, "option_group", name, civi.Params{
		"entity": "OptionGroup",
		"action": "get",
		"name":   name,
	}, "id")
}

// OptionValueID resolves a value within an option group. Note that option
// values resolve through their "value" attribute, not their row id.
func (g *Engine) OptionValueID(ctx context.Context, optionGroupID int64, name string) (int64, error) {
	return g.resolveCached(ctx, optionValueCategory(optionGroupID), name, civi.Params{
		"entity":          "OptionValue",
		"action":          "get",
		"option_group_id": optionGroupID,
		"name":            name,
	}, "value")
}

// LocationTypeID resolves a location type by name.
func (g *Engine) LocationTypeID(ctx context.Context, name string) (int64, error) {
	return g.resolveCached(ctx, "location_type", name, civi.Params{
		"entity": "LocationType",
		"action": "get",
		"name":   name,
	}, "id")
}

// MembershipStatusID resolves a membership status by name.
func (g *Engine) MembershipStatusID(ctx context.Context, name string) (int64, error) {
	return g.resolveCached(ctx, "membership_status", name, civi.Params{
		"entity": "MembershipStatus",
		"action": "get",
		"name":   name,
	}, "id")
}

func optionValueCategory(optionGroupID int64) string {
	return "option_value|" + strconv.FormatInt(optionGroupID, 10)
}

// resolveCached is the uniform reference-data resolution path: cache check,
// singleflight-deduplicated remote lookup, zero/one/many classification,
// permanent caching of the outcome including "not found". More than one match
// degrades to not-found with a warning; reference data never aborts a batch.
func (g *Engine) resolveCached(ctx context.Context, category, key string, query civi.Params, idField string) (int64, error) {
	if id, ok := g.cache.Resolve(category, key); ok {
		return id, nil
	}

	value, err, _ := g.sf.Do(category+"\x00"+key, func() (any, error) {
		if id, ok := g.cache.Resolve(category, key); ok {
			return id, nil
		}

		result, err := g.client.Call(ctx, query)
		if err != nil {
			// Failed lookups are not cached; the next caller retries.
			return int64(0), err
		}

		var id int64
		switch {
		case result.Count > 1:
			g.log.Warn("More than one match for reference lookup, treating as not found",
				zap.String("entity", utils.ToString(query["entity"])),
				zap.String("key", key),
				zap.Int("count", result.Count))
		case result.Count == 1:
			id = utils.ToInt64(result.Values[0][idField])
		}

		g.cache.Store(category, key, id)
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return value.(int64), nil
}
