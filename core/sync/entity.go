package sync

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"civisync/core/utils"
)

// Policy selects how local attributes are reconciled into a loaded entity.
type Policy string

const (
	// PolicyUpdate overwrites remote values for every attribute present
	// locally; remote-only attributes are preserved.
	PolicyUpdate Policy = "update"
	// PolicyFill applies local values only to attributes absent or empty on
	// the remote entity; existing non-empty remote values are never touched.
	PolicyFill Policy = "fill"
	// PolicyReplace replaces the entire attribute set; attributes not present
	// locally are cleared.
	PolicyReplace Policy = "replace"
)

// Entity is a remote entity representation. It is either new (no identifier
// yet) or loaded (identifier known, attributes reflect the last-known remote
// state). Local modifications accumulate as a delta until stored.
type Entity struct {
	// Type is the remote entity type, e.g. "Contact" or "SepaMandate".
	Type string

	attrs map[string]any
	dirty map[string]any
}

func newEntity(entityType string, attrs map[string]any) *Entity {
	copied := make(map[string]any, len(attrs))
	for key, value := range attrs {
		copied[key] = value
	}
	return &Entity{
		Type:  entityType,
		attrs: copied,
		dirty: make(map[string]any),
	}
}

// ID returns the remote identifier, or 0 for a new entity.
func (e *Entity) ID() int64 {
	return utils.ToInt64(e.attrs["id"])
}

// Get returns the current value of an attribute, preferring a pending local
// modification over the last-known remote state.
func (e *Entity) Get(key string) any {
	if value, ok := e.dirty[key]; ok {
		return value
	}
	return e.attrs[key]
}

// GetString returns the current attribute value coerced to a string.
func (e *Entity) GetString(key string) string {
	return utils.ToString(e.Get(key))
}

// GetInt returns the current attribute value coerced to an int64.
func (e *Entity) GetInt(key string) int64 {
	return utils.ToInt64(e.Get(key))
}

// Set records a local modification. Values that compare equal to the
// last-known remote state do not enter the delta; setting an attribute back
// to its remote value removes it from the delta again.
func (e *Entity) Set(key string, value any) {
	if current, ok := e.attrs[key]; ok && equalValue(current, value) {
		delete(e.dirty, key)
		return
	}
	if !valuePresent(e.attrs, key) && isEmpty(value) {
		// Clearing an attribute the remote never had is not a change.
		delete(e.dirty, key)
		return
	}
	e.dirty[key] = value
}

// Delta returns the sorted attribute names whose locally-desired value
// differs from the last-known remote value.
func (e *Entity) Delta() []string {
	keys := make([]string, 0, len(e.dirty))
	for key := range e.dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Reconcile applies the merge policy to fold the local attribute set into the
// entity and returns the resulting delta size. An empty delta means no remote
// write is necessary.
func (e *Entity) Reconcile(policy Policy, attrs map[string]any) (int, error) {
	switch policy {
	case PolicyUpdate:
		for key, value := range attrs {
			e.Set(key, value)
		}
	case PolicyFill:
		for key, value := range attrs {
			if isEmpty(e.Get(key)) {
				e.Set(key, value)
			}
		}
	case PolicyReplace:
		for key, value := range attrs {
			e.Set(key, value)
		}
		for key := range e.attrs {
			if key == "id" {
				continue
			}
			if _, present := attrs[key]; !present {
				e.Set(key, "")
			}
		}
	default:
		return 0, fmt.Errorf("bad merge policy %q: must be update, fill or replace", policy)
	}
	return len(e.dirty), nil
}

// absorb replaces the last-known remote state with a fresh reply and clears
// the delta.
func (e *Entity) absorb(attrs map[string]any) {
	fresh := make(map[string]any, len(attrs))
	for key, value := range attrs {
		fresh[key] = value
	}
	e.attrs = fresh
	e.dirty = make(map[string]any)
}

// commit folds the delta into the last-known remote state after a successful
// write that returned no entity body.
func (e *Entity) commit() {
	for key, value := range e.dirty {
		e.attrs[key] = value
	}
	e.dirty = make(map[string]any)
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s[%d]", e.Type, e.ID())
}

func valuePresent(attrs map[string]any, key string) bool {
	_, ok := attrs[key]
	return ok
}

func isEmpty(value any) bool {
	return value == nil || utils.ToString(value) == ""
}

// equalValue compares two attribute values after normalization. Date values
// stored by the remote system come back in a different layout than import
// sources provide, so values that parse under known date layouts compare as
// instants rather than strings. Numeric values compare as numbers, so "25.50"
// equals 25.5.
func equalValue(a, b any) bool {
	as := utils.ToString(a)
	bs := utils.ToString(b)
	if as == bs {
		return true
	}

	if at, ok := parseDate(as); ok {
		bt, ok := parseDate(bs)
		return ok && at.Equal(bt)
	}

	if af, err := strconv.ParseFloat(as, 64); err == nil {
		if bf, err := strconv.ParseFloat(bs, 64); err == nil {
			return af == bf
		}
	}

	return false
}

// dateLayouts are the layouts the remote system and common import sources
// produce. The compact 14-digit layout is what the remote store returns for
// timestamp fields.
var dateLayouts = []string{
	"20060102150405",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	if len(s) < 8 || len(s) > 19 {
		return time.Time{}, false
	}
	// Only strings that look like dates are candidates: all digits (compact
	// layout) or containing a dash (ISO layouts).
	if !strings.Contains(s, "-") {
		if len(s) != 14 {
			return time.Time{}, false
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return time.Time{}, false
			}
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
