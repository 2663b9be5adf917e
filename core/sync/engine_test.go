package sync

import (
	"context"
	stdsync "sync"
	"testing"

	"civisync/core/civi"
	"civisync/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient records every call and delegates to a scripted handler.
type fakeClient struct {
	mu      stdsync.Mutex
	calls   []civi.Params
	handler func(params civi.Params) (*civi.Result, error)
}

func (f *fakeClient) Call(ctx context.Context, params civi.Params) (*civi.Result, error) {
	f.mu.Lock()
	copied := civi.Params{}
	for key, value := range params {
		copied[key] = value
	}
	f.calls = append(f.calls, copied)
	f.mu.Unlock()
	return f.handler(params)
}

func (f *fakeClient) callCount(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if utils.ToString(call["action"]) == action {
			count++
		}
	}
	return count
}

func emptyResult() (*civi.Result, error) {
	return &civi.Result{Count: 0, Values: []map[string]any{}}, nil
}

func singleResult(values map[string]any) (*civi.Result, error) {
	return &civi.Result{Count: 1, Values: []map[string]any{values}}, nil
}

// remoteStore is a minimal scripted backend: one entity slot per entity type,
// created on the first create call and matched by any later get.
type remoteStore struct {
	mu       stdsync.Mutex
	nextID   int64
	entities map[string]map[string]any
}

func newRemoteStore() *remoteStore {
	return &remoteStore{nextID: 100, entities: map[string]map[string]any{}}
}

func (s *remoteStore) handle(params civi.Params) (*civi.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entityType := utils.ToString(params["entity"])
	switch utils.ToString(params["action"]) {
	case "get":
		if stored, ok := s.entities[entityType]; ok {
			return &civi.Result{Count: 1, Values: []map[string]any{stored}}, nil
		}
		return &civi.Result{Count: 0, Values: []map[string]any{}}, nil
	case "create":
		stored, ok := s.entities[entityType]
		if !ok {
			s.nextID++
			stored = map[string]any{"id": utils.ToString(s.nextID)}
			s.entities[entityType] = stored
		}
		for key, value := range params {
			switch key {
			case "entity", "action":
				continue
			}
			stored[key] = utils.ToString(value)
		}
		return &civi.Result{Count: 1, Values: []map[string]any{stored}}, nil
	}
	return &civi.Result{Count: 0, Values: []map[string]any{}}, nil
}

func newTestEngine(client civi.Client) *Engine {
	return NewEngine(client, NewLookup(), zap.NewNop())
}

func TestGetEntity_NoPrimaryKey(t *testing.T) {
	client := &fakeClient{handler: func(civi.Params) (*civi.Result, error) { return emptyResult() }}
	eng := newTestEngine(client)

	_, err := eng.GetEntity(context.Background(), "Contact", map[string]any{"first_name": "Anna"}, nil)
	require.ErrorIs(t, err, ErrNoPrimaryKey)
	assert.Empty(t, client.calls, "no remote call without a usable primary key")
}

func TestGetEntity_Ambiguous(t *testing.T) {
	client := &fakeClient{handler: func(civi.Params) (*civi.Result, error) {
		return &civi.Result{Count: 2, Values: []map[string]any{{"id": "1"}, {"id": "2"}}}, nil
	}}
	eng := newTestEngine(client)

	_, err := eng.GetEntity(context.Background(), "Contact", map[string]any{"external_identifier": "X"}, nil)
	require.ErrorIs(t, err, ErrAmbiguous)
}

func TestGetEntity_NotFound(t *testing.T) {
	client := &fakeClient{handler: func(civi.Params) (*civi.Result, error) { return emptyResult() }}
	eng := newTestEngine(client)

	entity, err := eng.GetEntity(context.Background(), "Contact", map[string]any{"external_identifier": "X"}, nil)
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestGetEntity_QueryUsesOnlyPrimarySubset(t *testing.T) {
	client := &fakeClient{handler: func(params civi.Params) (*civi.Result, error) {
		return singleResult(map[string]any{"id": "9", "external_identifier": "X"})
	}}
	eng := newTestEngine(client)

	entity, err := eng.GetEntity(context.Background(), "Contact",
		map[string]any{"external_identifier": "X", "first_name": "Anna"}, nil)
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, int64(9), entity.ID())

	require.Len(t, client.calls, 1)
	query := client.calls[0]
	assert.Equal(t, "X", query["external_identifier"])
	assert.NotContains(t, query, "first_name")
}

func TestCreateOrUpdate_CreatesWhenMissing(t *testing.T) {
	store := newRemoteStore()
	client := &fakeClient{handler: store.handle}
	eng := newTestEngine(client)

	entity, err := eng.CreateOrUpdate(context.Background(), "Contact",
		map[string]any{"external_identifier": "X", "first_name": "Anna"}, PolicyUpdate, nil)
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.NotZero(t, entity.ID(), "remote-assigned identifier becomes part of the entity")
	assert.Equal(t, 1, client.callCount("create"))
}

func TestCreateOrUpdate_SecondRunIssuesNoWrite(t *testing.T) {
	store := newRemoteStore()
	client := &fakeClient{handler: store.handle}
	eng := newTestEngine(client)

	attrs := map[string]any{"external_identifier": "X", "first_name": "Anna", "city": "Berlin"}

	first, err := eng.CreateOrUpdate(context.Background(), "Contact", attrs, PolicyUpdate, nil)
	require.NoError(t, err)

	second, err := eng.CreateOrUpdate(context.Background(), "Contact", attrs, PolicyUpdate, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, 1, client.callCount("create"), "identical attributes must compute an empty delta")
}

func TestCreateOrUpdate_UpdateWritesOnlyDelta(t *testing.T) {
	client := &fakeClient{}
	client.handler = func(params civi.Params) (*civi.Result, error) {
		if utils.ToString(params["action"]) == "get" {
			return singleResult(map[string]any{"id": "9", "external_identifier": "X", "first_name": "Anna", "city": "Berlin"})
		}
		return singleResult(map[string]any{"id": "9", "external_identifier": "X", "first_name": "Anne", "city": "Berlin"})
	}
	eng := newTestEngine(client)

	_, err := eng.CreateOrUpdate(context.Background(), "Contact",
		map[string]any{"external_identifier": "X", "first_name": "Anne", "city": "Berlin"}, PolicyUpdate, nil)
	require.NoError(t, err)

	require.Equal(t, 1, client.callCount("create"))
	write := client.calls[len(client.calls)-1]
	assert.Equal(t, "Anne", write["first_name"])
	assert.NotContains(t, write, "city", "unchanged attributes must not be re-sent")
	assert.Equal(t, int64(9), utils.ToInt64(write["id"]))
}

func TestCreateOrUpdate_FillPreservesRemoteValues(t *testing.T) {
	client := &fakeClient{}
	client.handler = func(params civi.Params) (*civi.Result, error) {
		if utils.ToString(params["action"]) == "get" {
			return singleResult(map[string]any{"id": "9", "external_identifier": "X", "first_name": "Anna"})
		}
		return singleResult(map[string]any{"id": "9"})
	}
	eng := newTestEngine(client)

	_, err := eng.CreateOrUpdate(context.Background(), "Contact",
		map[string]any{"external_identifier": "X", "first_name": "Anne", "city": "Berlin"}, PolicyFill, nil)
	require.NoError(t, err)

	write := client.calls[len(client.calls)-1]
	assert.NotContains(t, write, "first_name")
	assert.Equal(t, "Berlin", write["city"])
}

func TestCreateOrUpdate_Ambiguous(t *testing.T) {
	client := &fakeClient{handler: func(civi.Params) (*civi.Result, error) {
		return &civi.Result{Count: 2, Values: []map[string]any{{"id": "1"}, {"id": "2"}}}, nil
	}}
	eng := newTestEngine(client)

	_, err := eng.CreateOrUpdate(context.Background(), "Contact",
		map[string]any{"external_identifier": "X"}, PolicyUpdate, nil)
	require.ErrorIs(t, err, ErrAmbiguous)
	assert.Equal(t, 0, client.callCount("create"))
}

func TestStore_EmptyDeltaIssuesNoCall(t *testing.T) {
	client := &fakeClient{handler: func(civi.Params) (*civi.Result, error) { return emptyResult() }}
	eng := newTestEngine(client)

	entity := newEntity("Contact", map[string]any{"id": "9", "first_name": "Anna"})
	require.NoError(t, eng.Store(context.Background(), entity))
	assert.Empty(t, client.calls)
}

func TestProbe(t *testing.T) {
	client := &fakeClient{handler: func(civi.Params) (*civi.Result, error) { return emptyResult() }}
	eng := newTestEngine(client)
	assert.True(t, eng.Probe(context.Background()))

	client.handler = func(civi.Params) (*civi.Result, error) {
		return nil, &civi.APIError{Message: "authentication failed"}
	}
	assert.False(t, eng.Probe(context.Background()))
}

func TestLoad(t *testing.T) {
	client := &fakeClient{handler: func(params civi.Params) (*civi.Result, error) {
		if utils.ToInt64(params["id"]) == 9 {
			return singleResult(map[string]any{"id": "9", "first_name": "Anna"})
		}
		return emptyResult()
	}}
	eng := newTestEngine(client)

	entity, err := eng.Load(context.Background(), "Contact", 9)
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "Anna", entity.GetString("first_name"))

	missing, err := eng.Load(context.Background(), "Contact", 10)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetOrCreateTagID(t *testing.T) {
	store := newRemoteStore()
	client := &fakeClient{handler: store.handle}
	eng := newTestEngine(client)

	id, err := eng.GetOrCreateTagID(context.Background(), "donor", "imported donors")
	require.NoError(t, err)
	assert.NotZero(t, id)

	again, err := eng.GetOrCreateTagID(context.Background(), "donor", "imported donors")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, client.callCount("create"))
}
