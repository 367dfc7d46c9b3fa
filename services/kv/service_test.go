package kv

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr())})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, mr
}

func idParams(id string) ldvalue.Value {
	return ldvalue.ObjectBuild().Set("id", ldvalue.String(id)).Build()
}

func statusOf(t *testing.T, err error) int {
	var se *fetchr.StatusError
	require.True(t, errors.As(err, &se), "expected StatusError, got %v", err)
	return se.StatusCode
}

func testServiceLifecycle(t *testing.T, store Store) {
	ctx := context.Background()
	s := New("", store)
	assert.Equal(t, DefaultName, s.Name())

	body := ldvalue.ObjectBuild().Set("name", ldvalue.String("widget")).Build()
	created, err := s.Create(ctx, fetchr.Request{Params: idParams("w1"), Body: body})
	require.NoError(t, err)
	assert.Equal(t, servicedef.ResponseMeta{StatusCode: 201}, created.Meta)
	assert.Equal(t, "w1", created.Data.GetByKey("id").StringValue())

	read, err := s.Read(ctx, fetchr.Request{Params: idParams("w1")})
	require.NoError(t, err)
	assert.JSONEq(t, body.JSONString(), read.Data.GetByKey("value").JSONString())
	assert.Equal(t, "private", read.Meta.Headers["Cache-Control"])

	updatedBody := ldvalue.ObjectBuild().Set("name", ldvalue.String("gadget")).Build()
	_, err = s.Update(ctx, fetchr.Request{Params: idParams("w1"), Body: updatedBody})
	require.NoError(t, err)
	read, err = s.Read(ctx, fetchr.Request{Params: idParams("w1")})
	require.NoError(t, err)
	assert.Equal(t, "gadget", read.Data.GetByKey("value").GetByKey("name").StringValue())

	deleted, err := s.Delete(ctx, fetchr.Request{Params: idParams("w1")})
	require.NoError(t, err)
	assert.True(t, deleted.Data.GetByKey("deleted").BoolValue())

	deleted, err = s.Delete(ctx, fetchr.Request{Params: idParams("w1")})
	require.NoError(t, err)
	assert.False(t, deleted.Data.GetByKey("deleted").BoolValue())

	_, err = s.Read(ctx, fetchr.Request{Params: idParams("w1")})
	assert.Equal(t, 404, statusOf(t, err))
	_, err = s.Update(ctx, fetchr.Request{Params: idParams("w1"), Body: body})
	assert.Equal(t, 404, statusOf(t, err))
}

func TestServiceWithMemoryStore(t *testing.T) {
	testServiceLifecycle(t, NewMemoryStore())
}

func TestServiceWithRedisStore(t *testing.T) {
	store, mr := setupRedisStore(t)
	testServiceLifecycle(t, store)
	assert.Empty(t, mr.Keys())
}

func TestCreateGeneratesID(t *testing.T) {
	s := New("items", NewMemoryStore())
	result, err := s.Create(context.Background(), fetchr.Request{Body: ldvalue.Int(1)})
	require.NoError(t, err)
	id := result.Data.GetByKey("id").StringValue()
	assert.Len(t, id, 36)

	read, err := s.Read(context.Background(), fetchr.Request{Params: idParams(id)})
	require.NoError(t, err)
	assert.Equal(t, 1, read.Data.GetByKey("value").IntValue())
}

func TestValidationErrors(t *testing.T) {
	ctx := context.Background()
	s := New("items", NewMemoryStore())

	_, err := s.Create(ctx, fetchr.Request{})
	assert.Equal(t, 400, statusOf(t, err))
	_, err = s.Read(ctx, fetchr.Request{})
	assert.Equal(t, 400, statusOf(t, err))
	_, err = s.Update(ctx, fetchr.Request{Params: idParams("x")})
	assert.Equal(t, 400, statusOf(t, err))
	_, err = s.Delete(ctx, fetchr.Request{})
	assert.Equal(t, 400, statusOf(t, err))
}

func TestRedisStoreUsesKeyPrefix(t *testing.T) {
	store, mr := setupRedisStore(t)
	require.NoError(t, store.Put(context.Background(), "a", ldvalue.String("x")))
	got, err := mr.Get("fetchr:kv:a")
	require.NoError(t, err)
	assert.Equal(t, `"x"`, got)

	_, err = store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewRedisStoreFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(RedisOptions{URL: "redis://" + addr})
	assert.Error(t, err)
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(RedisOptions{URL: "not a url"})
	assert.Error(t, err)
}
