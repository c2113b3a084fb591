package redisstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstack/core"
)

var (
	_ core.RecordStore = (*Store)(nil)
	_ core.FileStore   = (*Store)(nil)
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, func(o *Options) { o.Prefix = "test:" }), mr
}

func TestStore_Records(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Put(ctx, core.EntitySession, "s1", core.Record{Type: "Session", Data: json.RawMessage(`{"uuid":"s1"}`)}))
	require.NoError(t, s.Put(ctx, core.EntitySession, "s2", core.Record{Type: "Session", Data: json.RawMessage(`{"uuid":"s2"}`)}))
	require.NoError(t, s.Put(ctx, core.EntitySession, "s1", core.Record{Type: "Session", Data: json.RawMessage(`{"uuid":"s1","v":2}`)}))

	assert.True(t, mr.Exists("test:rec:session:s1"))

	rec, err := s.Get(ctx, core.EntitySession, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Session", rec.Type)
	assert.JSONEq(t, `{"uuid":"s1","v":2}`, string(rec.Data))

	ids, err := s.List(ctx, core.EntitySession)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)

	require.NoError(t, s.Delete(ctx, core.EntitySession, "s1"))
	assert.ErrorIs(t, s.Delete(ctx, core.EntitySession, "s1"), core.ErrNotFound)

	_, err = s.Get(ctx, core.EntitySession, "s1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	ids, err = s.List(ctx, core.EntitySession)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)
}

func TestStore_Files(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	path, err := s.SaveFile(ctx, "owner", []byte("hello"), ".txt")
	require.NoError(t, err)

	data, err := s.LoadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.DeleteFile(ctx, path))
	_, err = s.LoadFile(ctx, path)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.DeleteFile(ctx, path), core.ErrNotFound)
}
