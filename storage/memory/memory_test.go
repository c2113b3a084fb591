package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstack/core"
)

// Interface compliance (compile-time assertion)
var (
	_ core.RecordStore = (*Store)(nil)
	_ core.FileStore   = (*Store)(nil)
)

func TestStore_Records(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := core.Record{Type: "Session", Data: json.RawMessage(`{"uuid":"s1"}`)}
	require.NoError(t, s.Put(ctx, core.EntitySession, "s1", rec))
	require.NoError(t, s.Put(ctx, core.EntitySession, "s2", rec))

	got, err := s.Get(ctx, core.EntitySession, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Session", got.Type)
	assert.JSONEq(t, `{"uuid":"s1"}`, string(got.Data))

	// returned data is a copy
	got.Data[0] = 'x'
	again, err := s.Get(ctx, core.EntitySession, "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"uuid":"s1"}`, string(again.Data))

	ids, err := s.List(ctx, core.EntitySession)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)

	require.NoError(t, s.Delete(ctx, core.EntitySession, "s1"))
	_, err = s.Get(ctx, core.EntitySession, "s1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, core.EntitySession, "s1"), core.ErrNotFound)

	ids, err = s.List(ctx, core.EntitySession)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)
}

func TestStore_Files(t *testing.T) {
	ctx := context.Background()
	s := New()

	path, err := s.SaveFile(ctx, "owner", []byte("payload"), ".txt")
	require.NoError(t, err)
	assert.Contains(t, path, "owner/")
	assert.Contains(t, path, ".txt")

	data, err := s.LoadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, s.DeleteFile(ctx, path))
	_, err = s.LoadFile(ctx, path)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
