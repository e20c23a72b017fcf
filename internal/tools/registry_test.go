package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlfinder/voyago/internal/logging"
)

type fakeTool struct {
	name    string
	execute func(ctx context.Context, args json.RawMessage) (any, error)
}

func (f *fakeTool) Declaration() Declaration {
	return Declaration{
		Name:        f.name,
		Description: "fake tool for tests",
		Parameters:  ObjectSchema(map[string]Property{}),
	}
}

func (f *fakeTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	if f.execute != nil {
		return f.execute(ctx, args)
	}
	return map[string]string{"ok": "yes"}, nil
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry(logging.Discard())
	reg.Register(&fakeTool{name: "echo", execute: func(ctx context.Context, args json.RawMessage) (any, error) {
		var in map[string]string
		require.NoError(t, json.Unmarshal(args, &in))
		return in, nil
	}})

	out, err := reg.Execute(context.Background(), "echo", json.RawMessage(`{"x": "1"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"x": "1"}`, string(out))
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewRegistry(logging.Discard())

	_, err := reg.Execute(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Contains(t, err.Error(), "nope")
}

func TestRegistryToolErrorPassesThrough(t *testing.T) {
	wantErr := &UpstreamError{Service: "photon", Message: "down"}
	reg := NewRegistry(logging.Discard())
	reg.Register(&fakeTool{name: "broken", execute: func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, wantErr
	}})

	_, err := reg.Execute(context.Background(), "broken", nil)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.True(t, errors.Is(err, wantErr) || upstream == wantErr)
}

func TestRegistryDeclarationOrder(t *testing.T) {
	reg := NewRegistry(logging.Discard())
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		reg.Register(&fakeTool{name: name})
	}

	decls := reg.Declarations()
	require.Len(t, decls, 3)
	assert.Equal(t, "charlie", decls[0].Name)
	assert.Equal(t, "alpha", decls[1].Name)
	assert.Equal(t, "bravo", decls[2].Name)

	defs := reg.ModelTools()
	require.Len(t, defs, 3)
	assert.Equal(t, "charlie", defs[0].Name)
	assert.NotEmpty(t, defs[0].Parameters)
}

func TestRegistryDuplicatePanics(t *testing.T) {
	reg := NewRegistry(logging.Discard())
	reg.Register(&fakeTool{name: "dup"})

	assert.Panics(t, func() {
		reg.Register(&fakeTool{name: "dup"})
	})
}
