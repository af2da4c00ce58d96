package capability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wayfind/pkg/schema"
)

// echoCapability returns its args, useful for dispatch tests.
type echoCapability struct {
	name    string
	schema  string
	execErr error
	calls   int
}

func (e *echoCapability) Name() string        { return e.name }
func (e *echoCapability) Description() string { return "echo" }
func (e *echoCapability) InputSchema() json.RawMessage {
	if e.schema == "" {
		return nil
	}
	return json.RawMessage(e.schema)
}

func (e *echoCapability) Execute(_ context.Context, args map[string]any) (*Result, error) {
	e.calls++
	if e.execErr != nil {
		return nil, e.execErr
	}
	data, _ := json.Marshal(args)
	return &Result{Data: data}, nil
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoCapability{name: "zeta"}))
	require.NoError(t, r.Register(&echoCapability{name: "alpha"}))

	assert.True(t, r.Has("alpha"))
	assert.Equal(t, 2, r.Count())

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "zeta", infos[1].Name)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoCapability{name: "dup"}))

	err := r.Register(&echoCapability{name: "dup"})
	require.Error(t, err)

	var wfErr *schema.WayfindError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, schema.ErrCodeConflict, wfErr.Code)
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&echoCapability{name: ""}))
}

func TestRegistry_InvokeUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Invoke(context.Background(), &schema.CapabilityCall{Capability: "ghost"})
	require.Error(t, err)

	var wfErr *schema.WayfindError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, schema.ErrCodeCapability, wfErr.Code)
}

func TestRegistry_InvokeValidatesArgs(t *testing.T) {
	r := NewRegistry()
	cap := &echoCapability{
		name: "strict",
		schema: `{
			"type": "object",
			"required": ["query"],
			"properties": { "query": { "type": "string" } },
			"additionalProperties": false
		}`,
	}
	require.NoError(t, r.Register(cap))

	// Missing required arg never reaches Execute.
	_, err := r.Invoke(context.Background(), &schema.CapabilityCall{Capability: "strict", Args: map[string]any{"bogus": 1}})
	require.Error(t, err)
	assert.Zero(t, cap.calls)

	// Valid args dispatch.
	res, err := r.Invoke(context.Background(), &schema.CapabilityCall{Capability: "strict", Args: map[string]any{"query": "tools"}})
	require.NoError(t, err)
	assert.Equal(t, 1, cap.calls)
	assert.JSONEq(t, `{"query":"tools"}`, string(res.Data))
}

func TestRegistry_InvokeExecutionFailure(t *testing.T) {
	r := NewRegistry()
	cap := &echoCapability{name: "broken", execErr: errors.New("backend exploded")}
	require.NoError(t, r.Register(cap))

	_, err := r.Invoke(context.Background(), &schema.CapabilityCall{Capability: "broken"})
	require.Error(t, err)

	var wfErr *schema.WayfindError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, schema.ErrCodeCapability, wfErr.Code)
	// Deterministic failure: no retries.
	assert.Equal(t, 1, cap.calls)
}

func TestRegistry_InvokeEmptyCall(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), nil)
	assert.Error(t, err)
	_, err = r.Invoke(context.Background(), &schema.CapabilityCall{})
	assert.Error(t, err)
}
