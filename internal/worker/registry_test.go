package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/neematajs/neemata-go/internal/errors"
)

func sampleProcedure(name string) *Procedure {
	return &Procedure{
		Name: name,
		Handler: func(ctx context.Context, call *Call, input any) (any, error) {
			return input, nil
		},
	}
}

func TestRegistry_LoadAndLookup(t *testing.T) {
	r := NewRegistry(testLogger())
	m := NewModule("orders")
	m.Procedure(sampleProcedure("create"))
	m.Task(&Task{Name: "reindex", Fn: func(ctx context.Context, call *Call, args any) (any, error) { return nil, nil }})
	r.Register(m)

	require.NoError(t, r.Load())
	assert.True(t, r.Loaded())

	p, err := r.Procedure("orders.create")
	require.NoError(t, err)
	assert.Equal(t, "create", p.Name)

	_, err = r.Task("orders.reindex")
	require.NoError(t, err)

	_, err = r.Procedure("orders.missing")
	re, ok := errspkg.As(err, errspkg.NotFound)
	require.True(t, ok)
	assert.Equal(t, errspkg.NotFound, re.Kind)
}

func TestRegistry_LoadDetectsDuplicateProcedure(t *testing.T) {
	r := NewRegistry(testLogger())
	m := NewModule("orders")
	m.Procedure(sampleProcedure("create"))
	m.Procedure(sampleProcedure("create"))
	r.Register(m)

	err := r.Load()
	require.Error(t, err)
	_, ok := errspkg.As(err, errspkg.DuplicateName)
	assert.True(t, ok)
}

func TestRegistry_LookupBeforeLoadFails(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Procedure("anything")
	assert.ErrorIs(t, err, errspkg.ErrRegistryNotLoaded)
}

func TestRegistry_LoadClearLoadIsIdempotentOnNames(t *testing.T) {
	r := NewRegistry(testLogger())
	m := NewModule("orders")
	m.Procedure(sampleProcedure("create"))
	r.Register(m)

	require.NoError(t, r.Load())
	first := r.ProcedureNames()

	r.Clear()
	assert.False(t, r.Loaded())

	require.NoError(t, r.Load())
	second := r.ProcedureNames()

	assert.Equal(t, first, second)
}
