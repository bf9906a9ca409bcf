package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string `json:"name"`
}

func TestJSON_RoundTrip(t *testing.T) {
	f := NewJSON()
	assert.True(t, f.Supports("application/json"))
	assert.True(t, f.Supports("application/vnd.api+json"))
	assert.False(t, f.Supports("application/x-protobuf"))

	data, err := f.Encode(widget{Name: "bolt"})
	require.NoError(t, err)

	var out widget
	require.NoError(t, f.Decode(data, &out))
	assert.Equal(t, "bolt", out.Name)
}

func TestSelector_FirstMatch(t *testing.T) {
	sel := NewSelector(NewJSON(), NewProto())

	f, ok := sel.Select("application/json")
	require.True(t, ok)
	assert.Equal(t, "json", f.Name())

	f, ok = sel.Select("application/x-protobuf")
	require.True(t, ok)
	assert.Equal(t, "proto", f.Name())

	_, ok = sel.Select("text/plain")
	assert.False(t, ok)
}
