package sentriq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type encSample struct {
	Name  string         `json:"name"`
	Count int            `json:"count"`
	Tags  []string       `json:"tags"`
	Meta  map[string]int `json:"meta"`
}

func TestJSONEncoder_RoundTrip(t *testing.T) {
	enc := &JSONEncoder{}
	in := encSample{
		Name:  "report",
		Count: 3,
		Tags:  []string{"a", "b"},
		Meta:  map[string]int{"x": 1, "y": 2},
	}
	raw, err := enc.Encode(in)
	require.NoError(t, err)

	var out encSample
	require.NoError(t, enc.Decode(raw, &out))
	assert.Equal(t, in, out)
}

func TestJSONEncoder_DeterministicMapOrder(t *testing.T) {
	// Cache keys hash the encoded form, so equal maps must encode to equal
	// bytes regardless of insertion order.
	enc := &JSONEncoder{}
	a := map[string]int{"alpha": 1, "beta": 2, "gamma": 3}
	b := map[string]int{"gamma": 3, "alpha": 1, "beta": 2}

	ra, err := enc.Encode(a)
	require.NoError(t, err)
	rb, err := enc.Encode(b)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestJSONEncoder_EncodeError(t *testing.T) {
	enc := &JSONEncoder{}
	_, err := enc.Encode(make(chan int))
	assert.Error(t, err)
}

func TestJSONEncoder_DecodeError(t *testing.T) {
	enc := &JSONEncoder{}
	var out encSample
	assert.Error(t, enc.Decode([]byte("{not json"), &out))
}
