package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID(t *testing.T) {
	id := NewULID()
	assert.False(t, id.IsZero(), "NewULID should generate a non-zero ID")

	id2 := NewULID()
	assert.NotEqual(t, id, id2, "two NewULID calls should produce different IDs")
}

func TestParseULID(t *testing.T) {
	t.Run("valid ULID string", func(t *testing.T) {
		original := NewULID()
		parsed, err := ParseULID(original.String())
		require.NoError(t, err)
		assert.Equal(t, original, parsed)
	})

	t.Run("invalid ULID string", func(t *testing.T) {
		_, err := ParseULID("not-a-valid-ulid")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid ULID")
	})

	t.Run("empty string", func(t *testing.T) {
		_, err := ParseULID("")
		assert.Error(t, err)
	})
}

func TestMustParseULID(t *testing.T) {
	t.Run("valid string does not panic", func(t *testing.T) {
		original := NewULID()
		assert.Equal(t, original, MustParseULID(original.String()))
	})

	t.Run("invalid string panics", func(t *testing.T) {
		assert.Panics(t, func() { MustParseULID("not-a-valid-ulid") })
	})
}

func TestULID_String_Roundtrip(t *testing.T) {
	original := NewULID()
	s := original.String()
	assert.Len(t, s, 26, "ULID string should be 26 characters")

	parsed, err := ParseULID(s)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestULID_IsZero(t *testing.T) {
	t.Run("zero ULID", func(t *testing.T) {
		var zero ULID
		assert.True(t, zero.IsZero())
	})

	t.Run("non-zero ULID", func(t *testing.T) {
		id := NewULID()
		assert.False(t, id.IsZero())
	})
}

func TestULID_JSON_Roundtrip(t *testing.T) {
	type wrapper struct {
		ID ULID `json:"id"`
	}

	t.Run("non-zero roundtrip", func(t *testing.T) {
		original := wrapper{ID: NewULID()}
		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded wrapper
		err = json.Unmarshal(data, &decoded)
		require.NoError(t, err)
		assert.Equal(t, original.ID, decoded.ID)
	})

	t.Run("zero roundtrip marshals to null", func(t *testing.T) {
		original := wrapper{}
		data, err := json.Marshal(original)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"id":null`)

		var decoded wrapper
		err = json.Unmarshal(data, &decoded)
		require.NoError(t, err)
		assert.True(t, decoded.ID.IsZero())
	})

	t.Run("invalid JSON format errors", func(t *testing.T) {
		var u ULID
		err := json.Unmarshal([]byte("12345"), &u)
		assert.Error(t, err)
	})
}
