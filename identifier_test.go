package fluent

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slug string

func TestParseID(t *testing.T) {
	t.Run("Integers", func(t *testing.T) {
		id, err := ParseID[int64]("42")
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)

		n, err := ParseID[int]("-7")
		require.NoError(t, err)
		assert.Equal(t, -7, n)

		u, err := ParseID[uint8]("255")
		require.NoError(t, err)
		assert.Equal(t, uint8(255), u)

		_, err = ParseID[uint8]("256")
		require.ErrorIs(t, err, ErrInvalidID, "out of range for the type")
		_, err = ParseID[uint]("-1")
		require.ErrorIs(t, err, ErrInvalidID)
		_, err = ParseID[int64]("4x")
		require.ErrorIs(t, err, ErrInvalidID)
		assert.Contains(t, err.Error(), `"4x"`)
		assert.Contains(t, err.Error(), "int64")
	})

	t.Run("Strings", func(t *testing.T) {
		s, err := ParseID[string]("andromeda")
		require.NoError(t, err)
		assert.Equal(t, "andromeda", s)

		sl, err := ParseID[slug]("milky-way")
		require.NoError(t, err)
		assert.Equal(t, slug("milky-way"), sl)
	})

	t.Run("TextUnmarshaler", func(t *testing.T) {
		want := uuid.New()
		id, err := ParseID[uuid.UUID](want.String())
		require.NoError(t, err)
		assert.Equal(t, want, id)

		_, err = ParseID[uuid.UUID]("not-a-uuid")
		require.ErrorIs(t, err, ErrInvalidID)
		var fe *FluentError
		require.ErrorAs(t, err, &fe)
		assert.NotNil(t, fe.Err, "the parse failure is kept as cause")
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := ParseID[float64]("1.5")
		require.ErrorIs(t, err, ErrInvalidIDType)
		assert.True(t, IsInvalidIDType(err))
		_, err = ParseID[struct{ A, B int }]("1")
		require.ErrorIs(t, err, ErrInvalidIDType)
	})
}

func TestDatabaseID(t *testing.T) {
	id := NewDatabaseID[*fakeDB]("primary")
	assert.Equal(t, "primary", id.Name())
	assert.Equal(t, "primary", id.String())
	var ref DatabaseRef = id
	assert.Equal(t, "primary", ref.Name())
	assert.Equal(t, id, NewDatabaseID[*fakeDB]("primary"), "identifiers compare by name and type")
}
