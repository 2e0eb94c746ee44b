package fluent_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/fluent"
)

func TestFluentError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := fluent.NewError(fluent.ModelNotFound, "no galaxies with id 3")
		assert.Equal(t, "fluent: modelNotFound: no galaxies with id 3", err.Error())
		assert.Equal(t, "fluent: idRequired", fluent.ErrIDRequired.Error())

		wrapped := &fluent.FluentError{Identifier: fluent.InvalidID, Reason: "bad", Err: errors.New("cause")}
		assert.Equal(t, "fluent: invalidID: bad: cause", wrapped.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := fluent.NewError(fluent.NoDefaultDatabase, "none", "configure one")
		assert.ErrorIs(t, err, fluent.ErrNoDefaultDatabase)
		assert.NotErrorIs(t, err, fluent.ErrIDRequired)
		assert.ErrorIs(t, fmt.Errorf("resolving: %w", err), fluent.ErrNoDefaultDatabase)
		assert.Equal(t, []string{"configure one"}, err.SuggestedFixes)
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("cause")
		err := &fluent.FluentError{Identifier: fluent.InvalidID, Err: cause}
		assert.ErrorIs(t, err, cause)
	})

	t.Run("Helpers", func(t *testing.T) {
		tests := []struct {
			identifier string
			check      func(error) bool
		}{
			{fluent.IDRequired, fluent.IsIDRequired},
			{fluent.NoDefaultDatabase, fluent.IsNoDefaultDatabase},
			{fluent.InvalidID, fluent.IsInvalidID},
			{fluent.InvalidIDType, fluent.IsInvalidIDType},
			{fluent.ModelNotFound, fluent.IsModelNotFound},
		}
		for _, tt := range tests {
			err := fluent.NewError(tt.identifier, "reason")
			assert.True(t, tt.check(err), tt.identifier)
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", err)), tt.identifier)
			assert.True(t, fluent.IsFluentError(err, tt.identifier))
			assert.False(t, tt.check(errors.New("other")))
			assert.False(t, tt.check(nil))
		}
		assert.False(t, fluent.IsIDRequired(fluent.ErrModelNotFound))
	})
}

func TestRollbackError(t *testing.T) {
	cause := errors.New("connection lost")
	err := &fluent.RollbackError{Err: cause}
	assert.Equal(t, "fluent: rollback failed: connection lost", err.Error())
	require.ErrorIs(t, err, cause)

	joined := errors.Join(errors.New("boom"), err)
	var rerr *fluent.RollbackError
	require.ErrorAs(t, joined, &rerr)
	assert.Same(t, cause, rerr.Err)
}

func TestErrTxStarted(t *testing.T) {
	assert.EqualError(t, fluent.ErrTxStarted, "fluent: cannot start a transaction within a transaction")
}
