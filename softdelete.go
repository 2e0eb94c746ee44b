package fluent

import (
	"context"
	"time"
)

// SoftDelete marks m as deleted by setting its deletion marker to the
// current time and updating the row. The row is kept and the delete
// hooks do not run. It fails with notSoftDeletable if the entity has no
// marker, and with idRequired if m has no identifier.
func (e *Entity[M, ID]) SoftDelete(ctx context.Context, conn Connection, m *M) error {
	return e.mark(ctx, conn, m, e.timestamp())
}

// Restore clears the deletion marker of m and updates the row.
func (e *Entity[M, ID]) Restore(ctx context.Context, conn Connection, m *M) error {
	return e.mark(ctx, conn, m, nil)
}

// IsSoftDeleted reports whether m carries a deletion marker.
func (e *Entity[M, ID]) IsSoftDeleted(m *M) bool {
	return e.deletedAt != nil && *e.deletedAt.key(m) != nil
}

func (e *Entity[M, ID]) mark(ctx context.Context, conn Connection, m *M, at *time.Time) error {
	d := e.deletedAt
	if d == nil {
		return errNotSoftDeletable(e.name)
	}
	id, err := e.RequireID(m)
	if err != nil {
		return err
	}
	key := d.key(m)
	prev := *key
	*key = at
	var value any
	if at != nil {
		value = *at
	}
	if err := e.update(ctx, conn, id, []string{d.name}, []any{value}); err != nil {
		*key = prev
		return err
	}
	return nil
}
