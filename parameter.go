package fluent

import "context"

// Make resolves a route parameter into a model. It parses param as an
// identifier, finds the model on the default database of M and fails with
// modelNotFound if there is no such row.
//
// A connection cached in ctx by WithConnection or Container.Session is
// reused; otherwise a pooled connection is acquired for the lookup and
// released afterwards.
func (e *Entity[M, ID]) Make(ctx context.Context, c *Container, param string) (*M, error) {
	id, err := ParseID[ID](param)
	if err != nil {
		return nil, err
	}
	ref, err := e.RequireDefaultDatabase()
	if err != nil {
		return nil, err
	}
	var m *M
	err = c.Using(ctx, ref, func(conn Connection) error {
		var err error
		m, err = e.Find(ctx, conn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errModelNotFound(e.name, id)
	}
	return m, nil
}
