// Package fluent maps Go structs to database rows.
//
// A model is a struct embedding Schema, with an optional identifier field:
//
//	type Planet struct {
//		fluent.Schema
//		ID        *int64
//		Name      string
//		CreatedAt *time.Time
//		UpdatedAt *time.Time
//	}
//
//	func (p *Planet) TimestampFields() (createdAt, updatedAt **time.Time) {
//		return &p.CreatedAt, &p.UpdatedAt
//	}
//
// Exported fields map to snake_case columns unless tagged with
// `fluent:"name"` or `fluent:"-"`. The Entity describes the model and runs
// its operations:
//
//	var Planets = fluent.MustNewEntity(func(p *Planet) **int64 { return &p.ID })
//
//	p := &Planet{Name: "Earth"}
//	err := Planets.Save(ctx, conn, p) // create, p.ID is set
//	p.Name = "Terra"
//	err = Planets.Save(ctx, conn, p) // update
//
// Queries are immutable values:
//
//	name := fluent.Where(func(p *Planet) *string { return &p.Name })
//	planets, err := Planets.Query(conn).Filter(name.HasPrefix("E")).Sort(fluent.Asc(func(p *Planet) *string { return &p.Name })).All(ctx)
//
// Models override the hooks of Schema (WillCreate, DidCreate, WillRead,
// WillUpdate, DidUpdate, WillDelete, DidDelete) to run code around
// operations. An error from a Will hook aborts the operation.
//
// Backends implement Connection and Database; dialect/sql provides one for
// database/sql. Pools are registered in a Container under typed DatabaseIDs:
//
//	primary := fluent.NewDatabaseID[*sql.Pool]("primary")
//	fluent.Register(container, primary, pool)
//	Planets.SetDefaultDatabase(primary)
//	earth, err := Planets.Make(ctx, container, "1")
package fluent
