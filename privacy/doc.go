// Package privacy provides rules and policies authorizing the queries and
// mutations of fluent entities before they reach the database.
//
// Rules return one of three decisions:
//
//   - Allow grants access and stops evaluation
//   - Deny rejects the operation and stops evaluation
//   - Skip continues with the next rule
//
// A policy whose rules all skip allows the operation, so policies usually
// end with AlwaysDenyRule:
//
//	var Posts = fluent.MustNewEntity(func(p *Post) **int64 { return &p.ID },
//		fluent.WithPolicy(privacy.Policy{
//			Query: privacy.QueryPolicy{
//				privacy.HasRole("admin"),
//				privacy.OwnerFilter("author_id"),
//			},
//			Mutation: privacy.MutationPolicy{
//				privacy.DenyIfNoViewer(),
//				privacy.HasRole("admin"),
//				privacy.IsOwner("author_id"),
//				privacy.AlwaysDenyRule(),
//			},
//		}),
//	)
//
// Filter rules (FilterFunc, OwnerFilter, TenantFilter) narrow queries,
// updates and deletes by appending filters. Creates cannot be narrowed and
// are denied by them.
//
// The viewer is stored in the context:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "42", Roles: []string{"user"}})
//	posts, err := Posts.Query(conn).All(ctx)
//
// A denied operation returns the decision, which matches Deny:
//
//	if errors.Is(err, privacy.Deny) { ... }
package privacy
