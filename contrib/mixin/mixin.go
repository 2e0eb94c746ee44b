// Package mixin provides structs to embed in fluent models for common
// columns. The columns of an embedded struct are flattened into the model,
// and its TimestampFields and DeletedAtField methods are picked up by
// fluent.NewEntity.
//
// Available mixins:
//   - CreateTime: created_at timestamp
//   - UpdateTime: updated_at timestamp
//   - Time: created_at and updated_at timestamps
//   - SoftDelete: deleted_at deletion marker
//   - TimeSoftDelete: Time and SoftDelete
//   - TenantID: tenant_id column for multi-tenancy
//   - UUID: uuid primary key generated on create
//
// Usage:
//
//	type User struct {
//		fluent.Schema
//		mixin.TimeSoftDelete
//		ID   *int64
//		Name string
//	}
//
//	var Users = fluent.MustNewEntity(func(u *User) **int64 { return &u.ID })
//
// Embed at most one timestamp mixin per model.
package mixin

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/fluent"
)

// CreateTime adds the created_at column, set when the model is created.
type CreateTime struct {
	CreatedAt *time.Time
}

// TimestampFields reports created_at as the creation timestamp.
func (c *CreateTime) TimestampFields() (createdAt, updatedAt **time.Time) {
	return &c.CreatedAt, nil
}

// UpdateTime adds the updated_at column, set on every create and update.
type UpdateTime struct {
	UpdatedAt *time.Time
}

// TimestampFields reports updated_at as the update timestamp.
func (u *UpdateTime) TimestampFields() (createdAt, updatedAt **time.Time) {
	return nil, &u.UpdatedAt
}

// Time adds the created_at and updated_at columns.
type Time struct {
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

// TimestampFields reports the creation and update timestamps.
func (t *Time) TimestampFields() (createdAt, updatedAt **time.Time) {
	return &t.CreatedAt, &t.UpdatedAt
}

// SoftDelete adds the nullable deleted_at column. Models embedding it are
// soft deletable: Entity.SoftDelete sets the marker instead of removing the
// row, and queries may exclude marked rows with ExcludeSoftDeleted.
type SoftDelete struct {
	DeletedAt *time.Time
}

// DeletedAtField reports deleted_at as the deletion marker.
func (s *SoftDelete) DeletedAtField() **time.Time {
	return &s.DeletedAt
}

// Deleted reports whether the model is marked as deleted.
func (s *SoftDelete) Deleted() bool {
	return s.DeletedAt != nil
}

// TimeSoftDelete composes Time and SoftDelete.
type TimeSoftDelete struct {
	Time
	SoftDelete
}

// TenantID adds the tenant_id column. Combine it with privacy.TenantFilter
// and privacy.TenantRule for row-level tenant isolation:
//
//	fluent.WithPolicy(privacy.Policy{
//		Query:    privacy.QueryPolicy{privacy.TenantFilter("tenant_id")},
//		Mutation: privacy.MutationPolicy{privacy.TenantRule("tenant_id")},
//	})
type TenantID struct {
	TenantID string
}

// UUID adds a uuid primary key, generated on create when unset. It embeds
// fluent.Schema and replaces it in the model:
//
//	type Device struct {
//		mixin.UUID
//		Name string
//	}
//
//	var Devices = fluent.MustNewEntity(func(d *Device) **uuid.UUID { return &d.ID })
type UUID struct {
	fluent.Schema
	ID *uuid.UUID
}

// WillCreate generates the identifier.
func (u *UUID) WillCreate(context.Context, fluent.Connection) error {
	if u.ID == nil {
		id := uuid.New()
		u.ID = &id
	}
	return nil
}

var (
	_ fluent.Timestamped   = (*CreateTime)(nil)
	_ fluent.Timestamped   = (*UpdateTime)(nil)
	_ fluent.Timestamped   = (*Time)(nil)
	_ fluent.SoftDeletable = (*SoftDelete)(nil)
	_ fluent.Model         = (*UUID)(nil)
)
