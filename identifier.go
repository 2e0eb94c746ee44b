package fluent

import (
	"encoding"
	"reflect"
	"strconv"
)

// Identifier is the constraint on model identifier types. Values must be
// comparable and storable by the backend driver.
type Identifier interface {
	comparable
}

// DatabaseRef is the untyped view of a DatabaseID.
type DatabaseRef interface {
	Name() string
}

// DatabaseID names one configured pool of databases of type D. Several
// IDs may exist for the same D, e.g. a primary and a replica pool.
type DatabaseID[D Database] struct {
	name string
}

// NewDatabaseID returns the identifier for the pool registered as name.
func NewDatabaseID[D Database](name string) DatabaseID[D] {
	return DatabaseID[D]{name: name}
}

// Name returns the pool name.
func (id DatabaseID[D]) Name() string { return id.name }

// String implements fmt.Stringer.
func (id DatabaseID[D]) String() string { return id.name }

// ParseID converts a string into an identifier of type ID.
//
// Integer kinds and strings are parsed directly. Other types must have a
// pointer implementing encoding.TextUnmarshaler (uuid.UUID does). Any
// other type fails with invalidIDType; a string that does not parse
// fails with invalidID.
func ParseID[ID Identifier](s string) (ID, error) {
	var id ID
	if u, ok := any(&id).(encoding.TextUnmarshaler); ok {
		if err := u.UnmarshalText([]byte(s)); err != nil {
			return id, errInvalidID(s, typeName[ID](), err)
		}
		return id, nil
	}
	v := reflect.ValueOf(&id).Elem()
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return id, errInvalidID(s, typeName[ID](), err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return id, errInvalidID(s, typeName[ID](), err)
		}
		v.SetUint(n)
	default:
		return id, errInvalidIDType(typeName[ID]())
	}
	return id, nil
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
