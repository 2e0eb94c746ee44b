package fluent

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"
	"unsafe"
)

// column maps a struct field to a storage column.
type column struct {
	name   string
	index  []int
	offset uintptr
	typ    reflect.Type
}

// fieldMap is the column layout of a model struct.
type fieldMap struct {
	typ     reflect.Type
	columns []column
}

var fieldMaps sync.Map // reflect.Type => *fieldMap

var timeType = reflect.TypeFor[time.Time]()

// fieldsOf returns the cached column layout of struct type t.
func fieldsOf(t reflect.Type) *fieldMap {
	if fm, ok := fieldMaps.Load(t); ok {
		return fm.(*fieldMap)
	}
	fm := &fieldMap{typ: t}
	fm.collect(t, nil, 0)
	actual, _ := fieldMaps.LoadOrStore(t, fm)
	return actual.(*fieldMap)
}

// collect walks t, flattening embedded structs.
func (fm *fieldMap) collect(t reflect.Type, index []int, base uintptr) {
	for i := range t.NumField() {
		sf := t.Field(i)
		tag, tagged := sf.Tag.Lookup("fluent")
		if tag == "-" {
			continue
		}
		idx := append(append([]int(nil), index...), i)
		if sf.Anonymous && !tagged && sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			fm.collect(sf.Type, idx, base+sf.Offset)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = snake(sf.Name)
		}
		fm.columns = append(fm.columns, column{
			name:   name,
			index:  idx,
			offset: base + sf.Offset,
			typ:    sf.Type,
		})
	}
}

// lookup returns the column stored at offset with type t.
func (fm *fieldMap) lookup(offset uintptr, t reflect.Type) (column, bool) {
	for _, c := range fm.columns {
		if c.offset == offset && c.typ == t {
			return c, true
		}
	}
	return column{}, false
}

// names returns all column names in declaration order.
func (fm *fieldMap) names() []string {
	names := make([]string, len(fm.columns))
	for i, c := range fm.columns {
		names[i] = c.name
	}
	return names
}

// pointers returns scan destinations for all columns of v.
func (fm *fieldMap) pointers(v reflect.Value) []any {
	ptrs := make([]any, len(fm.columns))
	for i, c := range fm.columns {
		ptrs[i] = v.FieldByIndex(c.index).Addr().Interface()
	}
	return ptrs
}

// values returns the column names and values of v, skipping the
// columns for which skip returns true. Nil pointers become nil and
// other pointers are dereferenced.
func (fm *fieldMap) values(v reflect.Value, skip func(column) bool) ([]string, []any) {
	names := make([]string, 0, len(fm.columns))
	vals := make([]any, 0, len(fm.columns))
	for _, c := range fm.columns {
		if skip != nil && skip(c) {
			continue
		}
		names = append(names, c.name)
		vals = append(vals, indirect(v.FieldByIndex(c.index)))
	}
	return names, vals
}

func indirect(fv reflect.Value) any {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil
		}
		return fv.Elem().Interface()
	}
	return fv.Interface()
}

// resolve maps a key path to its column. A key path selects a field of M,
// e.g. func(u *User) *string { return &u.Name }, and is resolved by the
// offset of the returned pointer.
func resolve[M, F any](kp func(*M) *F) (column, error) {
	t := reflect.TypeFor[M]()
	if t.Kind() != reflect.Struct {
		return column{}, NewError(InvalidKeyPath, fmt.Sprintf("%s is not a struct", t))
	}
	if kp == nil {
		return column{}, NewError(InvalidKeyPath, fmt.Sprintf("nil key path on %s", t))
	}
	var m M
	base, p := uintptr(unsafe.Pointer(&m)), uintptr(unsafe.Pointer(kp(&m)))
	if p < base || p >= base+t.Size() {
		return column{}, NewError(InvalidKeyPath, fmt.Sprintf("key path does not point into %s", t))
	}
	c, ok := fieldsOf(t).lookup(p-base, reflect.TypeFor[F]())
	if !ok {
		return column{}, NewError(InvalidKeyPath,
			fmt.Sprintf("key path on %s does not select a column of type %s", t, reflect.TypeFor[F]()),
			"export the field and remove any fluent:\"-\" tag",
		)
	}
	return c, nil
}

// snake converts a Go field name to snake_case, keeping acronyms
// together: "UserID" => "user_id", "HTTPCode" => "http_code".
func snake(s string) string {
	var (
		sb    strings.Builder
		runes = []rune(s)
	)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
