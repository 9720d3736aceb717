package patch

import (
	"reflect"
	"time"
)

// Shape is the full field list of an entity type.
type Shape struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Field describes one entity field.
type Field struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Required bool    `json:"required"`
	ReadOnly bool    `json:"read_only"`
	Nullable bool    `json:"nullable"`
	Fields   []Field `json:"fields,omitempty"`
}

// underlying is implemented by wrappers that stand in for another type,
// such as Partial[T].
type underlying interface {
	Underlying() reflect.Type
}

var timeType = reflect.TypeOf(time.Time{})

// Describe reports the shape of v's type. For a Partial[T], or anything else
// exposing Underlying, the shape of the wrapped type is reported, with every
// field listed regardless of which fields the value carries.
func Describe(v any) Shape {
	var t reflect.Type
	switch x := v.(type) {
	case underlying:
		t = x.Underlying()
	case reflect.Type:
		t = x
	default:
		t = reflect.TypeOf(v)
	}
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return Shape{}
	}

	return Shape{Name: t.Name(), Fields: describeFields(t)}
}

func describeFields(t reflect.Type) []Field {
	if t.Kind() != reflect.Struct || t == timeType {
		return nil
	}

	info := fieldsOf(t)
	fields := make([]Field, 0, len(info.ordered))
	for _, f := range info.ordered {
		ft := t.FieldByIndex(f.index).Type
		inner := ft
		for inner.Kind() == reflect.Pointer {
			inner = inner.Elem()
		}
		fields = append(fields, Field{
			Name:     f.jsonName,
			Type:     jsonType(inner),
			Required: f.required,
			ReadOnly: f.readOnly,
			Nullable: f.nullable,
			Fields:   describeFields(inner),
		})
	}
	return fields
}

func jsonType(t reflect.Type) string {
	if t == timeType {
		return "date-time"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}
