// Package patch applies partial updates to entities.
//
// A Partial[T] is decoded from a JSON object and remembers which keys the
// client sent. Apply merges those keys into a copy of the entity, validates
// the result and only then writes it back, so a rejected update never leaves
// the entity half-modified.
//
// Fields tagged `patch:"readonly"` can not be changed; constraints come from
// the same `binding` tags gin uses for request bodies.
package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/yaroslav/microdc/models"
)

// Partial holds the raw values of the fields present in an update request.
type Partial[T any] struct {
	fields map[string]json.RawMessage
}

// Validator is a domain rule run against the merged entity.
type Validator[T any] func(*T) error

// UnmarshalJSON implements json.Unmarshaler. The input must be a JSON object.
func (p *Partial[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: partial update must be a JSON object", models.ErrValidationFailed)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
	}
	p.fields = fields
	return nil
}

// FromMap builds a partial from already-decoded values.
func FromMap[T any](values map[string]any) (Partial[T], error) {
	data, err := json.Marshal(values)
	if err != nil {
		return Partial[T]{}, fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
	}

	var p Partial[T]
	if err := p.UnmarshalJSON(data); err != nil {
		return Partial[T]{}, err
	}
	return p, nil
}

// Has reports whether the update carries the given JSON field.
func (p Partial[T]) Has(field string) bool {
	_, ok := p.fields[field]
	return ok
}

// Fields returns the JSON names present in the update, sorted.
func (p Partial[T]) Fields() []string {
	names := make([]string, 0, len(p.fields))
	for name := range p.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether the update carries no fields.
func (p Partial[T]) Empty() bool {
	return len(p.fields) == 0
}

// Underlying returns the entity type the partial applies to.
func (p Partial[T]) Underlying() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Apply merges partial into entity.
//
// Unknown and read-only fields are rejected, present fields are checked
// against their binding constraints, then each validator runs on the merged
// value. Any failure returns ErrValidationFailed and leaves entity as it was.
//
// Parameters:
//   - entity: Entity to update in place
//   - partial: Fields supplied by the caller
//   - validators: Domain rules evaluated after the merge
//
// Returns:
//   - error: ErrValidationFailed (wrapped) on any rejected field or rule
func Apply[T any](entity *T, partial Partial[T], validators ...Validator[T]) error {
	if entity == nil {
		return fmt.Errorf("%w: nil entity", models.ErrValidationFailed)
	}

	info := fieldsOf(reflect.TypeOf(entity).Elem())

	updated := *entity
	target := reflect.ValueOf(&updated).Elem()
	present := make([]string, 0, len(partial.fields))

	for _, name := range partial.Fields() {
		raw := partial.fields[name]

		f, ok := info.byJSON[name]
		if !ok {
			return fmt.Errorf("%w: unknown field %q", models.ErrValidationFailed, name)
		}
		if f.readOnly {
			return fmt.Errorf("%w: field %q is read-only", models.ErrValidationFailed, name)
		}

		isNull := bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
		if isNull && !f.nullable {
			return fmt.Errorf("%w: field %q can not be null", models.ErrValidationFailed, name)
		}

		// Reset first so pointer fields get fresh storage instead of writing
		// through to values shared with entity.
		fv := target.FieldByIndex(f.index)
		fv.Set(reflect.Zero(fv.Type()))
		if err := json.Unmarshal(raw, fv.Addr().Interface()); err != nil {
			return fmt.Errorf("%w: field %q: %v", models.ErrValidationFailed, name, err)
		}

		present = append(present, f.goName)
	}

	if len(present) > 0 {
		if err := validate.StructPartial(&updated, present...); err != nil {
			return fmt.Errorf("%w: %s", models.ErrValidationFailed, describeValidation(err))
		}
	}

	for _, v := range validators {
		if err := v(&updated); err != nil {
			if errors.Is(err, models.ErrValidationFailed) {
				return err
			}
			return fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
		}
	}

	*entity = updated
	return nil
}

// fieldInfo describes one settable JSON field of an entity struct.
type fieldInfo struct {
	goName   string
	jsonName string
	index    []int
	readOnly bool
	nullable bool
	required bool
}

type structInfo struct {
	ordered []*fieldInfo
	byJSON  map[string]*fieldInfo
}

var structCache sync.Map // reflect.Type -> *structInfo

func fieldsOf(t reflect.Type) *structInfo {
	if cached, ok := structCache.Load(t); ok {
		return cached.(*structInfo)
	}

	info := &structInfo{byJSON: make(map[string]*fieldInfo)}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := jsonName(sf)
			if name == "" {
				continue
			}
			f := &fieldInfo{
				goName:   sf.Name,
				jsonName: name,
				index:    sf.Index,
				readOnly: sf.Tag.Get("patch") == "readonly",
				nullable: isNullable(sf.Type),
				required: hasRule(sf.Tag.Get("binding"), "required"),
			}
			info.ordered = append(info.ordered, f)
			info.byJSON[name] = f
		}
	}

	actual, _ := structCache.LoadOrStore(t, info)
	return actual.(*structInfo)
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return sf.Name
	}
	return name
}

func isNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	default:
		return false
	}
}

func hasRule(tag, rule string) bool {
	for _, r := range strings.Split(tag, ",") {
		if r == rule {
			return true
		}
	}
	return false
}
