package docstore

import (
	"errors"
	"fmt"
	"reflect"
)

// FieldDocumentID filters on the document id rather than a stored field.
const FieldDocumentID = "__name__"

// MaxInValues is the store's ceiling on values in one "in" filter.
const MaxInValues = 10

type Op string

const (
	OpEqual Op = "=="
	OpIn    Op = "in"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// IDIn matches documents whose id is one of ids.
func IDIn(ids []string) Filter {
	vals := make([]any, 0, len(ids))
	for _, id := range ids {
		vals = append(vals, id)
	}
	return Filter{Field: FieldDocumentID, Op: OpIn, Value: vals}
}

func (f Filter) Validate() error {
	if f.Field == "" {
		return errors.Join(ErrInvalidQuery, errors.New("empty field"))
	}
	switch f.Op {
	case OpEqual:
		return nil
	case OpIn:
		vals, ok := f.Value.([]any)
		if !ok {
			return errors.Join(ErrInvalidQuery, fmt.Errorf("%s in: want []any got %T", f.Field, f.Value))
		}
		if len(vals) == 0 || len(vals) > MaxInValues {
			return errors.Join(ErrInvalidQuery, fmt.Errorf("%s in: %d values (allowed 1..%d)", f.Field, len(vals), MaxInValues))
		}
		return nil
	default:
		return errors.Join(ErrInvalidQuery, fmt.Errorf("unsupported op %q", f.Op))
	}
}

func ValidateFilters(filters []Filter) error {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IDsFromFilters returns the ids of the first document-id "in" filter, if any.
func IDsFromFilters(filters []Filter) ([]string, bool) {
	for _, f := range filters {
		if f.Field != FieldDocumentID || f.Op != OpIn {
			continue
		}
		vals, _ := f.Value.([]any)
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

// Matches reports whether doc satisfies every filter.
func Matches(doc *Document, filters []Filter) bool {
	if doc == nil || !doc.Exists {
		return false
	}
	for _, f := range filters {
		var actual any
		if f.Field == FieldDocumentID {
			actual = doc.ID
		} else {
			actual = doc.Data[f.Field]
		}
		switch f.Op {
		case OpEqual:
			if !valuesEqual(actual, f.Value) {
				return false
			}
		case OpIn:
			vals, _ := f.Value.([]any)
			found := false
			for _, v := range vals {
				if valuesEqual(actual, v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}
