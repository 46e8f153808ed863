package domain

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Visibility tells whether a data field may be served to unauthenticated readers.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// DataField is a single free-form value together with its visibility.
// swagger:model DataField
type DataField struct {
	Value      any        `json:"value"`
	Visibility Visibility `json:"visibility"`
}

// PublicValue returns a field readable by anyone.
func PublicValue(v any) DataField {
	return DataField{Value: v, Visibility: VisibilityPublic}
}

// PrivateValue returns a field readable only by the program committee and the submitter.
func PrivateValue(v any) DataField {
	return DataField{Value: v, Visibility: VisibilityPrivate}
}

// IsPublic reports whether the field may appear in the public projection.
func (f DataField) IsPublic() bool {
	return f.Visibility == VisibilityPublic
}

// UnmarshalJSON accepts {"value": ..., "visibility": ...}. A missing visibility means private.
func (f *DataField) UnmarshalJSON(b []byte) error {
	var raw struct {
		Value      any        `json:"value"`
		Visibility Visibility `json:"visibility"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw.Visibility {
	case "":
		raw.Visibility = VisibilityPrivate
	case VisibilityPublic, VisibilityPrivate:
	default:
		return fmt.Errorf("%w: unknown visibility %q", ErrMalformedPayload, raw.Visibility)
	}
	f.Value = raw.Value
	f.Visibility = raw.Visibility
	return nil
}

// DataObject maps field names to fields. Sessions and speakers carry one for
// everything that is not part of their fixed attributes (title, abstract, bio...).
type DataObject map[string]DataField

// Put inserts or replaces a field.
func (d DataObject) Put(name string, value any, visibility Visibility) {
	d[name] = DataField{Value: value, Visibility: visibility}
}

// Value returns the named field.
func (d DataObject) Value(name string) (DataField, bool) {
	f, ok := d[name]
	return f, ok
}

// Clone returns a shallow copy. A nil object clones to an empty one.
func (d DataObject) Clone() DataObject {
	out := make(DataObject, len(d))
	maps.Copy(out, d)
	return out
}

// Merge returns a new object where every field of update overlays the receiver's
// field of the same name. Fields not mentioned in update are kept as they were.
func (d DataObject) Merge(update DataObject) DataObject {
	out := d.Clone()
	maps.Copy(out, update)
	return out
}

// Normalized returns a copy holding each value as it reads back from the event
// log: numbers become float64, objects map[string]any and arrays []any. A missing
// visibility becomes private. Values JSON cannot encode are rejected.
func (d DataObject) Normalized() (DataObject, error) {
	out := make(DataObject, len(d))
	for name, f := range d {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: data field %q: %v", ErrMalformedPayload, name, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: data field %q: %v", ErrMalformedPayload, name, err)
		}
		if f.Visibility == "" {
			f.Visibility = VisibilityPrivate
		}
		out[name] = DataField{Value: v, Visibility: f.Visibility}
	}
	return out, nil
}

// PublicView returns only the fields whose visibility is public.
func (d DataObject) PublicView() DataObject {
	out := make(DataObject)
	for name, f := range d {
		if f.IsPublic() {
			out[name] = f
		}
	}
	return out
}

// decodeDataFields reads every key of obj that is not reserved as a data field.
func decodeDataFields(obj map[string]json.RawMessage, reserved map[string]struct{}) (DataObject, error) {
	var data DataObject
	for name, raw := range obj {
		if _, ok := reserved[name]; ok {
			continue
		}
		var f DataField
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: data field %q: %v", ErrMalformedPayload, name, err)
		}
		if data == nil {
			data = make(DataObject)
		}
		data[name] = f
	}
	return data, nil
}
