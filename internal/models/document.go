package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Document is the client-owned board payload. Objects keep their paint
// order. Settings is lifted out of the payload when it is a JSON object;
// every other top-level key is preserved in Extra.
type Document struct {
	Objects  []CanvasObject
	Settings json.RawMessage
	Extra    map[string]json.RawMessage
}

// DocumentError reports a malformed document field.
type DocumentError struct {
	Field  string
	Reason string
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ParseDocument decodes a raw board payload.
func ParseDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// UnmarshalJSON decodes a document, requiring an object with an optional
// array of object-valued canvas objects.
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return &DocumentError{Field: "boardData", Reason: "must be an object"}
	}

	doc := Document{}
	if raw, ok := fields["objects"]; ok && !isJSONNull(raw) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return &DocumentError{Field: "boardData.objects", Reason: "must be an array"}
		}
		doc.Objects = make([]CanvasObject, 0, len(items))
		for i, item := range items {
			var obj CanvasObject
			if err := json.Unmarshal(item, &obj); err != nil {
				var fieldErr *DocumentError
				if errors.As(err, &fieldErr) {
					return &DocumentError{Field: fmt.Sprintf("boardData.objects.%d.%s", i, fieldErr.Field), Reason: fieldErr.Reason}
				}
				return &DocumentError{Field: fmt.Sprintf("boardData.objects.%d", i), Reason: "must be an object"}
			}
			doc.Objects = append(doc.Objects, obj)
		}
		delete(fields, "objects")
	}
	if settings := takeObject(fields, "settings"); settings != nil {
		encoded, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		doc.Settings = encoded
	}

	if len(fields) > 0 {
		doc.Extra = fields
	}
	*d = doc
	return nil
}

// MarshalJSON encodes the document. objects is always present.
func (d Document) MarshalJSON() ([]byte, error) {
	out := cloneRawMap(d.Extra)
	if out == nil {
		out = map[string]json.RawMessage{}
	}
	objects := d.Objects
	if objects == nil {
		objects = []CanvasObject{}
	}
	encoded, err := json.Marshal(objects)
	if err != nil {
		return nil, err
	}
	out["objects"] = encoded
	if len(d.Settings) > 0 {
		out["settings"] = d.Settings
	}
	return json.Marshal(out)
}

// StringField returns a top-level string value such as name or description.
func (d Document) StringField(key string) (string, bool) {
	raw, ok := d.Extra[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := Document{Extra: cloneRawMap(d.Extra)}
	if d.Settings != nil {
		out.Settings = append(json.RawMessage(nil), d.Settings...)
	}
	if d.Objects != nil {
		out.Objects = make([]CanvasObject, len(d.Objects))
		for i, obj := range d.Objects {
			out.Objects[i] = obj.Clone()
		}
	}
	return out
}

// ObjectStats counts objects in total and per type.
func (d Document) ObjectStats() ObjectStats {
	stats := ObjectStats{Total: len(d.Objects), ByType: map[string]int{}}
	for _, obj := range d.Objects {
		key := string(obj.Type)
		if key == "" {
			key = UnknownObjectType
		}
		stats.ByType[key]++
	}
	return stats
}

// ObjectStats summarizes the objects on a board.
type ObjectStats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}
