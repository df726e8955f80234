package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ObjectType identifies the variant of a canvas object. The set is open:
// types without a typed payload round-trip through Extra.
type ObjectType string

const (
	ObjectTypeImage ObjectType = "image"
	ObjectTypeText  ObjectType = "text"
	ObjectTypeShape ObjectType = "shape"

	UnknownObjectType = "unknown"
)

// CanvasObject is one positioned element on a board.
//
// Envelope fields are shared by all variants; exactly one of Image, Text or
// Shape is set for the matching Type. Any key that is unknown, or whose value
// does not have the expected JSON type, is kept verbatim in Extra so the
// object marshals back to what the client sent. The one exception is the
// imageId of an image object: it decides whether src is stripped, so a
// non-string value is rejected.
type CanvasObject struct {
	ID         string
	Type       ObjectType
	X          *float64
	Y          *float64
	Width      *float64
	Height     *float64
	Rotation   *float64
	Properties map[string]json.RawMessage

	Image *ImagePayload
	Text  *TextPayload
	Shape *ShapePayload

	Extra map[string]json.RawMessage
}

// ImagePayload holds image-specific fields.
type ImagePayload struct {
	ImageID *string
	Src     *string
}

// TextPayload holds text-specific fields.
type TextPayload struct {
	Content  *string
	FontSize *float64
	Color    *string
}

// ShapePayload holds shape-specific fields.
type ShapePayload struct {
	ShapeType   *string
	FillColor   *string
	StrokeColor *string
}

// ImageRef returns the referenced image id for image objects, or "".
func (o CanvasObject) ImageRef() string {
	if o.Type != ObjectTypeImage || o.Image == nil || o.Image.ImageID == nil {
		return ""
	}
	return *o.Image.ImageID
}

// PropertySrc returns properties.src when it is a string.
func (o CanvasObject) PropertySrc() (string, bool) {
	raw, ok := o.Properties["src"]
	if !ok {
		return "", false
	}
	var src string
	if err := json.Unmarshal(raw, &src); err != nil {
		return "", false
	}
	return src, true
}

// Clone returns a copy that shares no mutable state with o.
func (o CanvasObject) Clone() CanvasObject {
	out := o
	out.Properties = cloneRawMap(o.Properties)
	out.Extra = cloneRawMap(o.Extra)
	if o.Image != nil {
		img := *o.Image
		out.Image = &img
	}
	if o.Text != nil {
		text := *o.Text
		out.Text = &text
	}
	if o.Shape != nil {
		shape := *o.Shape
		out.Shape = &shape
	}
	return out
}

// UnmarshalJSON decodes a canvas object and keeps unknown keys.
func (o *CanvasObject) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("canvas object must be a JSON object: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("canvas object must be a JSON object")
	}

	obj := CanvasObject{}
	if v, ok := takeString(fields, "id"); ok {
		obj.ID = v
	}
	if v, ok := takeString(fields, "type"); ok {
		obj.Type = ObjectType(v)
	}
	obj.X = takeFloat(fields, "x")
	obj.Y = takeFloat(fields, "y")
	obj.Width = takeFloat(fields, "width")
	obj.Height = takeFloat(fields, "height")
	obj.Rotation = takeFloat(fields, "rotation")
	obj.Properties = takeObject(fields, "properties")

	switch obj.Type {
	case ObjectTypeImage:
		if raw, ok := fields["imageId"]; ok && !isJSONNull(raw) {
			var id string
			if err := json.Unmarshal(raw, &id); err != nil {
				return &DocumentError{Field: "imageId", Reason: "must be a string"}
			}
		}
		obj.Image = &ImagePayload{
			ImageID: takeStringPtr(fields, "imageId"),
			Src:     takeStringPtr(fields, "src"),
		}
	case ObjectTypeText:
		obj.Text = &TextPayload{
			Content:  takeStringPtr(fields, "content"),
			FontSize: takeFloat(fields, "fontSize"),
			Color:    takeStringPtr(fields, "color"),
		}
	case ObjectTypeShape:
		obj.Shape = &ShapePayload{
			ShapeType:   takeStringPtr(fields, "shapeType"),
			FillColor:   takeStringPtr(fields, "fillColor"),
			StrokeColor: takeStringPtr(fields, "strokeColor"),
		}
	}

	if len(fields) > 0 {
		obj.Extra = fields
	}
	*o = obj
	return nil
}

// MarshalJSON encodes the object with keys in sorted order.
func (o CanvasObject) MarshalJSON() ([]byte, error) {
	out := cloneRawMap(o.Extra)
	if out == nil {
		out = map[string]json.RawMessage{}
	}

	var err error
	put := func(key string, value any) {
		if err != nil {
			return
		}
		var raw []byte
		raw, err = json.Marshal(value)
		out[key] = raw
	}

	if o.ID != "" {
		put("id", o.ID)
	}
	if o.Type != "" {
		put("type", string(o.Type))
	}
	putFloat := func(key string, v *float64) {
		if v != nil {
			put(key, *v)
		}
	}
	putString := func(key string, v *string) {
		if v != nil {
			put(key, *v)
		}
	}
	putFloat("x", o.X)
	putFloat("y", o.Y)
	putFloat("width", o.Width)
	putFloat("height", o.Height)
	putFloat("rotation", o.Rotation)
	if o.Properties != nil {
		put("properties", o.Properties)
	}

	if o.Image != nil {
		putString("imageId", o.Image.ImageID)
		putString("src", o.Image.Src)
	}
	if o.Text != nil {
		putString("content", o.Text.Content)
		putFloat("fontSize", o.Text.FontSize)
		putString("color", o.Text.Color)
	}
	if o.Shape != nil {
		putString("shapeType", o.Shape.ShapeType)
		putString("fillColor", o.Shape.FillColor)
		putString("strokeColor", o.Shape.StrokeColor)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(out)
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// takeString removes key from fields when it holds a JSON string.
func takeString(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || isJSONNull(raw) {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	delete(fields, key)
	return v, true
}

func takeStringPtr(fields map[string]json.RawMessage, key string) *string {
	v, ok := takeString(fields, key)
	if !ok {
		return nil
	}
	return &v
}

func takeFloat(fields map[string]json.RawMessage, key string) *float64 {
	raw, ok := fields[key]
	if !ok || isJSONNull(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	delete(fields, key)
	return &v
}

func takeObject(fields map[string]json.RawMessage, key string) map[string]json.RawMessage {
	raw, ok := fields[key]
	if !ok || isJSONNull(raw) {
		return nil
	}
	var v map[string]json.RawMessage
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	delete(fields, key)
	if v == nil {
		v = map[string]json.RawMessage{}
	}
	return v
}

func cloneRawMap(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
