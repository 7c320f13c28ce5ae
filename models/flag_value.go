package models

import (
	"errors"
	"fmt"
	"math"
)

// ValueType tags the representation of a flag's value.
type ValueType string

const (
	ValueBoolean     ValueType = "boolean"
	ValueInt         ValueType = "int"
	ValueDouble      ValueType = "double"
	ValueString      ValueType = "string"
	ValueText        ValueType = "text"
	ValueTitleText   ValueType = "title_text"
	ValueArrayString ValueType = "array_string"
	ValueArrayInt    ValueType = "array_int"
)

// ErrUnknownValueType is returned when a value type tag is not one of the known variants.
var ErrUnknownValueType = errors.New("unknown flag value type")

// FlagValue is the closed set of values a Flag can carry. Only the types in
// this file implement it.
type FlagValue interface {
	Type() ValueType
	isFlagValue()
}

type BoolValue bool

type IntValue int64

type FloatValue float64

// StringValue is a short string value, TextValue a long-form one.
type StringValue string

type TextValue string

type TitleTextValue struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type StringListValue []string

type IntListValue []int64

func (BoolValue) Type() ValueType       { return ValueBoolean }
func (IntValue) Type() ValueType        { return ValueInt }
func (FloatValue) Type() ValueType      { return ValueDouble }
func (StringValue) Type() ValueType     { return ValueString }
func (TextValue) Type() ValueType       { return ValueText }
func (TitleTextValue) Type() ValueType  { return ValueTitleText }
func (StringListValue) Type() ValueType { return ValueArrayString }
func (IntListValue) Type() ValueType    { return ValueArrayInt }

func (BoolValue) isFlagValue()       {}
func (IntValue) isFlagValue()        {}
func (FloatValue) isFlagValue()      {}
func (StringValue) isFlagValue()     {}
func (TextValue) isFlagValue()       {}
func (TitleTextValue) isFlagValue()  {}
func (StringListValue) isFlagValue() {}
func (IntListValue) isFlagValue()    {}

// IntOf returns the integer carried by v. Booleans map to 0/1 and doubles are
// truncated so that rating comparisons work across numeric variants.
func IntOf(v FlagValue) (int64, bool) {
	switch x := v.(type) {
	case IntValue:
		return int64(x), true
	case FloatValue:
		return int64(x), true
	case BoolValue:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// EqualValues reports whether a and b hold the same variant and content.
func EqualValues(a, b FlagValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case StringListValue:
		y := b.(StringListValue)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case IntListValue:
		y := b.(IntListValue)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// ParseFlagValue converts a decoded JSON value into the variant named by t.
func ParseFlagValue(t ValueType, raw any) (FlagValue, error) {
	switch t {
	case ValueBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", raw)
		}
		return BoolValue(b), nil
	case ValueInt:
		f, ok := raw.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %v", raw)
		}
		return IntValue(int64(f)), nil
	case ValueDouble:
		f, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		return FloatValue(f), nil
	case ValueString, ValueText:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		if t == ValueText {
			return TextValue(s), nil
		}
		return StringValue(s), nil
	case ValueTitleText:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", raw)
		}
		title, _ := m["title"].(string)
		text, _ := m["text"].(string)
		return TitleTextValue{Title: title, Text: text}, nil
	case ValueArrayString:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", raw)
		}
		out := make(StringListValue, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", it)
			}
			out = append(out, s)
		}
		return out, nil
	case ValueArrayInt:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", raw)
		}
		out := make(IntListValue, 0, len(items))
		for _, it := range items {
			f, ok := it.(float64)
			if !ok || f != math.Trunc(f) {
				return nil, fmt.Errorf("expected integer element, got %v", it)
			}
			out = append(out, int64(f))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownValueType, t)
	}
}
