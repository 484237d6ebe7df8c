// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package claims

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which type a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindClaims
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindClaims:
		return "claims"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a claim's value: a string, a number, a bool, null, a list of
// Values or nested Claims.  The zero Value is null.
type Value struct {
	kind   Kind
	str    string
	num    json.Number
	b      bool
	list   []Value
	nested Claims
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue returns a number Value.
func NumberValue(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// BoolValue returns a bool Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ListValue returns a list Value.
func ListValue(l ...Value) Value { return Value{kind: KindList, list: l} }

// ClaimsValue returns a nested Claims Value.
func ClaimsValue(c Claims) Value { return Value{kind: KindClaims, nested: c} }

// Kind returns the type the Value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the Value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the Value's string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Number returns the Value's number.  Numbers are kept as they were encoded,
// so large integers like "exp" lose no precision.
func (v Value) Number() (json.Number, bool) { return v.num, v.kind == KindNumber }

// Bool returns the Value's bool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// List returns the Value's list.
func (v Value) List() ([]Value, bool) { return v.list, v.kind == KindList }

// Claims returns the Value's nested claims.
func (v Value) Claims() (Claims, bool) { return v.nested, v.kind == KindClaims }

// MarshalJSON encodes the Value as the JSON it was decoded from.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindClaims:
		if v.nested == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.nested)
	default:
		return []byte("null"), nil
	}
}

// valueOf converts a decoded JSON value into a Value.
func valueOf(raw interface{}) (Value, error) {
	const op = "valueOf"
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case bool:
		return BoolValue(t), nil
	case []interface{}:
		l := make([]Value, 0, len(t))
		for i, e := range t {
			v, err := valueOf(e)
			if err != nil {
				return Value{}, fmt.Errorf("%s: element %d: %w", op, i, err)
			}
			l = append(l, v)
		}
		return ListValue(l...), nil
	case map[string]interface{}:
		c, err := claimsOf(t)
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", op, err)
		}
		return ClaimsValue(c), nil
	default:
		return Value{}, fmt.Errorf("%s: unsupported type %T: %w", op, raw, ErrMalformedToken)
	}
}
