// Copyright 2026 The TrustBridge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package claims

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Converter coerces a raw claim value into its canonical type. It must be
// pure: same input, same output, no side effects.
type Converter func(v any) (any, error)

// Converters maps a claim name to the converter applied to that claim.
// Claims without an entry pass through untouched.
type Converters map[string]Converter

// ConversionError reports a converter rejecting its input value.
type ConversionError struct {
	Claim  string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("claim %q: %s", e.Claim, e.Reason)
}

// DefaultConverters returns the built-in converter table. It contains
// entries for the three well-known claims whose wire representation
// varies across providers: email_verified and phone_number_verified
// (booleans that some providers serialize as strings) and updated_at
// (an instant serialized as seconds since epoch or an RFC 3339 string).
func DefaultConverters() Converters {
	return Converters{
		EmailVerified:       Bool,
		PhoneNumberVerified: Bool,
		UpdatedAt:           Instant,
	}
}

// Bool strictly coerces a claim value to bool. Accepted inputs are a
// bool or a string parseable by strconv.ParseBool. Anything else is
// rejected.
func Bool(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to bool", val)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to bool", v)
	}
}

// Instant coerces a claim value to a time.Time. Accepted inputs are a
// JSON number (seconds since epoch), a numeric string, or an RFC 3339
// string.
func Instant(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case float64:
		return time.Unix(int64(val), 0).UTC(), nil
	case int64:
		return time.Unix(val, 0).UTC(), nil
	case int:
		return time.Unix(int64(val), 0).UTC(), nil
	case json.Number:
		sec, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to instant", val.String())
		}
		return time.Unix(sec, 0).UTC(), nil
	case string:
		if sec, err := strconv.ParseInt(val, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC(), nil
		}
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to instant", val)
		}
		return t.UTC(), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to instant", v)
	}
}

// TypeConverter applies a converter table to whole claim sets.
type TypeConverter struct {
	converters Converters
}

// NewTypeConverter creates a TypeConverter over the given table.
func NewTypeConverter(converters Converters) *TypeConverter {
	return &TypeConverter{converters: converters}
}

// Convert returns a new claim set with every claim that has a table
// entry replaced by its coerced value. Claims without an entry are
// copied as-is. The first converter rejection aborts the conversion
// and is returned as a *ConversionError naming the claim.
func (c *TypeConverter) Convert(in Set) (Set, error) {
	out := make(Set, len(in))
	for name, raw := range in {
		converter, ok := c.converters[name]
		if !ok {
			out[name] = raw
			continue
		}
		coerced, err := converter(raw)
		if err != nil {
			return nil, &ConversionError{Claim: name, Reason: err.Error()}
		}
		out[name] = coerced
	}
	return out, nil
}
