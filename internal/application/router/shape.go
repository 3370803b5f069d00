package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/sykepenger/spesialist/pkg/utils"
)

// Predicate checks a single field value
type Predicate func(v gjson.Result) bool

// check returns a problem description, or "" when satisfied
type check func(doc gjson.Result) string

// Shape declares what a message must look like to reach a handler.
//
// Demands decide whether the message belongs to the shape at all; a failed
// demand means "not this shape". Requirements are validated once every
// demand holds; a failed requirement is a decode problem.
type Shape struct {
	name         string
	demands      []check
	requirements []check
}

// NewShape creates an empty shape. Without any demand it matches every message.
func NewShape(name string) *Shape {
	return &Shape{name: name}
}

// Name returns the shape name
func (s *Shape) Name() string { return s.name }

// DemandValue requires the field at path to equal value
func (s *Shape) DemandValue(path string, value any) *Shape {
	want := fmt.Sprint(value)
	s.demands = append(s.demands, func(doc gjson.Result) string {
		got := doc.Get(path)
		if !got.Exists() || got.String() != want {
			return fmt.Sprintf("%s is not %q", path, want)
		}
		return ""
	})
	return s
}

// DemandAll requires the array at path to contain every value
func (s *Shape) DemandAll(path string, values ...string) *Shape {
	s.demands = append(s.demands, func(doc gjson.Result) string {
		arr := doc.Get(path)
		if !arr.IsArray() {
			return fmt.Sprintf("%s is not an array", path)
		}
		present := make(map[string]struct{})
		for _, v := range arr.Array() {
			present[v.String()] = struct{}{}
		}
		for _, v := range values {
			if _, ok := present[v]; !ok {
				return fmt.Sprintf("%s does not contain %q", path, v)
			}
		}
		return ""
	})
	return s
}

// Reject requires every path to be absent
func (s *Shape) Reject(paths ...string) *Shape {
	s.demands = append(s.demands, func(doc gjson.Result) string {
		for _, p := range paths {
			if doc.Get(p).Exists() {
				return fmt.Sprintf("%s is present", p)
			}
		}
		return ""
	})
	return s
}

// RequireKey requires every path to be present and non-null
func (s *Shape) RequireKey(paths ...string) *Shape {
	for _, p := range paths {
		s.requirements = append(s.requirements, func(doc gjson.Result) string {
			v := doc.Get(p)
			if !v.Exists() || v.Type == gjson.Null {
				return fmt.Sprintf("missing required key %s", p)
			}
			return ""
		})
	}
	return s
}

// Require requires the field at path to exist and satisfy pred
func (s *Shape) Require(path string, pred Predicate, description string) *Shape {
	s.requirements = append(s.requirements, func(doc gjson.Result) string {
		v := doc.Get(path)
		if !v.Exists() || v.Type == gjson.Null {
			return fmt.Sprintf("missing required key %s", path)
		}
		if !pred(v) {
			return fmt.Sprintf("%s is not %s: %s", path, description, truncate(v.Raw))
		}
		return ""
	})
	return s
}

// RequireUUID is a shorthand for Require(path, IsUUID, "a uuid")
func (s *Shape) RequireUUID(paths ...string) *Shape {
	for _, p := range paths {
		s.Require(p, IsUUID, "a uuid")
	}
	return s
}

// demanded reports whether every demand holds
func (s *Shape) demanded(doc gjson.Result) bool {
	for _, d := range s.demands {
		if d(doc) != "" {
			return false
		}
	}
	return true
}

// problems returns every failed requirement
func (s *Shape) problems(doc gjson.Result) []string {
	var out []string
	for _, r := range s.requirements {
		if p := r(doc); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsUUID accepts strings that parse as a UUID
func IsUUID(v gjson.Result) bool {
	if v.Type != gjson.String {
		return false
	}
	_, err := uuid.Parse(v.Str)
	return err == nil
}

// localDateTime is the zone-less timestamp layout used on the bus
const localDateTime = "2006-01-02T15:04:05.999999999"

// IsTimestamp accepts RFC 3339 timestamps and zone-less local date-times
func IsTimestamp(v gjson.Result) bool {
	_, ok := ParseTimestamp(v.String())
	return v.Type == gjson.String && ok
}

// ParseTimestamp parses a bus timestamp. Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(localDateTime, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// IsPersonID accepts an 11 digit fødselsnummer
func IsPersonID(v gjson.Result) bool {
	return v.Type == gjson.String && utils.ValidatePersonID(v.Str) == nil
}

// IsBool accepts JSON booleans
func IsBool(v gjson.Result) bool {
	return v.IsBool()
}

// IsNumber accepts JSON numbers
func IsNumber(v gjson.Result) bool {
	return v.Type == gjson.Number
}

// IsObject accepts JSON objects
func IsObject(v gjson.Result) bool {
	return v.IsObject()
}

// IsOneOf accepts strings from a fixed set
func IsOneOf(values ...string) Predicate {
	return func(v gjson.Result) bool {
		for _, want := range values {
			if v.Str == want {
				return true
			}
		}
		return false
	}
}

func truncate(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 64 {
		return raw[:64] + "..."
	}
	return raw
}
