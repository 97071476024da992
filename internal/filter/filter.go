// internal/filter/filter.go
package filter

import (
    "strconv"
    "strings"
    "time"
)

// Condition operators supported by the audience filter DSL.
const (
    OpEquals      = "equals"
    OpNotEquals   = "not_equals"
    OpContains    = "contains"
    OpNotContains = "not_contains"
    OpStartsWith  = "starts_with"
    OpEndsWith    = "ends_with"
    OpIsEmpty     = "is_empty"
    OpIsNotEmpty  = "is_not_empty"
    OpExists      = "exists"
    OpNotExists   = "not_exists"
    OpGreaterThan = "greater_than"
    OpLessThan    = "less_than"
)

// Tag match modes.
const (
    TagMatchAny = "any"
    TagMatchAll = "all"
)

// Condition is a single {field, operator, value} predicate. Field is either a
// system attribute ("phone", "display_name") or a custom per-contact attribute
// key.
type Condition struct {
    Field    string `json:"field"`
    Operator string `json:"operator"`
    Value    string `json:"value,omitempty"`
}

// Expression is the tagged expression tree a dynamic audience stores. All set
// parts are ANDed together; an empty expression matches every contact.
type Expression struct {
    Tags         []string    `json:"tags,omitempty"`
    TagMatch     string      `json:"tag_match,omitempty"` // any (default) or all
    ExcludeTags  []string    `json:"exclude_tags,omitempty"`
    Conditions   []Condition `json:"conditions,omitempty"`
    IsBlocked    *bool       `json:"is_blocked,omitempty"`
    IsBotActive  *bool       `json:"is_bot_active,omitempty"`
    HasWhatsapp  *bool       `json:"has_whatsapp,omitempty"`
    Search       string      `json:"search,omitempty"` // substring on name or phone
    CreatedAfter *time.Time  `json:"created_after,omitempty"`
    CreatedBefore *time.Time `json:"created_before,omitempty"`
    LastActiveAfter *time.Time  `json:"last_active_after,omitempty"`
    LastActiveBefore *time.Time `json:"last_active_before,omitempty"`
}

// Subject is the view of a contact the interpreter evaluates against. It keeps
// the filter package free of a dependency on the model package.
type Subject struct {
    Phone          string
    DisplayName    string
    IsBlocked      bool
    IsBotActive    bool
    HasWhatsapp    bool
    Tags           []string
    Attributes     map[string]string
    CreatedAt      time.Time
    LastActivityAt *time.Time
}

// Matches reports whether the subject satisfies every part of the expression.
func (e *Expression) Matches(s Subject) bool {
    if e == nil {
        return true
    }
    if !e.matchTags(s.Tags) {
        return false
    }
    for _, tag := range e.ExcludeTags {
        if hasTag(s.Tags, tag) {
            return false
        }
    }
    for _, c := range e.Conditions {
        if !c.matches(s) {
            return false
        }
    }
    if e.IsBlocked != nil && s.IsBlocked != *e.IsBlocked {
        return false
    }
    if e.IsBotActive != nil && s.IsBotActive != *e.IsBotActive {
        return false
    }
    if e.HasWhatsapp != nil && s.HasWhatsapp != *e.HasWhatsapp {
        return false
    }
    if e.Search != "" {
        q := strings.ToLower(e.Search)
        if !strings.Contains(strings.ToLower(s.DisplayName), q) &&
            !strings.Contains(strings.ToLower(s.Phone), q) {
            return false
        }
    }
    if e.CreatedAfter != nil && s.CreatedAt.Before(*e.CreatedAfter) {
        return false
    }
    if e.CreatedBefore != nil && s.CreatedAt.After(*e.CreatedBefore) {
        return false
    }
    if e.LastActiveAfter != nil {
        if s.LastActivityAt == nil || s.LastActivityAt.Before(*e.LastActiveAfter) {
            return false
        }
    }
    if e.LastActiveBefore != nil {
        if s.LastActivityAt == nil || s.LastActivityAt.After(*e.LastActiveBefore) {
            return false
        }
    }
    return true
}

func (e *Expression) matchTags(subjectTags []string) bool {
    if len(e.Tags) == 0 {
        return true
    }
    if e.TagMatch == TagMatchAll {
        for _, tag := range e.Tags {
            if !hasTag(subjectTags, tag) {
                return false
            }
        }
        return true
    }
    for _, tag := range e.Tags {
        if hasTag(subjectTags, tag) {
            return true
        }
    }
    return false
}

func hasTag(tags []string, tag string) bool {
    for _, t := range tags {
        if t == tag {
            return true
        }
    }
    return false
}

func (c Condition) matches(s Subject) bool {
    value, present := lookupField(s, c.Field)

    switch c.Operator {
    case OpExists:
        return present
    case OpNotExists:
        return !present
    case OpIsEmpty:
        return value == ""
    case OpIsNotEmpty:
        return value != ""
    }

    switch c.Operator {
    case OpEquals:
        return strings.EqualFold(value, c.Value)
    case OpNotEquals:
        return !strings.EqualFold(value, c.Value)
    case OpContains:
        return containsFold(value, c.Value)
    case OpNotContains:
        return !containsFold(value, c.Value)
    case OpStartsWith:
        return strings.HasPrefix(strings.ToLower(value), strings.ToLower(c.Value))
    case OpEndsWith:
        return strings.HasSuffix(strings.ToLower(value), strings.ToLower(c.Value))
    case OpGreaterThan:
        got, want, ok := parseNumericPair(value, c.Value)
        return ok && got > want
    case OpLessThan:
        got, want, ok := parseNumericPair(value, c.Value)
        return ok && got < want
    }
    return false
}

func lookupField(s Subject, field string) (string, bool) {
    switch field {
    case "phone":
        return s.Phone, true
    case "display_name", "name":
        return s.DisplayName, true
    }
    v, ok := s.Attributes[field]
    return v, ok
}

func containsFold(haystack, needle string) bool {
    return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Numeric comparisons treat non-numeric stored values as non-matching rather
// than erroring out.
func parseNumericPair(a, b string) (float64, float64, bool) {
    x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
    if err != nil {
        return 0, 0, false
    }
    y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
    if err != nil {
        return 0, 0, false
    }
    return x, y, true
}
