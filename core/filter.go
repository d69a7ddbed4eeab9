package core

import "strings"

// ScopeFilter narrows the corpus considered by both search methods.
//
// It is a small tagged variant: the zero value is NoFilter, and
// SubstringField restricts records to those whose metadata field contains
// a substring, compared case-insensitively.
type ScopeFilter struct {
	field     string
	substring string
}

// NoFilter returns a filter that matches every record.
func NoFilter() ScopeFilter {
	return ScopeFilter{}
}

// SubstringField returns a filter matching records whose metadata field
// contains substring, ignoring case. An empty substring yields NoFilter.
func SubstringField(field, substring string) ScopeFilter {
	if substring == "" {
		return NoFilter()
	}
	return ScopeFilter{field: field, substring: substring}
}

// BrandFilter restricts records to documents whose filename mentions brand.
func BrandFilter(brand string) ScopeFilter {
	return SubstringField(MetadataFilename, brand)
}

// IsSet reports whether the filter restricts anything.
func (f ScopeFilter) IsSet() bool {
	return f.substring != ""
}

// Field returns the metadata field the filter applies to.
func (f ScopeFilter) Field() string {
	return f.field
}

// Substring returns the substring the filter looks for.
func (f ScopeFilter) Substring() string {
	return f.substring
}

// Matches reports whether the metadata satisfies the filter.
// A missing field is treated as the empty string.
func (f ScopeFilter) Matches(metadata map[string]string) bool {
	if !f.IsSet() {
		return true
	}
	value := metadata[f.field]
	return strings.Contains(strings.ToLower(value), strings.ToLower(f.substring))
}

// Key returns a canonical representation of the filter.
// Two filters with equal keys select exactly the same records.
func (f ScopeFilter) Key() string {
	if !f.IsSet() {
		return "*"
	}
	return f.field + "~" + strings.ToLower(f.substring)
}

// Equal reports whether two filters select the same records.
func (f ScopeFilter) Equal(other ScopeFilter) bool {
	return f.Key() == other.Key()
}

// String implements fmt.Stringer.
func (f ScopeFilter) String() string {
	if !f.IsSet() {
		return "none"
	}
	return f.field + " contains " + f.substring
}
