package models

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterKind describes the value shape a filter field accepts.
type FilterKind int

const (
	// FilterString matches by case-insensitive substring.
	FilterString FilterKind = iota
	// FilterList matches by set membership.
	FilterList
	// FilterBool matches a boolean lead cell exactly.
	FilterBool
	// FilterCompare matches a numeric lead cell against "gt"/"lt" bounds.
	FilterCompare
)

// FilterTypes is the fixed type table for segment filter fields. Filter maps
// are validated against it before they are stored or applied.
var FilterTypes = map[string]FilterKind{
	"email":      FilterString,
	"name":       FilterString,
	"company":    FilterString,
	"position":   FilterString,
	"region":     FilterList,
	"phone":      FilterString,
	"subscribed": FilterBool,
	"employees":  FilterCompare,
}

// listFilterFields are the fields whose scalar values are promoted to
// single-element lists on write.
var listFilterFields = map[string]bool{"region": true}

// NormalizeFilters returns a copy of filters with scalar values of list-typed
// fields promoted to single-element lists. Values of unknown fields pass
// through untouched.
func NormalizeFilters(filters map[string]any) map[string]any {
	if filters == nil {
		return nil
	}
	out := make(map[string]any, len(filters))
	for field, value := range filters {
		if listFilterFields[field] {
			if s, ok := value.(string); ok {
				out[field] = []any{s}
				continue
			}
		}
		out[field] = value
	}
	return out
}

// ValidateFilters checks every field of a filter map against the type table.
// Unknown fields and shape mismatches are rejected.
func ValidateFilters(filters map[string]any) error {
	for field, value := range filters {
		kind, ok := FilterTypes[field]
		if !ok {
			return fmt.Errorf("unknown filter field %q", field)
		}
		switch kind {
		case FilterString:
			if _, ok := value.(string); !ok {
				return fmt.Errorf("filter field %q expects a string, got %T", field, value)
			}
		case FilterList:
			switch v := value.(type) {
			case string:
				// Scalar singleton, promoted later by NormalizeFilters.
			case []any:
				for _, item := range v {
					if _, ok := item.(string); !ok {
						return fmt.Errorf("filter field %q expects strings in its list, got %T", field, item)
					}
				}
			case []string:
			default:
				return fmt.Errorf("filter field %q expects a string or list of strings, got %T", field, value)
			}
		case FilterBool:
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("filter field %q expects a boolean, got %T", field, value)
			}
		case FilterCompare:
			dict, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("filter field %q expects a comparison object, got %T", field, value)
			}
			for op, bound := range dict {
				if op != "gt" && op != "lt" {
					return fmt.Errorf("filter field %q: unsupported comparison %q", field, op)
				}
				if !isNumber(bound) {
					return fmt.Errorf("filter field %q: comparison bound must be a number, got %T", field, bound)
				}
			}
		}
	}
	return nil
}

// MatchLead reports whether a lead row satisfies every filter. List filters
// are set membership, string filters case-insensitive substring, comparison
// filters numeric gt/lt, boolean filters exact.
func MatchLead(lead Lead, filters map[string]any) bool {
	for field, value := range filters {
		cell := lead[field]
		switch v := value.(type) {
		case string:
			if !strings.Contains(strings.ToLower(cell), strings.ToLower(v)) {
				return false
			}
		case bool:
			got, err := strconv.ParseBool(strings.TrimSpace(cell))
			if err != nil || got != v {
				return false
			}
		case []any:
			if !memberOf(cell, v) {
				return false
			}
		case []string:
			anyList := make([]any, len(v))
			for i, s := range v {
				anyList[i] = s
			}
			if !memberOf(cell, anyList) {
				return false
			}
		case map[string]any:
			num, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return false
			}
			for op, bound := range v {
				b, ok := toFloat(bound)
				if !ok {
					return false
				}
				if op == "gt" && !(num > b) {
					return false
				}
				if op == "lt" && !(num < b) {
					return false
				}
			}
		default:
			return false
		}
	}
	return true
}

func memberOf(cell string, list []any) bool {
	for _, item := range list {
		if s, ok := item.(string); ok && strings.EqualFold(strings.TrimSpace(cell), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

func isNumber(v any) bool {
	_, ok := toFloat(v)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
