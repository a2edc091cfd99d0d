package reso

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Range bounds a single filter field. Nil slots are omitted; at most one of
// each comparison operator per field holds by construction.
type Range struct {
	GTE any `json:"gte,omitempty"`
	LTE any `json:"lte,omitempty"`
	GT  any `json:"gt,omitempty"`
	LT  any `json:"lt,omitempty"`
}

// Filters maps RESO field names to scalar values or Ranges.
type Filters map[string]any

// Query is a provider-agnostic search request. The zero value means
// "everything, provider defaults".
type Query struct {
	Filters Filters  `json:"filters,omitempty"`
	Select  []string `json:"select,omitempty"`
	Expand  []string `json:"expand,omitempty"`
	OrderBy string   `json:"orderby,omitempty"`
	Top     int      `json:"top,omitempty"`
	Skip    int      `json:"skip,omitempty"`
}

// Params renders the query as OData query parameters.
func (q Query) Params() url.Values {
	v := url.Values{}
	if f := q.Filters.encode(); f != "" {
		v.Set("$filter", f)
	}
	if len(q.Select) > 0 {
		v.Set("$select", strings.Join(q.Select, ","))
	}
	if len(q.Expand) > 0 {
		v.Set("$expand", strings.Join(q.Expand, ","))
	}
	if q.OrderBy != "" {
		v.Set("$orderby", q.OrderBy)
	}
	if q.Top > 0 {
		v.Set("$top", strconv.Itoa(q.Top))
	}
	if q.Skip > 0 {
		v.Set("$skip", strconv.Itoa(q.Skip))
	}
	return v
}

// plainParams renders the query for providers that speak plain query strings
// instead of OData. Scalars pass through under their own names; range bounds
// become min_/max_ parameters; paging follows the pagesize/page convention.
func (q Query) plainParams() url.Values {
	v := url.Values{}
	fields := sortedFields(q.Filters)
	for _, field := range fields {
		switch val := q.Filters[field].(type) {
		case Range:
			if val.GTE != nil {
				v.Set("min_"+field, formatBound(val.GTE))
			}
			if val.LTE != nil {
				v.Set("max_"+field, formatBound(val.LTE))
			}
		case *Range:
			if val != nil {
				if val.GTE != nil {
					v.Set("min_"+field, formatBound(val.GTE))
				}
				if val.LTE != nil {
					v.Set("max_"+field, formatBound(val.LTE))
				}
			}
		default:
			v.Set(field, formatBound(val))
		}
	}
	if q.OrderBy != "" {
		v.Set("orderby", q.OrderBy)
	}
	if q.Top > 0 {
		v.Set("pagesize", strconv.Itoa(q.Top))
	}
	return v
}

func (f Filters) encode() string {
	if len(f) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(f))
	for _, field := range sortedFields(f) {
		switch v := f[field].(type) {
		case Range:
			clauses = append(clauses, v.clauses(field)...)
		case *Range:
			if v != nil {
				clauses = append(clauses, v.clauses(field)...)
			}
		default:
			clauses = append(clauses, field+" eq "+formatScalar(v))
		}
	}
	return strings.Join(clauses, " and ")
}

// clone returns a shallow copy so prepare hooks never mutate caller filters.
func (f Filters) clone() Filters {
	out := make(Filters, len(f)+2)
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (r Range) clauses(field string) []string {
	bounds := []struct {
		op  string
		val any
	}{
		{"ge", r.GTE},
		{"le", r.LTE},
		{"gt", r.GT},
		{"lt", r.LT},
	}
	out := make([]string, 0, 2)
	for _, b := range bounds {
		if b.val == nil {
			continue
		}
		out = append(out, field+" "+b.op+" "+formatBound(b.val))
	}
	return out
}

func sortedFields(f Filters) []string {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// formatScalar renders an eq operand. Strings are OData-quoted; datetimes
// and numbers are bare literals.
func formatScalar(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return formatNumber(v)
	}
}

// formatBound renders a range operand. OData range comparisons take bare
// literals even for datetime strings, so strings pass through unquoted.
func formatBound(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return formatNumber(v)
	}
}

func formatNumber(v any) string {
	switch t := v.(type) {
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// UnmarshalJSON accepts {"City": "Austin", "ListPrice": {"gte": 100000}}
// style filter objects: nested objects become Ranges, everything else stays
// scalar. Numbers keep their textual form.
func (f *Filters) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Filters, len(raw))
	for field, msg := range raw {
		trimmed := bytes.TrimSpace(msg)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var r Range
			if err := json.Unmarshal(trimmed, &r); err != nil {
				return fmt.Errorf("filter %s: %w", field, err)
			}
			out[field] = r
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("filter %s: %w", field, err)
		}
		out[field] = v
	}
	*f = out
	return nil
}
