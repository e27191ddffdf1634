package api

import (
	"fmt"
	"sort"
	"strconv"
)

// Record is a schemaless resource row as decoded from JSON. Every
// record carries an "id" field; everything else is resource-specific.
type Record map[string]any

// ID returns the raw id value (float64 for JSON numbers).
func (r Record) ID() any { return r["id"] }

// IDString returns the id in canonical string form, so 1, 1.0 and "1"
// all compare equal.
func (r Record) IDString() string { return idString(r["id"]) }

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

type SortSpec struct {
	Field string
	Order SortOrder
}

type PageSpec struct {
	Page    int // 1-based
	PerPage int
}

// ListParams mirrors the query surface of List. Zero values mean "no
// filter", "no sort" and "no pagination" respectively.
type ListParams struct {
	Filter     map[string]any
	Sort       *SortSpec
	Pagination *PageSpec
}

// ListResult carries one page of records plus the post-filter,
// pre-pagination total.
type ListResult struct {
	Data  []Record
	Total int
}

// applyFilter keeps records where every non-empty filter entry matches
// the record's field on string form. Nil or empty filter values always
// match.
func applyFilter(records []Record, filter map[string]any) []Record {
	if len(filter) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if matchesFilter(rec, filter) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesFilter(rec Record, filter map[string]any) bool {
	for field, want := range filter {
		if want == nil || stringify(want) == "" {
			continue
		}
		if stringify(rec[field]) != stringify(want) {
			return false
		}
	}
	return true
}

// applySort orders records by the sort field: equal values keep their
// relative order, missing/nil values sort last, everything else uses
// the value's native ordering. DESC exactly reverses the comparison.
func applySort(records []Record, spec *SortSpec) []Record {
	if spec == nil || spec.Field == "" {
		return records
	}
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		cmp := compareValues(out[i][spec.Field], out[j][spec.Field])
		if spec.Order == SortDesc {
			return cmp > 0
		}
		return cmp < 0
	})
	return out
}

// applyPagination returns the 1-based window [(page-1)*perPage,
// (page-1)*perPage+perPage) of records, clamped to the slice.
func applyPagination(records []Record, page *PageSpec) []Record {
	if page == nil || page.PerPage <= 0 {
		return records
	}
	start := (page.Page - 1) * page.PerPage
	if start < 0 {
		start = 0
	}
	if start >= len(records) {
		return nil
	}
	end := start + page.PerPage
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}

// compareValues returns <0, 0 or >0. Nil sorts after any defined value,
// numbers compare numerically, strings lexically; mixed types fall back
// to their string forms.
func compareValues(a, b any) int {
	if valuesEqual(a, b) {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	af, aNum := asNumber(a)
	bf, bNum := asNumber(b)
	if aNum && bNum {
		if af < bf {
			return -1
		}
		return 1
	}
	if stringify(a) < stringify(b) {
		return -1
	}
	return 1
}

func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	af, aNum := asNumber(a)
	bf, bNum := asNumber(b)
	if aNum && bNum {
		return af == bf
	}
	return stringify(a) == stringify(b)
}

func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// stringify is the string-equality form used by filters and reference
// lookups. Nil becomes the empty string; JSON numbers drop a trailing
// ".0" so 3 and 3.0 coincide.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func idString(v any) string { return stringify(v) }
