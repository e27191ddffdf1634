package api

import (
	"testing"
)

func rec(id float64, fields map[string]any) Record {
	r := Record{"id": id}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.IDString()
	}
	return out
}

func sameIDs(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilterStringEquality(t *testing.T) {
	records := []Record{
		rec(1, map[string]any{"status": "pending", "user_id": float64(1)}),
		rec(2, map[string]any{"status": "polished", "user_id": float64(1)}),
		rec(3, map[string]any{"status": "pending", "user_id": float64(2)}),
	}

	got := applyFilter(records, map[string]any{"status": "pending"})
	if !sameIDs(ids(got), "1", "3") {
		t.Errorf("filter status=pending: got %v", ids(got))
	}

	// numeric filter value matches the string form of the field
	got = applyFilter(records, map[string]any{"user_id": "1"})
	if !sameIDs(ids(got), "1", "2") {
		t.Errorf("filter user_id=1: got %v", ids(got))
	}
}

func TestFilterEmptyValuesAlwaysMatch(t *testing.T) {
	records := []Record{
		rec(1, map[string]any{"status": "pending"}),
		rec(2, map[string]any{"status": "polished"}),
	}
	got := applyFilter(records, map[string]any{"status": nil, "title": ""})
	if len(got) != 2 {
		t.Errorf("nil/empty filter values should match everything, got %v", ids(got))
	}
}

func TestSortNilValuesLast(t *testing.T) {
	records := []Record{
		rec(1, map[string]any{"rank": nil}),
		rec(2, map[string]any{"rank": float64(5)}),
		rec(3, map[string]any{}),
		rec(4, map[string]any{"rank": float64(2)}),
	}
	got := applySort(records, &SortSpec{Field: "rank", Order: SortAsc})
	if !sameIDs(ids(got), "4", "2", "1", "3") {
		t.Errorf("ASC sort: got %v", ids(got))
	}
}

func TestSortDescReversesOrder(t *testing.T) {
	records := []Record{
		rec(1, map[string]any{"n": float64(3)}),
		rec(2, map[string]any{"n": float64(1)}),
		rec(3, map[string]any{"n": float64(2)}),
	}
	asc := applySort(records, &SortSpec{Field: "n", Order: SortAsc})
	desc := applySort(records, &SortSpec{Field: "n", Order: SortDesc})
	for i := range asc {
		if asc[i].IDString() != desc[len(desc)-1-i].IDString() {
			t.Fatalf("DESC is not the reverse of ASC: asc=%v desc=%v", ids(asc), ids(desc))
		}
	}
}

func TestSortNumericNotLexical(t *testing.T) {
	records := []Record{
		rec(1, map[string]any{"n": float64(10)}),
		rec(2, map[string]any{"n": float64(9)}),
	}
	got := applySort(records, &SortSpec{Field: "n", Order: SortAsc})
	if !sameIDs(ids(got), "2", "1") {
		t.Errorf("9 should sort before 10, got %v", ids(got))
	}
}

func TestPaginationWindow(t *testing.T) {
	var records []Record
	for i := 1; i <= 7; i++ {
		records = append(records, rec(float64(i), nil))
	}

	page2 := applyPagination(records, &PageSpec{Page: 2, PerPage: 3})
	if !sameIDs(ids(page2), "4", "5", "6") {
		t.Errorf("page 2: got %v", ids(page2))
	}

	// past the end
	page9 := applyPagination(records, &PageSpec{Page: 9, PerPage: 3})
	if len(page9) != 0 {
		t.Errorf("page past end should be empty, got %v", ids(page9))
	}
}

func TestPaginationPagesAreContiguous(t *testing.T) {
	var records []Record
	for i := 1; i <= 10; i++ {
		records = append(records, rec(float64(i), nil))
	}
	var all []string
	for page := 1; page <= 4; page++ {
		all = append(all, ids(applyPagination(records, &PageSpec{Page: page, PerPage: 3}))...)
	}
	if !sameIDs(all, "1", "2", "3", "4", "5", "6", "7", "8", "9", "10") {
		t.Errorf("concatenated pages should reproduce the sequence, got %v", all)
	}
}

// The canonical scenario: filter, sort and paginate together, with
// Total reflecting the filtered count rather than the page size.
func TestListPipelineScenario(t *testing.T) {
	records := []Record{
		rec(1, map[string]any{"status": "pending"}),
		rec(2, map[string]any{"status": "polished"}),
		rec(3, map[string]any{"status": "pending"}),
		rec(4, map[string]any{"status": "pending"}),
	}

	filtered := applyFilter(records, map[string]any{"status": "pending"})
	sorted := applySort(filtered, &SortSpec{Field: "id", Order: SortAsc})
	data := applyPagination(sorted, &PageSpec{Page: 1, PerPage: 2})

	if len(filtered) != 3 {
		t.Errorf("total = %d, want 3", len(filtered))
	}
	if !sameIDs(ids(data), "1", "3") {
		t.Errorf("page 1: got %v, want [1 3]", ids(data))
	}
}

func TestStringify(t *testing.T) {
	for _, tt := range []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{float64(3), "3"},
		{float64(3.5), "3.5"},
		{true, "true"},
	} {
		if got := stringify(tt.in); got != tt.want {
			t.Errorf("stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
