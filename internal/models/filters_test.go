package models

import "testing"

func TestNormalizeFiltersPromotesScalarRegion(t *testing.T) {
	got := NormalizeFilters(map[string]any{"region": "Moscow"})
	list, ok := got["region"].([]any)
	if !ok || len(list) != 1 || list[0] != "Moscow" {
		t.Fatalf("scalar region not promoted: %#v", got["region"])
	}
}

func TestNormalizeFiltersKeepsListUnchanged(t *testing.T) {
	got := NormalizeFilters(map[string]any{"region": []any{"Moscow", "Kazan"}})
	list, ok := got["region"].([]any)
	if !ok || len(list) != 2 || list[0] != "Moscow" || list[1] != "Kazan" {
		t.Fatalf("list region altered: %#v", got["region"])
	}
}

func TestValidateFilters(t *testing.T) {
	valid := map[string]any{
		"region":     []any{"Moscow"},
		"company":    "Acme",
		"subscribed": true,
		"employees":  map[string]any{"gt": float64(50)},
	}
	if err := ValidateFilters(valid); err != nil {
		t.Fatalf("valid filters rejected: %v", err)
	}

	invalid := []map[string]any{
		{"favorite_color": "red"},
		{"subscribed": "maybe"},
		{"employees": map[string]any{"between": float64(1)}},
		{"region": true},
	}
	for _, f := range invalid {
		if err := ValidateFilters(f); err == nil {
			t.Errorf("expected rejection for %#v", f)
		}
	}
}

// Every filter field offered to users must exist as a lead table column, or a
// filter on it would silently match nothing.
func TestFilterFieldsAreLeadColumns(t *testing.T) {
	columns := make(map[string]bool, len(LeadColumns))
	for _, col := range LeadColumns {
		columns[col] = true
	}
	for field := range FilterTypes {
		if !columns[field] {
			t.Errorf("filter field %q has no lead column", field)
		}
	}
}

func TestMatchLeadOnUploadShapedRow(t *testing.T) {
	lead := make(Lead, len(LeadColumns))
	for i, col := range LeadColumns {
		lead[col] = []string{"anna@acme.ru", "Анна", "Acme", "директор", "Москва", "+7 900 000-00-00", "true", "120"}[i]
	}
	filters := map[string]any{
		"subscribed": true,
		"employees":  map[string]any{"gt": float64(50)},
	}
	if err := ValidateFilters(filters); err != nil {
		t.Fatalf("advertised filters rejected: %v", err)
	}
	if !MatchLead(lead, filters) {
		t.Fatal("upload-shaped lead must satisfy subscribed/employees filters")
	}
}

func TestMatchLead(t *testing.T) {
	lead := Lead{
		"email":      "anna@acme.ru",
		"company":    "Acme Trading",
		"region":     "Moscow",
		"subscribed": "true",
		"employees":  "120",
	}

	cases := []struct {
		name    string
		filters map[string]any
		want    bool
	}{
		{"substring match is case-insensitive", map[string]any{"company": "acme"}, true},
		{"substring mismatch", map[string]any{"company": "globex"}, false},
		{"list membership", map[string]any{"region": []any{"Moscow", "Kazan"}}, true},
		{"list non-membership", map[string]any{"region": []any{"Kazan"}}, false},
		{"bool match", map[string]any{"subscribed": true}, true},
		{"bool mismatch", map[string]any{"subscribed": false}, false},
		{"gt comparison", map[string]any{"employees": map[string]any{"gt": float64(50)}}, true},
		{"lt comparison", map[string]any{"employees": map[string]any{"lt": float64(50)}}, false},
		{"all conditions must hold", map[string]any{"company": "acme", "region": []any{"Kazan"}}, false},
		{"empty filters match everything", map[string]any{}, true},
	}
	for _, c := range cases {
		if got := MatchLead(lead, c.filters); got != c.want {
			t.Errorf("%s: MatchLead = %v, want %v", c.name, got, c.want)
		}
	}
}
