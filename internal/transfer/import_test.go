package transfer

import (
	"errors"
	"testing"
	"time"

	"promptlib/api/internal/store"
)

func TestParseImportRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t"},
		{"invalid json", "{not json"},
		{"missing prompts", `{"categories": []}`},
		{"missing categories", `{"prompts": []}`},
		{"null prompts", `{"prompts": null, "categories": []}`},
		{"null categories", `{"prompts": [], "categories": null}`},
		{"prompts not an array", `{"prompts": {"task": "x"}, "categories": []}`},
		{"categories not strings", `{"prompts": [], "categories": [{"name": "x"}]}`},
		{"top level array", `[1, 2, 3]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseImport([]byte(tc.raw)); !errors.Is(err, ErrMalformedImport) {
				t.Fatalf("expected ErrMalformedImport, got %v", err)
			}
		})
	}
}

func TestParseImportAcceptsMinimalDocument(t *testing.T) {
	input, err := ParseImport([]byte(`{"prompts": [], "categories": []}`))
	if err != nil {
		t.Fatalf("ParseImport failed: %v", err)
	}
	if len(input.Prompts) != 0 || len(input.Categories) != 0 {
		t.Fatalf("expected empty input, got %+v", input)
	}
}

func TestPlanImportDeduplicatesCategories(t *testing.T) {
	input, err := ParseImport([]byte(`{
		"prompts": [],
		"categories": ["Writing", "writing", "Coding", "Coding", "Research"]
	}`))
	if err != nil {
		t.Fatalf("ParseImport failed: %v", err)
	}

	existing := []store.Category{{ID: "c1", Name: "Writing"}, {ID: "c2", Name: "Research"}}
	plan := PlanImport(input, existing, time.Now())

	// Exact match is case-sensitive: "writing" is new, "Writing" is not.
	want := []string{"writing", "Coding"}
	if len(plan.NewCategories) != len(want) {
		t.Fatalf("expected %v, got %v", want, plan.NewCategories)
	}
	for i, name := range want {
		if plan.NewCategories[i] != name {
			t.Fatalf("expected %v, got %v", want, plan.NewCategories)
		}
	}
}

func TestPlanImportNeverDeduplicatesPrompts(t *testing.T) {
	input, err := ParseImport([]byte(`{
		"prompts": [
			{"task": "Summarize", "category": "Writing", "prompt": "body", "author": "Avery"},
			{"task": "Summarize", "category": "Writing", "prompt": "body", "author": "Avery"}
		],
		"categories": []
	}`))
	if err != nil {
		t.Fatalf("ParseImport failed: %v", err)
	}

	plan := PlanImport(input, nil, time.Now())
	if len(plan.NewPrompts) != 2 {
		t.Fatalf("identical prompts must both import, got %d", len(plan.NewPrompts))
	}
}

func TestPlanImportStampsTimestampsAndDefaults(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	input, err := ParseImport([]byte(`{
		"prompts": [
			{"prompt": "only a body", "copyCount": -4, "createdDate": "1999-01-01T00:00:00Z"}
		],
		"categories": []
	}`))
	if err != nil {
		t.Fatalf("ParseImport failed: %v", err)
	}

	plan := PlanImport(input, nil, now)
	if len(plan.NewPrompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(plan.NewPrompts))
	}
	p := plan.NewPrompts[0]
	if p.Task != "untitled" || p.Category != "uncategorized" || p.Author != "Imported" {
		t.Fatalf("missing fields must default, got %+v", p)
	}
	if p.CopyCount != 0 {
		t.Fatalf("negative copyCount must clamp to zero, got %d", p.CopyCount)
	}
	// Source timestamps are never trusted.
	if !p.CreatedDate.Equal(now) || !p.LastModified.Equal(now) {
		t.Fatalf("timestamps must be import time, got %v / %v", p.CreatedDate, p.LastModified)
	}
	if p.History == nil || len(p.History) != 0 {
		t.Fatalf("absent history must become an empty list, got %v", p.History)
	}
}

func TestPlanImportCarriesWellFormedHistory(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	input, err := ParseImport([]byte(`{
		"prompts": [
			{"task": "a", "category": "c", "prompt": "v2", "author": "x",
			 "history": [{"prompt": "v1", "modifiedDate": "2025-09-01T00:00:00Z", "author": "x"}]},
			{"task": "b", "category": "c", "prompt": "v1", "author": "x",
			 "history": "not-a-list"}
		],
		"categories": []
	}`))
	if err != nil {
		t.Fatalf("ParseImport failed: %v", err)
	}

	plan := PlanImport(input, nil, now)
	if len(plan.NewPrompts[0].History) != 1 || plan.NewPrompts[0].History[0].Prompt != "v1" {
		t.Fatalf("well-formed history must survive verbatim, got %v", plan.NewPrompts[0].History)
	}
	if len(plan.NewPrompts[1].History) != 0 {
		t.Fatalf("garbage history must reset to empty, got %v", plan.NewPrompts[1].History)
	}
}

func TestPlanOpsOrdersCategoriesBeforePrompts(t *testing.T) {
	plan := Plan{
		NewCategories: []string{"Writing"},
		NewPrompts:    []store.Prompt{{Task: "t", Category: "Writing"}},
	}

	ops := plan.Ops()
	if len(ops) != 2 {
		t.Fatalf("expected two ops, got %d", len(ops))
	}
	if ops[0].Kind != store.BatchCreateCategory || ops[1].Kind != store.BatchCreatePrompt {
		t.Fatalf("categories must be created before the prompts that use them, got %+v", ops)
	}
}
