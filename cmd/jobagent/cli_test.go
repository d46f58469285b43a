package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/amishk599/jobagent/internal/ingest"
	"github.com/amishk599/jobagent/internal/model"
)

func TestParseFilters(t *testing.T) {
	yes := true
	f, err := parseFilters(" Boston ", "Senior", "FULL-TIME", &yes)
	if err != nil {
		t.Fatalf("parseFilters: %v", err)
	}
	if f.City != "Boston" || f.RoleLevel != model.LevelSenior || f.WorkType != model.WorkFullTime {
		t.Errorf("filters = %+v", f)
	}
	if f.Remote == nil || !*f.Remote {
		t.Errorf("Remote = %v, want true", f.Remote)
	}

	f, err = parseFilters("", "", "", nil)
	if err != nil {
		t.Fatalf("parseFilters: %v", err)
	}
	if !f.IsZero() {
		t.Errorf("filters = %+v, want zero", f)
	}

	if _, err := parseFilters("", "principal", "", nil); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := parseFilters("", "", "freelance", nil); err == nil {
		t.Error("expected error for unknown work type")
	}
}

func TestSelectSources(t *testing.T) {
	reqs := []ingest.Request{
		{Provider: "greenhouse", Source: "acme", Name: "Acme Corp"},
		{Provider: "lever", Source: "acme"},
		{Provider: "workday", Source: "https://wd1.myworkdayjobs.com/wday/cxs/beta/External/jobs"},
	}

	tests := []struct {
		name      string
		selectors []string
		want      []string
	}{
		{"no selectors keeps all", nil, []string{"greenhouse:acme", "lever:acme", "workday:https://wd1.myworkdayjobs.com/wday/cxs/beta/External/jobs"}},
		{"provider and source", []string{"Lever:acme"}, []string{"lever:acme"}},
		{"bare source matches every provider", []string{"acme"}, []string{"greenhouse:acme", "lever:acme"}},
		{"display name", []string{"acme corp"}, []string{"greenhouse:acme"}},
		{"no match", []string{"gamma"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, r := range selectSources(reqs, tt.selectors) {
				got = append(got, r.Provider+":"+r.Source)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("selectSources = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrintResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, nil)
	if !strings.Contains(buf.String(), "No postings found") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintFacetCounts_Unclassified(t *testing.T) {
	var buf bytes.Buffer
	printFacetCounts(&buf, []model.FacetCount{{Value: "Boston", Count: 3}, {Value: "", Count: 1}})
	out := buf.String()
	if !strings.Contains(out, "Boston") || !strings.Contains(out, "(unclassified)") {
		t.Errorf("output = %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate = %q", got)
	}
}
