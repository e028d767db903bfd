package main

import (
	"strings"
	"testing"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Name", "Size"}, [][]string{{"a", "1 kB"}, {"short"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"NAME", "SIZE", "1 kB", "short", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("table without headers rendered")
	}
}
