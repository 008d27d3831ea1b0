package cmd

import (
	"strings"
	"testing"
)

func TestStripTemplate(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		input    string
		expected string
	}{
		{
			name:     "title and comment removed",
			title:    "Groceries",
			input:    "# Groceries\n\nbuy milk\nbuy bread\n\n<!--\n  Save and close the editor when done.\n-->\n",
			expected: "buy milk\nbuy bread",
		},
		{
			name:     "markdown headings in the body are kept",
			title:    "Plan",
			input:    "# Plan\n\n## Steps\n1. ship it\n",
			expected: "## Steps\n1. ship it",
		},
		{
			name:     "user removed the template entirely",
			title:    "X",
			input:    "just text",
			expected: "just text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripTemplate(tt.input, tt.title)
			if got != tt.expected {
				t.Errorf("stripTemplate() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestReadAll(t *testing.T) {
	got, err := readAll(strings.NewReader("line one\nline two\n"))
	if err != nil {
		t.Fatalf("readAll() error = %v", err)
	}
	if got != "line one\nline two" {
		t.Errorf("readAll() = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo wörld", 5); got != "héllo..." {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
}
