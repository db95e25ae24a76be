package main

import "testing"

func TestAutocompleteActivation(t *testing.T) {
	tests := []struct {
		buffer string
		active bool
		prefix string
	}{
		{"", false, ""},
		{"hello", false, ""},
		{"=", false, ""},
		{"=S", true, "S"},
		{"=sum", true, "sum"},
		{"=SUM(", false, ""},
		{"=SUM(A1)+av", true, "av"},
		{"=SUM(A1)", false, ""},
		{"=1+2", false, ""},
	}
	for _, tt := range tests {
		var a Autocomplete
		a.Update(tt.buffer)
		if a.Active != tt.active {
			t.Errorf("Update(%q): Active = %v, want %v", tt.buffer, a.Active, tt.active)
		}
		if a.Prefix != tt.prefix {
			t.Errorf("Update(%q): Prefix = %q, want %q", tt.buffer, a.Prefix, tt.prefix)
		}
	}
}

func TestAutocompleteFilterCaseInsensitive(t *testing.T) {
	var a Autocomplete
	a.Update("=s")
	names := []string{}
	for _, f := range a.Matches() {
		names = append(names, f.Name)
	}
	if len(names) != 2 || names[0] != "SUM" || names[1] != "SUMIF" {
		t.Fatalf("matches for 's' = %v", names)
	}

	// Catalog order is preserved, not re-sorted.
	a.Update("=a")
	if got := a.Matches(); len(got) != 2 || got[0].Name != "AVERAGE" || got[1].Name != "ABS" {
		t.Fatalf("matches for 'a' = %v", got)
	}

	a.Update("=x")
	if m := a.Matches(); len(m) != 0 {
		t.Fatalf("matches for 'x' = %v", m)
	}
}

func TestFilterCatalogCap(t *testing.T) {
	if got := len(filterCatalog("")); got != autocompleteLimit {
		t.Fatalf("unfiltered catalog shows %d entries, want %d", got, autocompleteLimit)
	}
}

func TestAutocompleteHighlightResetsOnPrefixChange(t *testing.T) {
	var a Autocomplete
	a.Update("=s")
	a.MoveDown()
	if a.Highlight != 1 {
		t.Fatalf("Highlight = %d", a.Highlight)
	}
	a.Update("=su")
	if a.Highlight != 0 {
		t.Fatal("highlight should reset when the prefix changes")
	}
	a.Update("=su")
	a.MoveDown()
	a.Update("=su")
	if a.Highlight != 1 {
		t.Fatal("highlight should persist for an unchanged prefix")
	}
}

func TestAutocompleteWrapThroughAssistantEntry(t *testing.T) {
	var a Autocomplete
	a.Update("=su") // matches SUM, SUMIF plus the assistant entry
	a.MoveDown()
	a.MoveDown()
	if !a.AtAssistant() {
		t.Fatalf("Highlight = %d, expected assistant entry", a.Highlight)
	}
	a.MoveDown()
	if a.Highlight != 0 {
		t.Fatal("MoveDown should wrap back to the first match")
	}
	a.MoveUp()
	if !a.AtAssistant() {
		t.Fatal("MoveUp from the top should wrap to the assistant entry")
	}
}

func TestAutocompleteAccept(t *testing.T) {
	var a Autocomplete
	a.Update("=su")
	buffer, ask := a.Accept()
	if ask || buffer != "=SUM(" {
		t.Fatalf("Accept = (%q, %v)", buffer, ask)
	}
	a.MoveDown()
	buffer, ask = a.Accept()
	if ask || buffer != "=SUMIF(" {
		t.Fatalf("Accept = (%q, %v)", buffer, ask)
	}
	a.MoveDown()
	if _, ask = a.Accept(); !ask {
		t.Fatal("accepting the assistant entry should request the assistant")
	}
}
