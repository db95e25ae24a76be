package main

import "strings"

// FormulaFunc is one entry of the static function catalog.
type FormulaFunc struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Desc      string `json:"desc"`
}

// formulaCatalog is ordered; filtering preserves this order.
var formulaCatalog = []FormulaFunc{
	{"SUM", "SUM(range)", "Sum of a range of cells"},
	{"AVERAGE", "AVERAGE(range)", "Average of a range of cells"},
	{"COUNT", "COUNT(range)", "Count of numeric cells in a range"},
	{"MAX", "MAX(range)", "Largest value in a range"},
	{"MIN", "MIN(range)", "Smallest value in a range"},
	{"IF", "IF(condition, then, else)", "Conditional value"},
	{"SUMIF", "SUMIF(range, criteria)", "Sum of cells matching a criteria"},
	{"COUNTIF", "COUNTIF(range, criteria)", "Count of cells matching a criteria"},
	{"VLOOKUP", "VLOOKUP(value, range, col)", "Vertical table lookup"},
	{"CONCATENATE", "CONCATENATE(a, b, ...)", "Join text values"},
	{"ROUND", "ROUND(value, digits)", "Round to a number of digits"},
	{"ABS", "ABS(value)", "Absolute value"},
	{"TODAY", "TODAY()", "Current date"},
	{"NOW", "NOW()", "Current date and time"},
	{"LEN", "LEN(text)", "Length of text"},
	{"LEFT", "LEFT(text, n)", "Leading characters of text"},
	{"RIGHT", "RIGHT(text, n)", "Trailing characters of text"},
	{"MID", "MID(text, start, n)", "Substring of text"},
	{"TRIM", "TRIM(text)", "Text without surrounding whitespace"},
	{"UPPER", "UPPER(text)", "Uppercased text"},
	{"LOWER", "LOWER(text)", "Lowercased text"},
}

// autocompleteLimit caps how many catalog entries are shown at once.
const autocompleteLimit = 8

// filterCatalog returns the first autocompleteLimit functions whose name
// starts with the uppercased prefix.
func filterCatalog(prefix string) []FormulaFunc {
	up := strings.ToUpper(prefix)
	out := []FormulaFunc{}
	for _, f := range formulaCatalog {
		if strings.HasPrefix(f.Name, up) {
			out = append(out, f)
			if len(out) == autocompleteLimit {
				break
			}
		}
	}
	return out
}

// isLetters reports whether s is a non-empty run of ASCII letters.
func isLetters(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// Autocomplete tracks the formula suggestion list shown while editing. The
// list carries one extra synthetic entry after the catalog matches that
// hands the buffer off to the assistant instead of completing a function.
type Autocomplete struct {
	Active    bool
	Prefix    string
	Highlight int
}

// Update re-evaluates activation from the edit buffer: active when the
// buffer starts with "=" and a run of letters immediately follows the last
// "=". The highlight resets whenever the prefix changes.
func (a *Autocomplete) Update(buffer string) {
	if !strings.HasPrefix(buffer, "=") {
		a.deactivate()
		return
	}
	tail := buffer[strings.LastIndex(buffer, "=")+1:]
	if !isLetters(tail) {
		a.deactivate()
		return
	}
	if !a.Active || tail != a.Prefix {
		a.Highlight = 0
	}
	a.Active = true
	a.Prefix = tail
}

func (a *Autocomplete) deactivate() {
	a.Active = false
	a.Prefix = ""
	a.Highlight = 0
}

// Matches returns the filtered catalog entries for the current prefix.
func (a *Autocomplete) Matches() []FormulaFunc {
	if !a.Active {
		return nil
	}
	return filterCatalog(a.Prefix)
}

// entryCount includes the synthetic assistant entry.
func (a *Autocomplete) entryCount() int {
	return len(a.Matches()) + 1
}

// MoveDown advances the highlight, wrapping past the assistant entry.
func (a *Autocomplete) MoveDown() {
	if !a.Active {
		return
	}
	a.Highlight = (a.Highlight + 1) % a.entryCount()
}

// MoveUp retreats the highlight, wrapping at the top.
func (a *Autocomplete) MoveUp() {
	if !a.Active {
		return
	}
	n := a.entryCount()
	a.Highlight = (a.Highlight - 1 + n) % n
}

// AtAssistant reports whether the synthetic assistant entry is highlighted.
func (a *Autocomplete) AtAssistant() bool {
	return a.Active && a.Highlight == len(a.Matches())
}

// Accept resolves the highlighted entry. For a catalog function it returns
// the replacement buffer "=NAME(" with askAssistant false; for the synthetic
// entry it returns askAssistant true.
func (a *Autocomplete) Accept() (buffer string, askAssistant bool) {
	if a.AtAssistant() {
		return "", true
	}
	m := a.Matches()
	if a.Highlight < 0 || a.Highlight >= len(m) {
		return "", false
	}
	return "=" + m[a.Highlight].Name + "(", false
}
