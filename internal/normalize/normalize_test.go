package normalize

import "testing"

func TestHeader_StripsYearTokens(t *testing.T) {
	if got := Header("אוכלוסייה לפי מחוז 2003"); got != "אוכלוסייה לפי מחוז" {
		t.Fatalf("Header(year suffix)=%q, want year removed", got)
	}
	if got := Header("אוכלוסייה ממוצע 2004 לפי מחוז"); got != "אוכלוסייה לפי מחוז" {
		t.Fatalf("Header(average-year token)=%q, want token removed", got)
	}
	if got := Header("מלאי סוף 2011"); got != "מלאי" {
		t.Fatalf("Header(end-of-year token)=%q, want token removed", got)
	}
}

func TestHeader_StripsTitleMarkersAndContinuation(t *testing.T) {
	if got := Header("לוח: 2.13 ילדים לפי דת (המשך)"); got != "ילדים לפי דת" {
		t.Fatalf("Header(title marker)=%q, want marker and continuation removed", got)
	}
	if got := Header("תרשים 4.1 תאונות דרכים"); got != "תאונות דרכים" {
		t.Fatalf("Header(diagram marker)=%q, want marker removed", got)
	}
}

func TestHeader_SafeReplacements(t *testing.T) {
	if got := Header("מספר ושיעור ילדים"); got != "מספר ואחוז ילדים" {
		t.Fatalf("Header(synonym)=%q, want synonym normalized", got)
	}
	if got := Header("גיל 0־17"); got != "גיל 0-17" {
		t.Fatalf("Header(hebrew dash)=%q, want ASCII dash", got)
	}
}

func TestHeader_StripsPointingKeepsMaqaf(t *testing.T) {
	// Vowel points vanish entirely.
	if got := Header("יְלָדִים"); got != "ילדים" {
		t.Fatalf("Header(pointed)=%q, want points stripped", got)
	}
	// The maqaf survives the pointing strip and becomes a hyphen.
	if got := Header("בני 5־9 שנים"); got != "בני 5-9 שנים" {
		t.Fatalf("Header(maqaf range)=%q, want ASCII hyphen", got)
	}
}

func TestHeader_CollapsesWhitespace(t *testing.T) {
	if got := Header("  a \t b\n\nc  "); got != "a b c" {
		t.Fatalf("Header(whitespace)=%q, want %q", got, "a b c")
	}
}

func TestHeader_EmptyStaysEmpty(t *testing.T) {
	if got := Header(""); got != "" {
		t.Fatalf("Header(\"\")=%q, want empty", got)
	}
	// A header that is nothing but a year token also collapses to empty.
	if got := Header("2019"); got != "" {
		t.Fatalf("Header(\"2019\")=%q, want empty", got)
	}
}

func TestHeader_NonHebrewPassesThrough(t *testing.T) {
	if got := Header("Population by district"); got != "Population by district" {
		t.Fatalf("Header(latin)=%q, want unchanged", got)
	}
}

func TestRepresentative(t *testing.T) {
	headers := []string{"", "line one\nline two\nline one\nline three\nline four"}
	want := "line one | line two | line three"
	if got := Representative(headers); got != want {
		t.Fatalf("Representative=%q, want %q", got, want)
	}
	if got := Representative([]string{"", "   "}); got != "" {
		t.Fatalf("Representative(blank)=%q, want empty", got)
	}
}
