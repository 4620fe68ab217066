package chain

import (
	"errors"
	"testing"
)

func chainWithYears(id string, chapter int, years []int, header string) *Chain {
	c := New(id, table(chapter, years[0], 1, header), years[0])
	for _, y := range years[1:] {
		if err := c.Append(table(chapter, y, 1, header), y, 0.95, false); err != nil {
			panic(err)
		}
	}
	return c
}

func TestMergeComplementaryChains(t *testing.T) {
	e := chainWithYears("e", 1, []int{2001, 2002, 2003, 2004, 2005, 2006, 2007, 2008, 2009, 2010}, "תאונות דרכים של ילדים")
	f := chainWithYears("f", 1, []int{2011, 2012, 2013, 2014, 2015, 2016, 2017, 2018, 2019, 2020}, "תאונות דרכים של ילדים")

	m, err := Merge(e, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Years) != 20 || m.Years[0] != 2001 || m.Years[19] != 2020 {
		t.Fatalf("merged years = %v", m.Years)
	}
	if len(m.Gaps) != 0 {
		t.Fatalf("gap-free sources produced gaps: %v", m.Gaps)
	}
	if len(m.MergeHistory) != 2 || m.MergeHistory[0] != "e" || m.MergeHistory[1] != "f" {
		t.Fatalf("merge history = %v, want [e f]", m.MergeHistory)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}

	// No table lost: union of inputs equals the merged set.
	want := map[TableRef]bool{}
	for _, r := range append(append([]TableRef{}, e.Tables...), f.Tables...) {
		want[r] = true
	}
	if len(m.Tables) != len(want) {
		t.Fatalf("merged tables = %d, want %d", len(m.Tables), len(want))
	}
	for _, r := range m.Tables {
		if !want[r] {
			t.Fatalf("merged chain invented table %s", r)
		}
	}
}

func TestMergeOverlapSameTableDeduplicates(t *testing.T) {
	a := chainWithYears("a", 1, []int{2001, 2002}, "h")
	b := chainWithYears("b", 1, []int{2002, 2003}, "h")
	// Same serial for 2002 in both, so the overlap agrees.
	m, err := Merge(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Years) != 3 {
		t.Fatalf("merged years = %v, want 2001-2003", m.Years)
	}
}

func TestMergeConflictIsStructuredAndNonDestructive(t *testing.T) {
	g := chainWithYears("g", 1, []int{2014, 2015}, "h")
	h := New("h", table(1, 2015, 99, "h"), 2015)

	_, err := Merge(g, h)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.Year != 2015 {
		t.Fatalf("conflict year = %d, want 2015", conflict.Year)
	}
	if conflict.TableA == conflict.TableB {
		t.Fatal("conflict should carry both differing tables")
	}

	// Sources are untouched.
	if len(g.Years) != 2 || len(h.Years) != 1 {
		t.Fatal("merge attempt mutated its inputs")
	}
}

func TestMergeRecomputesGapsOverCombinedSpan(t *testing.T) {
	a := chainWithYears("a", 1, []int{2001, 2002}, "h")
	b := chainWithYears("b", 1, []int{2005, 2006}, "h")

	m, err := Merge(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Gaps) != 2 || m.Gaps[0] != 2003 || m.Gaps[1] != 2004 {
		t.Fatalf("gaps = %v, want [2003 2004]", m.Gaps)
	}
}

func TestMergeKeepsEarlierChainIdentity(t *testing.T) {
	later := chainWithYears("aaa", 1, []int{2011, 2012}, "h")
	earlier := chainWithYears("zzz", 1, []int{2001, 2002}, "h")

	m, err := Merge(later, earlier)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "zzz" {
		t.Fatalf("merged ID = %s, want the earlier-starting chain's", m.ID)
	}
}
