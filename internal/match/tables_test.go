package match

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTablesAndGrouping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.json")
	data := `[
		{"chapter": 2, "year": 2002, "serial": 3, "headers": ["לוח 2.3: תעסוקה"]},
		{"chapter": 1, "year": 2001, "serial": 1, "headers": ["לוח 1.1: אוכלוסייה"], "mask_ref": "m1"},
		{"chapter": 1, "year": 2001, "serial": 2, "headers": []},
		{"chapter": 1, "year": 2002, "serial": 1, "headers": ["לוח 1.1: אוכלוסייה"]}
	]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	tables, err := LoadTables(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 4 {
		t.Fatalf("tables = %d, want 4 (headerless tables are kept)", len(tables))
	}

	byChapter := GroupByChapter(tables)
	if len(byChapter) != 2 {
		t.Fatalf("chapters = %d, want 2", len(byChapter))
	}
	ch1 := byChapter[1]
	if len(ch1) != 3 {
		t.Fatalf("chapter 1 tables = %d, want 3", len(ch1))
	}
	// Sorted by (year, serial).
	if ch1[0].Ref.Serial != 1 || ch1[1].Ref.Serial != 2 || ch1[2].Ref.Year != 2002 {
		t.Fatalf("chapter 1 order wrong: %v %v %v", ch1[0].Ref, ch1[1].Ref, ch1[2].Ref)
	}
	if ch1[0].MaskRef != "m1" {
		t.Fatalf("mask ref not carried: %+v", ch1[0])
	}
}

func TestLoadTablesRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.json")
	data := `[
		{"chapter": 1, "year": 2001, "serial": 1, "headers": ["a"]},
		{"chapter": 1, "year": 2001, "serial": 1, "headers": ["b"]}
	]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTables(path); err == nil {
		t.Fatal("duplicate (chapter, year, serial) accepted")
	}
}
