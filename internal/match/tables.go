package match

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"tablechain/internal/chain"
)

// LoadTables reads the extraction subsystem's table collection: a JSON
// array of tables keyed by (chapter, year, serial) with their header
// lines. Tables with no headers are kept; blank headers are a
// legitimate low-information case.
func LoadTables(path string) ([]chain.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables %s: %w", path, err)
	}

	var records []struct {
		Chapter int      `json:"chapter"`
		Year    int      `json:"year"`
		Serial  int      `json:"serial"`
		Headers []string `json:"headers"`
		MaskRef string   `json:"mask_ref"`
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse tables %s: %w", path, err)
	}

	tables := make([]chain.Table, 0, len(records))
	seen := make(map[chain.TableRef]bool, len(records))
	for _, r := range records {
		ref := chain.TableRef{Chapter: r.Chapter, Year: r.Year, Serial: r.Serial}
		if seen[ref] {
			return nil, fmt.Errorf("duplicate table %s in %s", ref, path)
		}
		seen[ref] = true
		tables = append(tables, chain.Table{Ref: ref, Headers: r.Headers, MaskRef: r.MaskRef})
	}
	return tables, nil
}

// GroupByChapter splits a table collection into per-chapter slices,
// each sorted by (year, serial).
func GroupByChapter(tables []chain.Table) map[int][]chain.Table {
	byChapter := make(map[int][]chain.Table)
	for _, t := range tables {
		byChapter[t.Ref.Chapter] = append(byChapter[t.Ref.Chapter], t)
	}
	for _, ts := range byChapter {
		sort.Slice(ts, func(i, j int) bool {
			if ts[i].Ref.Year != ts[j].Ref.Year {
				return ts[i].Ref.Year < ts[j].Ref.Year
			}
			return ts[i].Ref.Serial < ts[j].Ref.Serial
		})
	}
	return byChapter
}

// groupByYear returns the chapter's tables keyed by year, plus the
// sorted list of years present.
func groupByYear(tables []chain.Table) (map[int][]chain.Table, []int) {
	byYear := make(map[int][]chain.Table)
	for _, t := range tables {
		byYear[t.Ref.Year] = append(byYear[t.Ref.Year], t)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, ts := range byYear {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Ref.Serial < ts[j].Ref.Serial })
	}
	return byYear, years
}
