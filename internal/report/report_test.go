package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"tablechain/internal/chain"
	"tablechain/internal/match"
)

func TestAddChapterAccounting(t *testing.T) {
	active := chain.New("a", chain.Table{Ref: chain.TableRef{Chapter: 1, Year: 2001, Serial: 1}, Headers: []string{"h"}}, 2001)
	dormant := chain.New("d", chain.Table{Ref: chain.TableRef{Chapter: 1, Year: 2001, Serial: 2}, Headers: []string{"h"}}, 2001)
	dormant.Status = chain.StatusDormant

	var r RunReport
	r.AddChapter(&match.Result{
		Chapter: 1,
		Chains:  []*chain.Chain{active, dormant},
		Stats: match.ChapterStats{Chapter: 1, Years: []match.YearStats{
			{Year: 2001, Tables: 2, NewChains: 2},
			{Year: 2002, Tables: 1, Accepted: 1, Degraded: 1},
		}},
	})

	if r.TotalTables != 3 || r.TotalChains != 2 || r.TotalAccepted != 1 || r.Degraded != 1 {
		t.Fatalf("totals wrong: %+v", r)
	}
	if len(r.Chapters) != 1 || r.Chapters[0].Active != 1 || r.Chapters[0].Dormant != 1 {
		t.Fatalf("chapter summary wrong: %+v", r.Chapters)
	}
}

func TestWriteChainsJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "chains_ch1.json")
	c := chain.New("ch1_y2001_t1", chain.Table{Ref: chain.TableRef{Chapter: 1, Year: 2001, Serial: 1}, Headers: []string{"אוכלוסייה"}}, 2001)

	if err := WriteChainsJSON(path, []*chain.Chain{c}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []*chain.Chain
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != c.ID || got[0].Headers[0] != "אוכלוסייה" {
		t.Fatalf("round trip mangled: %+v", got)
	}
}

func TestWriteChainsJSONRefusesInvalid(t *testing.T) {
	c := chain.New("x", chain.Table{Ref: chain.TableRef{Chapter: 1, Year: 2001, Serial: 1}}, 2001)
	c.Years = nil
	err := WriteChainsJSON(filepath.Join(t.TempDir(), "x.json"), []*chain.Chain{c})
	if err == nil {
		t.Fatal("invalid chain exported")
	}
}
