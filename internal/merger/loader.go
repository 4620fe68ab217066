package merger

import (
	"encoding/json"
	"fmt"
	"os"

	"tablechain/internal/chain"
)

// LoadChains reads the per-chapter chain JSON files produced by the
// matching pass and returns one combined collection. Chain IDs embed
// their chapter, so a collision across files means the same chapter was
// exported twice; that is an input error, not something to repair here.
func LoadChains(paths ...string) ([]*chain.Chain, error) {
	var all []*chain.Chain
	seen := make(map[string]string)

	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read chains %s: %w", path, err)
		}
		var chains []*chain.Chain
		if err := json.Unmarshal(raw, &chains); err != nil {
			return nil, fmt.Errorf("parse chains %s: %w", path, err)
		}
		for _, c := range chains {
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if prev, dup := seen[c.ID]; dup {
				return nil, fmt.Errorf("chain %s appears in both %s and %s", c.ID, prev, path)
			}
			seen[c.ID] = path
			all = append(all, c)
		}
	}
	return all, nil
}
