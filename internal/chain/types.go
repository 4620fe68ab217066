// Package chain holds the authoritative representation of table chains:
// the temporal sequences tracked across report years, their lifecycle
// state, the in-memory store that owns them during a chapter run, and
// the year-boundary checkpoint that makes aborted runs resumable.
package chain

import "fmt"

// TableRef identifies one extracted table by (chapter, year, serial).
// Tables are immutable once extracted; the matching core only ever
// references them.
type TableRef struct {
	Chapter int `json:"chapter"`
	Year    int `json:"year"`
	Serial  int `json:"serial"`
}

func (r TableRef) String() string {
	return fmt.Sprintf("ch%d_y%d_t%d", r.Chapter, r.Year, r.Serial)
}

// Table is the unit fed into matching: its reference, the header lines
// extracted for it, and an opaque pointer to classification-mask data
// that is carried through untouched.
type Table struct {
	Ref     TableRef `json:"ref"`
	Headers []string `json:"headers"`
	MaskRef string   `json:"mask_ref,omitempty"`
}

// PrimaryHeader returns the first non-empty header line, or "" for a
// blank table.
func (t Table) PrimaryHeader() string {
	for _, h := range t.Headers {
		if h != "" {
			return h
		}
	}
	return ""
}

// Status is a chain's lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusDormant Status = "dormant"
	StatusEnded   Status = "ended"
)

// Valid reports whether s is one of the three lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDormant, StatusEnded:
		return true
	}
	return false
}
