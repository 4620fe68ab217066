package chain

import "fmt"

// ConflictError reports that two chains claim different tables for the
// same year. A merge hitting this is skipped and logged with full
// context; it is never resolved by silently picking one side.
type ConflictError struct {
	ChainA string
	ChainB string
	Year   int
	TableA TableRef
	TableB TableRef
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("chains %s and %s claim different tables for year %d (%s vs %s)",
		e.ChainA, e.ChainB, e.Year, e.TableA, e.TableB)
}
