// Package sheet defines the tabular-store boundary. The store exposes
// five primitives, each a single atomic network call; there is no
// cross-call transaction. Everything above this interface treats the
// store as a row-oriented database accessed read-modify-write.
package sheet

import "context"

// Client is the minimal contract with the external tabular store.
type Client interface {
	// ReadRange returns rendered cell values for an A1 range. Trailing
	// empty cells in a row may be omitted.
	ReadRange(ctx context.Context, rng string) ([][]string, error)
	// ReadFormulas is ReadRange with formula rendering, so hyperlink
	// cells come back as their =HYPERLINK(...) source text.
	ReadFormulas(ctx context.Context, rng string) ([][]string, error)
	// Append adds one row to the table covering rng.
	Append(ctx context.Context, rng string, row []string) error
	// Update overwrites the cells of rng with rows.
	Update(ctx context.Context, rng string, rows [][]string) error
	// DeleteRows removes whole sheet rows [start, end), 0-based.
	DeleteRows(ctx context.Context, sheetID int64, start, end int) error
	// SheetID resolves a tab title to the store's internal identifier.
	SheetID(ctx context.Context, title string) (int64, error)
}
