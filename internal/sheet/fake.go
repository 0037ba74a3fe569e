package sheet

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Fake is an in-memory Client for tests. Cells hold their source text,
// so hyperlink formulas survive a write/read round trip the way the
// real store keeps them.
type Fake struct {
	mu     sync.Mutex
	sheets map[string]*fakeSheet
	nextID int64
	// FailOn maps an operation name (read, formulas, append, update,
	// delete, sheetid) to an error returned by the next such call.
	FailOn map[string]error
}

type fakeSheet struct {
	id   int64
	rows [][]string // index 0 is sheet row 1
}

func NewFake() *Fake {
	return &Fake{sheets: map[string]*fakeSheet{}, nextID: 100, FailOn: map[string]error{}}
}

func (f *Fake) sheet(title string) *fakeSheet {
	s, ok := f.sheets[title]
	if !ok {
		f.nextID++
		s = &fakeSheet{id: f.nextID}
		f.sheets[title] = s
	}
	return s
}

func (f *Fake) fail(op string) error {
	if err, ok := f.FailOn[op]; ok {
		delete(f.FailOn, op)
		return err
	}
	return nil
}

// Seed writes rows starting at the given 1-based sheet row.
func (f *Fake) Seed(title string, startRow int, rows [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sheet(title)
	for i, row := range rows {
		s.set(startRow+i, row)
	}
}

// SetCell writes a single cell, e.g. a counter value.
func (f *Fake) SetCell(title string, row int, col string, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sheet(title)
	s.setCell(row, colIndex(col), value)
}

// Cell reads back a single raw cell.
func (f *Fake) Cell(title string, row int, col string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sheet(title)
	return s.get(row, colIndex(col))
}

// RowCount returns the number of occupied sheet rows.
func (f *Fake) RowCount(title string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i, row := range f.sheet(title).rows {
		for _, c := range row {
			if c != "" {
				n = i + 1
				break
			}
		}
	}
	return n
}

func (s *fakeSheet) set(row int, values []string) {
	for s.rowIdx(row) >= len(s.rows) {
		s.rows = append(s.rows, nil)
	}
	s.rows[s.rowIdx(row)] = append([]string(nil), values...)
}

func (s *fakeSheet) setCell(row, col int, value string) {
	for s.rowIdx(row) >= len(s.rows) {
		s.rows = append(s.rows, nil)
	}
	r := s.rows[s.rowIdx(row)]
	for col >= len(r) {
		r = append(r, "")
	}
	r[col] = value
	s.rows[s.rowIdx(row)] = r
}

func (s *fakeSheet) get(row, col int) string {
	i := s.rowIdx(row)
	if i < 0 || i >= len(s.rows) || col >= len(s.rows[i]) {
		return ""
	}
	return s.rows[i][col]
}

func (s *fakeSheet) rowIdx(row int) int { return row - 1 }

var hyperlinkLabelRe = regexp.MustCompile(`(?i)HYPERLINK\(\s*"[^"]*"\s*,\s*"([^"]*)"`)

func render(cell string) string {
	if m := hyperlinkLabelRe.FindStringSubmatch(cell); m != nil {
		return m[1]
	}
	return cell
}

func (f *Fake) read(rng string, formulas bool) ([][]string, error) {
	ref, err := ParseRef(rng)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sheet(ref.Sheet)
	startCol, endCol := colIndex(ref.StartCol), colIndex(ref.EndCol)
	endRow := ref.EndRow
	if endRow == 0 {
		endRow = len(s.rows)
	}
	var out [][]string
	lastNonEmpty := 0
	for row := ref.StartRow; row <= endRow; row++ {
		var vals []string
		for col := startCol; col <= endCol; col++ {
			v := s.get(row, col)
			if !formulas {
				v = render(v)
			}
			vals = append(vals, v)
		}
		// trim trailing empties like the real API does
		for len(vals) > 0 && vals[len(vals)-1] == "" {
			vals = vals[:len(vals)-1]
		}
		out = append(out, vals)
		if len(vals) > 0 {
			lastNonEmpty = len(out)
		}
	}
	return out[:lastNonEmpty], nil
}

func (f *Fake) ReadRange(ctx context.Context, rng string) ([][]string, error) {
	if err := f.fail("read"); err != nil {
		return nil, err
	}
	return f.read(rng, false)
}

func (f *Fake) ReadFormulas(ctx context.Context, rng string) ([][]string, error) {
	if err := f.fail("formulas"); err != nil {
		return nil, err
	}
	return f.read(rng, true)
}

func (f *Fake) Append(ctx context.Context, rng string, row []string) error {
	if err := f.fail("append"); err != nil {
		return err
	}
	ref, err := ParseRef(rng)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sheet(ref.Sheet)
	last := 0
	for i, r := range s.rows {
		for _, c := range r {
			if c != "" {
				last = i + 1
				break
			}
		}
	}
	s.set(last+1, row)
	return nil
}

func (f *Fake) Update(ctx context.Context, rng string, rows [][]string) error {
	if err := f.fail("update"); err != nil {
		return err
	}
	ref, err := ParseRef(rng)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sheet(ref.Sheet)
	for i, row := range rows {
		for j, v := range row {
			s.setCell(ref.StartRow+i, colIndex(ref.StartCol)+j, v)
		}
	}
	return nil
}

func (f *Fake) DeleteRows(ctx context.Context, sheetID int64, start, end int) error {
	if err := f.fail("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sheets {
		if s.id != sheetID {
			continue
		}
		if start < 0 || start >= len(s.rows) {
			return fmt.Errorf("row %d out of range", start)
		}
		if end > len(s.rows) {
			end = len(s.rows)
		}
		s.rows = append(s.rows[:start], s.rows[end:]...)
		return nil
	}
	return fmt.Errorf("sheet id %d not found", sheetID)
}

func (f *Fake) SheetID(ctx context.Context, title string) (int64, error) {
	if err := f.fail("sheetid"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sheets[title]; ok {
		return s.id, nil
	}
	return 0, fmt.Errorf("sheet %q not found", title)
}

func colIndex(col string) int { return ColIndex(col) }
