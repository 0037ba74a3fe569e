// Package docket is the Case Store Adapter: it owns the column layout
// of the pending-cases region, hyperlink encoding, row lookup by
// normalized key, the case-number counters and the finished-case logs.
// All other components reach the tabular store only through it.
package docket

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"docketline/internal/config"
	"docketline/internal/domain"
	"docketline/internal/logging"
	"docketline/internal/sheet"
)

// Pending-region column order. Fixed: every read and write in this
// package depends on it.
const (
	colJudge = iota
	colStatus
	colName
	colNumber
	colFilingDate
	colLink
	colCount
)

type Store struct {
	client      sheet.Client
	pending     sheet.Ref
	logCrim     *sheet.Ref
	logCivil    *sheet.Ref
	counterCrim string
	counterCiv  string
	roster      string
	log         *slog.Logger
}

// New parses the configured ranges once. A malformed pending range is a
// startup failure, not a per-call one.
func New(client sheet.Client, cfg *config.Config) (*Store, error) {
	pending, err := sheet.ParseRef(cfg.Sheet.PendingCasesRange)
	if err != nil {
		return nil, fmt.Errorf("pending cases range: %w", err)
	}
	s := &Store{
		client:      client,
		pending:     pending,
		counterCrim: sheet.NormalizeCell(cfg.Sheet.CounterCellCriminal),
		counterCiv:  sheet.NormalizeCell(cfg.Sheet.CounterCellCivil),
		roster:      cfg.Sheet.JudgeRosterRange,
		log:         logging.New("docket"),
	}
	if cfg.Sheet.CaseLogRangeCrim != "" {
		ref, err := sheet.ParseRef(cfg.Sheet.CaseLogRangeCrim)
		if err != nil {
			return nil, fmt.Errorf("criminal case log range: %w", err)
		}
		s.logCrim = &ref
	}
	if cfg.Sheet.CaseLogRangeCivil != "" {
		ref, err := sheet.ParseRef(cfg.Sheet.CaseLogRangeCivil)
		if err != nil {
			return nil, fmt.Errorf("civil case log range: %w", err)
		}
		s.logCivil = &ref
	}
	return s, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func (s *Store) caseFromRow(row []string, sheetRow int) domain.Case {
	statusText := cell(row, colStatus)
	judge := cell(row, colJudge)
	if judge == "" {
		judge = "NA"
	}
	return domain.Case{
		Judge:      judge,
		Status:     domain.ParseStatus(statusText),
		StatusText: statusText,
		Name:       cell(row, colName),
		Number:     ExtractLabel(cell(row, colNumber)),
		FilingDate: cell(row, colFilingDate),
		FilingLink: ExtractURL(cell(row, colLink)),
		Row:        sheetRow,
	}
}

// FindCase resolves a case by whitespace/case-insensitive number match
// over the pending region.
func (s *Store) FindCase(ctx context.Context, caseNumber string) (domain.Case, domain.Result) {
	rows, err := s.client.ReadFormulas(ctx, s.pending.DataRange())
	if err != nil {
		s.log.Error("read pending cases", "error", err)
		return domain.Case{}, domain.Fail(fmt.Sprintf("Error reading sheet: %v", err))
	}
	target := normalizeKey(caseNumber)
	for offset, row := range rows {
		if len(row) <= colNumber {
			continue
		}
		if normalizeKey(ExtractLabel(row[colNumber])) == target {
			return s.caseFromRow(row, s.pending.StartRow+offset), domain.OK("")
		}
	}
	return domain.Case{}, domain.Fail(fmt.Sprintf("Case number '%s' not found.", caseNumber))
}

// ListCases returns every row of the pending region, links resolved.
func (s *Store) ListCases(ctx context.Context) ([]domain.Case, domain.Result) {
	rows, err := s.client.ReadFormulas(ctx, s.pending.DataRange())
	if err != nil {
		s.log.Error("read pending cases", "error", err)
		return nil, domain.Fail(fmt.Sprintf("Error retrieving cases: %v", err))
	}
	var cases []domain.Case
	for offset, row := range rows {
		if len(row) == 0 {
			continue
		}
		cases = append(cases, s.caseFromRow(row, s.pending.StartRow+offset))
	}
	return cases, domain.OK("")
}

// AppendCase adds a new pending row in the fixed six-column order. The
// link cell is a hyperlink formula or empty, never a bare URL string.
func (s *Store) AppendCase(ctx context.Context, c domain.Case) domain.Result {
	statusText := c.StatusText
	if statusText == "" {
		statusText = string(c.Status)
	}
	row := make([]string, colCount)
	row[colJudge] = c.Judge
	row[colStatus] = statusText
	row[colName] = c.Name
	row[colNumber] = c.Number
	row[colFilingDate] = c.FilingDate
	row[colLink] = Formula(c.FilingLink, "Link")
	if err := s.client.Append(ctx, s.pending.AppendRange(), row); err != nil {
		s.log.Error("append case", "case_number", c.Number, "error", err)
		return domain.Fail(fmt.Sprintf("Error adding to docket: %v", err))
	}
	return domain.OK(fmt.Sprintf("Case '%s' added to docket.", c.Name))
}

// FieldChanges lists the columns UpdateCase may overlay. Nil fields are
// preserved verbatim from the current row content.
type FieldChanges struct {
	Judge      *string
	Status     *string
	Name       *string
	Number     *string
	FilingDate *string
	FilingLink *string
}

// UpdateCase finds the row by number, reads its full current content
// with formulas intact, overlays only the changed columns and writes
// the row back. One row-level write, no rollback.
func (s *Store) UpdateCase(ctx context.Context, caseNumber string, changes FieldChanges) domain.Result {
	found, res := s.FindCase(ctx, caseNumber)
	if !res.Success {
		return res
	}
	rowRange := s.pending.RowRange(found.Row)
	current, err := s.client.ReadFormulas(ctx, rowRange)
	if err != nil || len(current) == 0 {
		s.log.Error("read row before update", "row", found.Row, "error", err)
		return domain.Fail(fmt.Sprintf("Could not retrieve data for row %d.", found.Row))
	}
	row := make([]string, colCount)
	copy(row, current[0])
	overlay := func(i int, v *string) {
		if v != nil {
			row[i] = *v
		}
	}
	overlay(colJudge, changes.Judge)
	overlay(colStatus, changes.Status)
	overlay(colName, changes.Name)
	overlay(colNumber, changes.Number)
	overlay(colFilingDate, changes.FilingDate)
	if changes.FilingLink != nil {
		row[colLink] = Formula(*changes.FilingLink, "Link")
	}
	if err := s.client.Update(ctx, rowRange, [][]string{row}); err != nil {
		s.log.Error("update case", "case_number", caseNumber, "error", err)
		return domain.Fail(fmt.Sprintf("Error updating docket: %v", err))
	}
	return domain.OK(fmt.Sprintf("Case '%s' successfully updated.", caseNumber))
}

// DeleteCase removes the pending row matching both name and number.
// Any mismatch fails closed: nothing is deleted.
func (s *Store) DeleteCase(ctx context.Context, caseName, caseNumber string) domain.Result {
	rows, err := s.client.ReadRange(ctx, s.pending.DataRange())
	if err != nil {
		s.log.Error("read pending cases", "error", err)
		return domain.Fail(fmt.Sprintf("Error deleting case: %v", err))
	}
	nameKey, numberKey := normalizeKey(caseName), normalizeKey(caseNumber)
	rowToDelete := -1
	for offset, row := range rows {
		if len(row) <= colNumber {
			continue
		}
		if normalizeKey(row[colName]) == nameKey && normalizeKey(row[colNumber]) == numberKey {
			// row-delete API is 0-based
			rowToDelete = s.pending.StartRow + offset - 1
			break
		}
	}
	if rowToDelete == -1 {
		return domain.Fail(fmt.Sprintf("Case with name '%s' and number '%s' not found.", caseName, caseNumber))
	}
	sheetID, err := s.client.SheetID(ctx, s.pending.Sheet)
	if err != nil {
		s.log.Error("resolve sheet id", "sheet", s.pending.Sheet, "error", err)
		return domain.Fail(fmt.Sprintf("Sheet '%s' not found.", s.pending.Sheet))
	}
	if err := s.client.DeleteRows(ctx, sheetID, rowToDelete, rowToDelete+1); err != nil {
		s.log.Error("delete row", "row", rowToDelete, "error", err)
		return domain.Fail(fmt.Sprintf("Error deleting case: %v", err))
	}
	return domain.OK(fmt.Sprintf("Deleted case with name '%s' and number '%s'.", caseName, caseNumber))
}

func (s *Store) counterCell(t domain.CaseType) (string, error) {
	switch t {
	case domain.TypeCriminal:
		if s.counterCrim == "" {
			return "", fmt.Errorf("criminal case-number counter cell not configured")
		}
		return s.counterCrim, nil
	case domain.TypeCivil:
		if s.counterCiv == "" {
			return "", fmt.Errorf("civil case-number counter cell not configured")
		}
		return s.counterCiv, nil
	default:
		return "", fmt.Errorf("invalid case type %q", t)
	}
}

var digitsRe = regexp.MustCompile(`(\d+)`)

// NextCaseNumber reads the counter cell for the type and returns the
// prefixed next available number, e.g. "Crim 050".
func (s *Store) NextCaseNumber(ctx context.Context, t domain.CaseType) (string, domain.Result) {
	cellRef, err := s.counterCell(t)
	if err != nil {
		return "", domain.Fail(err.Error())
	}
	rows, rerr := s.client.ReadRange(ctx, cellRef)
	if rerr != nil || len(rows) == 0 || len(rows[0]) == 0 {
		s.log.Error("read counter", "cell", cellRef, "error", rerr)
		return "", domain.Fail(fmt.Sprintf("Error getting available case number: %v", rerr))
	}
	raw := rows[0][0]
	number := raw
	if m := digitsRe.FindStringSubmatch(raw); m != nil {
		number = m[1]
	}
	return fmt.Sprintf("%s %s", t.Prefix(), number), domain.OK("")
}

// counterRe accepts "Crim 193", "Crim193", "Crim-193" and bare "193";
// leading zeros are dropped before parsing.
var counterRe = regexp.MustCompile(`^(?:([A-Za-z]+)\s*-?\s*)?0*([0-9]+)\s*$`)

// AdvanceCaseNumber increments the counter with a bare read-then-write.
// Not atomic: two concurrent advances can both read the same value and
// one update is lost. Accepted consistency gap.
func (s *Store) AdvanceCaseNumber(ctx context.Context, t domain.CaseType) domain.Result {
	cellRef, err := s.counterCell(t)
	if err != nil {
		return domain.Fail(err.Error())
	}
	rows, rerr := s.client.ReadRange(ctx, cellRef)
	if rerr != nil || len(rows) == 0 || len(rows[0]) == 0 {
		s.log.Error("read counter", "cell", cellRef, "error", rerr)
		return domain.Fail(fmt.Sprintf("Error reading current available case number: %v", rerr))
	}
	raw := strings.TrimSpace(rows[0][0])
	m := counterRe.FindStringSubmatch(raw)
	if m == nil {
		return domain.Fail(fmt.Sprintf("Could not parse numeric suffix from '%s'", raw))
	}
	var current int
	fmt.Sscanf(m[2], "%d", &current)
	next := fmt.Sprintf("%03d", current+1)
	if werr := s.client.Update(ctx, cellRef, [][]string{{next}}); werr != nil {
		s.log.Error("write counter", "cell", cellRef, "error", werr)
		return domain.Fail(fmt.Sprintf("Error incrementing available case number: %v", werr))
	}
	return domain.OK("")
}

// LogRow is one finished-case record appended to a case log.
type LogRow struct {
	Name       string
	Number     string
	FilingDate string
	FilingLink string
	EndingDate string
	Ending     domain.Ending
	EndingLink string
}

// AppendToLog writes the row at the first empty slot of the type's log
// region. Appending is by downward scan, not by table append, because
// the log is a fixed sub-region of a larger sheet.
func (s *Store) AppendToLog(ctx context.Context, t domain.CaseType, row LogRow) domain.Result {
	var ref *sheet.Ref
	if t == domain.TypeCriminal {
		ref = s.logCrim
	} else {
		ref = s.logCivil
	}
	if ref == nil {
		return domain.Fail("Case log range for the case type is not configured.")
	}
	col, err := s.client.ReadRange(ctx, ref.ColumnFrom(ref.StartRow))
	if err != nil {
		s.log.Error("scan case log", "sheet", ref.Sheet, "error", err)
		return domain.Fail(fmt.Sprintf("Failed to find first empty row in case log: %v", err))
	}
	nextRow := ref.StartRow + len(col)

	endingCell := string(row.Ending)
	if row.EndingLink != "" {
		endingCell = Formula(row.EndingLink, string(row.Ending))
	}
	values := []string{
		row.Name,
		row.Number,
		row.FilingDate,
		Formula(row.FilingLink, "Link"),
		row.EndingDate,
		endingCell,
	}
	if err := s.client.Update(ctx, ref.Cell(nextRow), [][]string{values}); err != nil {
		s.log.Error("append case log", "sheet", ref.Sheet, "row", nextRow, "error", err)
		return domain.Fail(fmt.Sprintf("Error writing case log entry: %v", err))
	}
	return domain.OK("Case appended to case log.")
}
