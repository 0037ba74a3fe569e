package sheet

import (
	"fmt"
	"regexp"
	"strings"
)

// Ref is a parsed A1-notation range like "Pending Cases!A2:F2".
type Ref struct {
	Sheet    string
	StartCol string
	StartRow int
	EndCol   string
	EndRow   int // 0 when the range is open-ended
}

var rangeRe = regexp.MustCompile(`^([A-Za-z]+)(\d*)(?::([A-Za-z]+)(\d*))?$`)

// ParseRef splits a config-provided range into its parts. Rows are
// optional on both ends ("Data!A3:K", "Pending Cases!A:F").
func ParseRef(r string) (Ref, error) {
	name, rangePart, ok := strings.Cut(r, "!")
	if !ok {
		return Ref{}, fmt.Errorf("range %q missing sheet name", r)
	}
	m := rangeRe.FindStringSubmatch(rangePart)
	if m == nil {
		return Ref{}, fmt.Errorf("malformed range %q", r)
	}
	ref := Ref{Sheet: name, StartCol: strings.ToUpper(m[1]), StartRow: 1}
	if m[2] != "" {
		fmt.Sscanf(m[2], "%d", &ref.StartRow)
	}
	if m[3] != "" {
		ref.EndCol = strings.ToUpper(m[3])
		if m[4] != "" {
			fmt.Sscanf(m[4], "%d", &ref.EndRow)
		}
	} else {
		// single cell
		ref.EndCol = ref.StartCol
		ref.EndRow = ref.StartRow
	}
	return ref, nil
}

// ColIndex converts a column letter to its 0-based index.
func ColIndex(col string) int {
	n := 0
	for _, c := range strings.ToUpper(col) {
		n = n*26 + int(c-'A') + 1
	}
	return n - 1
}

// ColName converts a 0-based index back to a column letter.
func ColName(i int) string {
	name := ""
	i++
	for i > 0 {
		i--
		name = string(rune('A'+i%26)) + name
		i /= 26
	}
	return name
}

// DataRange drops the end row so reads cover every row below the start:
// "Pending Cases!A2:F2" becomes "Pending Cases!A2:F".
func (r Ref) DataRange() string {
	return fmt.Sprintf("%s!%s%d:%s", r.Sheet, r.StartCol, r.StartRow, r.EndCol)
}

// RowRange addresses a single full-width row of the range.
func (r Ref) RowRange(row int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", r.Sheet, r.StartCol, row, r.EndCol, row)
}

// ColumnFrom addresses the start column from the given row downward,
// used for the append-by-scan that finds the first empty log row.
func (r Ref) ColumnFrom(row int) string {
	return fmt.Sprintf("%s!%s%d:%s", r.Sheet, r.StartCol, row, r.StartCol)
}

// Cell addresses a single cell at the range's start column.
func (r Ref) Cell(row int) string {
	return fmt.Sprintf("%s!%s%d", r.Sheet, r.StartCol, row)
}

// AppendRange is the whole-table range used for row appends.
func (r Ref) AppendRange() string {
	return fmt.Sprintf("%s!%s:%s", r.Sheet, r.StartCol, r.EndCol)
}

// NormalizeCell fixes the "Data:O3" shorthand some configs use for a
// single cell into proper A1 notation "Data!O3".
func NormalizeCell(r string) string {
	if r == "" {
		return ""
	}
	if strings.Contains(r, ":") && !strings.Contains(r, "!") {
		return strings.Replace(r, ":", "!", 1)
	}
	return r
}
