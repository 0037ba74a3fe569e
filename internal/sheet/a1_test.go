package sheet

import "testing"

func TestParseRef(t *testing.T) {
	cases := []struct {
		in   string
		want Ref
	}{
		{"Pending Cases!A2:F2", Ref{Sheet: "Pending Cases", StartCol: "A", StartRow: 2, EndCol: "F", EndRow: 2}},
		{"Data!A3:K", Ref{Sheet: "Data", StartCol: "A", StartRow: 3, EndCol: "K"}},
		{"Pending Cases!A:F", Ref{Sheet: "Pending Cases", StartCol: "A", StartRow: 1, EndCol: "F"}},
		{"Data!O3", Ref{Sheet: "Data", StartCol: "O", StartRow: 3, EndCol: "O", EndRow: 3}},
		{"Case Log!j5:o5", Ref{Sheet: "Case Log", StartCol: "J", StartRow: 5, EndCol: "O", EndRow: 5}},
	}
	for _, tc := range cases {
		got, err := ParseRef(tc.in)
		if err != nil {
			t.Fatalf("ParseRef(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseRef(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseRefRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "A2:F2", "Data!", "Data!2:5", "Data!A2:F2:G3"} {
		if _, err := ParseRef(in); err == nil {
			t.Errorf("ParseRef(%q) succeeded", in)
		}
	}
}

func TestColIndexColNameRoundTrip(t *testing.T) {
	cases := map[string]int{"A": 0, "F": 5, "K": 10, "Z": 25, "AA": 26, "AZ": 51, "BA": 52}
	for col, idx := range cases {
		if got := ColIndex(col); got != idx {
			t.Errorf("ColIndex(%q) = %d, want %d", col, got, idx)
		}
		if got := ColName(idx); got != col {
			t.Errorf("ColName(%d) = %q, want %q", idx, got, col)
		}
	}
}

func TestRefAddressing(t *testing.T) {
	ref, err := ParseRef("Pending Cases!A2:F2")
	if err != nil {
		t.Fatal(err)
	}
	if got := ref.DataRange(); got != "Pending Cases!A2:F" {
		t.Errorf("DataRange = %q", got)
	}
	if got := ref.RowRange(7); got != "Pending Cases!A7:F7" {
		t.Errorf("RowRange = %q", got)
	}
	if got := ref.ColumnFrom(5); got != "Pending Cases!A5:A" {
		t.Errorf("ColumnFrom = %q", got)
	}
	if got := ref.Cell(3); got != "Pending Cases!A3" {
		t.Errorf("Cell = %q", got)
	}
	if got := ref.AppendRange(); got != "Pending Cases!A:F" {
		t.Errorf("AppendRange = %q", got)
	}
}

func TestNormalizeCell(t *testing.T) {
	cases := map[string]string{
		"Data:O3":    "Data!O3",
		"Data!O3":    "Data!O3",
		"Data!O3:O3": "Data!O3:O3",
		"":           "",
	}
	for in, want := range cases {
		if got := NormalizeCell(in); got != want {
			t.Errorf("NormalizeCell(%q) = %q, want %q", in, got, want)
		}
	}
}
