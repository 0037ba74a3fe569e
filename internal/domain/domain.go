package domain

import (
	"regexp"
	"strings"
)

// CaseType distinguishes the two docketed case classes plus the
// pass-through petition class that never enters review.
type CaseType string

const (
	TypeCriminal CaseType = "criminal"
	TypeCivil    CaseType = "civil"
	TypeSC       CaseType = "sc"
	TypeUnknown  CaseType = "unknown"
)

// ParseCaseType maps classifier output and case-number prefixes onto a
// closed set. "Crim", "Criminal", "crim" all mean criminal.
func ParseCaseType(s string) CaseType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "criminal", "crim":
		return TypeCriminal
	case "civil", "civ":
		return TypeCivil
	case "sc":
		return TypeSC
	default:
		return TypeUnknown
	}
}

// Prefix returns the case-number prefix for the type, e.g. "Crim".
func (t CaseType) Prefix() string {
	switch t {
	case TypeCriminal:
		return "Crim"
	case TypeCivil:
		return "Civ"
	default:
		return ""
	}
}

var crimNumberRe = regexp.MustCompile(`(?i)\bcrim(inal)?\b`)

// TypeFromNumber derives criminal/civil from a case number. Anything
// without a Crim-prefixed word is treated as civil, matching how the
// case-log split is decided.
func TypeFromNumber(caseNumber string) CaseType {
	if crimNumberRe.MatchString(caseNumber) {
		return TypeCriminal
	}
	return TypeCivil
}

// CaseStatus is the closed status enum. Store cells are parsed into it
// at the adapter boundary; unrecognized values become StatusUnknown and
// the raw text is retained on the Case for display and write-back.
type CaseStatus string

const (
	StatusNotAssigned CaseStatus = "PT Not assigned"
	StatusPreTrial    CaseStatus = "In Pre-Trial"
	StatusInTrial     CaseStatus = "In Trial"
	StatusFinished    CaseStatus = "Finished"
	StatusUnknown     CaseStatus = "unknown"
)

// ParseStatus normalizes a raw store cell to the closed enum.
func ParseStatus(s string) CaseStatus {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "pt not assigned":
		return StatusNotAssigned
	case v == "in pre-trial" || v == "in pretrial":
		return StatusPreTrial
	case v == "in trial":
		return StatusInTrial
	case strings.HasPrefix(v, "finished"):
		return StatusFinished
	default:
		return StatusUnknown
	}
}

// TrialToggleable reports whether the trial-stage toggle applies to a
// status cell. Matches the substrings the disposition view keys on.
func TrialToggleable(raw string) bool {
	v := strings.ToLower(raw)
	for _, k := range []string{"pt", "pre-trial", "in trial", "trial"} {
		if strings.Contains(v, k) {
			return true
		}
	}
	return false
}

// Ending is the closed set of case-finish reasons.
type Ending string

const (
	EndingVerdict   Ending = "Verdict"
	EndingPleaDeal  Ending = "Plea Deal"
	EndingDismissal Ending = "Dismissal"
	EndingMistrial  Ending = "Mistrial"
	EndingDropped   Ending = "Dropped"
	EndingOther     Ending = "Other"
)

// Endings lists all finish reasons in presentation order.
func Endings() []Ending {
	return []Ending{EndingVerdict, EndingPleaDeal, EndingDismissal, EndingMistrial, EndingDropped, EndingOther}
}

// ParseEnding maps a submitted value onto the closed set, defaulting to
// Other for anything unrecognized.
func ParseEnding(s string) Ending {
	for _, e := range Endings() {
		if strings.EqualFold(strings.TrimSpace(s), string(e)) {
			return e
		}
	}
	return EndingOther
}

// Case is the durable entity: one row in the pending-cases region.
type Case struct {
	Judge      string     `json:"judge"`
	Status     CaseStatus `json:"case_status"`
	StatusText string     `json:"case_status_text"`
	Name       string     `json:"case_name"`
	Number     string     `json:"case_number"`
	FilingDate string     `json:"filing_date"`
	FilingLink string     `json:"filing_link,omitempty"`
	// Row is the 1-based sheet row the case was read from. It is a
	// cache hint only; identity is always re-validated by number.
	Row int `json:"row_number,omitempty"`
}

// CaseInfo is the draft extracted from a filing before acceptance.
type CaseInfo struct {
	Success bool     `json:"success"`
	Name    string   `json:"case_name"`
	Number  string   `json:"case_number"`
	Type    CaseType `json:"case_type"`
	Errors  []string `json:"errors,omitempty"`
}

// Judge is one roster row from the store's Data tab.
type Judge struct {
	Name         string `json:"judge_name"`
	Status       string `json:"judge_status"`
	Availability string `json:"case_availability"`
	ChatID       string `json:"chat_id"`
}

// Result is the uniform outcome of a store operation. Store failures
// are values, never faults, so callers can render the message and leave
// prior state untouched.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func OK(msg string) Result   { return Result{Success: true, Message: msg} }
func Fail(msg string) Result { return Result{Success: false, Message: msg} }
