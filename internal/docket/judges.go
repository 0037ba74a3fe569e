package docket

import (
	"context"
	"fmt"

	"docketline/internal/domain"
	"docketline/internal/sheet"
)

// Roster column layout inside the configured roster range.
const (
	rosterColName = iota
	rosterColStatus
	rosterColAvailability
)

const rosterColChatID = 10

// Judges reads the roster region and returns the judges whose status
// column reads "Valid". Availability filtering is the caller's job.
func (s *Store) Judges(ctx context.Context) ([]domain.Judge, domain.Result) {
	if s.roster == "" {
		return nil, domain.Fail("Judge roster range is not configured.")
	}
	rows, err := s.client.ReadRange(ctx, s.roster)
	if err != nil {
		s.log.Error("read judge roster", "error", err)
		return nil, domain.Fail(fmt.Sprintf("Error reading judge roster: %v", err))
	}
	var judges []domain.Judge
	for _, row := range rows {
		if cell(row, rosterColStatus) != "Valid" || cell(row, rosterColName) == "" {
			continue
		}
		judges = append(judges, domain.Judge{
			Name:         cell(row, rosterColName),
			Status:       cell(row, rosterColStatus),
			Availability: cell(row, rosterColAvailability),
			ChatID:       cell(row, rosterColChatID),
		})
	}
	return judges, domain.OK("")
}

// SetJudgeAvailability writes the availability cell of the named judge.
// Only the two roster states are accepted.
func (s *Store) SetJudgeAvailability(ctx context.Context, judgeName, availability string) domain.Result {
	if availability != "Active" && availability != "Unavailable" {
		return domain.Fail("Availability must be 'Active' or 'Unavailable'.")
	}
	if s.roster == "" {
		return domain.Fail("Judge roster range is not configured.")
	}
	ref, err := sheet.ParseRef(s.roster)
	if err != nil {
		return domain.Fail(fmt.Sprintf("Malformed judge roster range: %v", err))
	}
	rows, rerr := s.client.ReadRange(ctx, s.roster)
	if rerr != nil {
		s.log.Error("read judge roster", "error", rerr)
		return domain.Fail(fmt.Sprintf("Error reading judge roster: %v", rerr))
	}
	target := normalizeKey(judgeName)
	availCol := sheet.ColName(sheet.ColIndex(ref.StartCol) + rosterColAvailability)
	for offset, row := range rows {
		if normalizeKey(cell(row, rosterColName)) != target {
			continue
		}
		cellRef := fmt.Sprintf("%s!%s%d", ref.Sheet, availCol, ref.StartRow+offset)
		if werr := s.client.Update(ctx, cellRef, [][]string{{availability}}); werr != nil {
			s.log.Error("write judge availability", "judge", judgeName, "error", werr)
			return domain.Fail(fmt.Sprintf("Error updating availability: %v", werr))
		}
		return domain.OK(fmt.Sprintf("Judge '%s' set to %s.", cell(row, rosterColName), availability))
	}
	return domain.Fail(fmt.Sprintf("Judge '%s' not found in roster.", judgeName))
}
