// Package guard holds the authorization gates applied before any
// interaction mutates the docket. Denials are values carrying the text
// shown privately to the actor; they never abort the hosting flow.
package guard

import "docketline/internal/config"

// DeniedError reports a failed gate. The message is safe to show to
// the denied actor.
type DeniedError struct {
	Actor   string
	Message string
}

func (e *DeniedError) Error() string { return e.Message }

// RequireReviewer gates review-board actions on the configured
// reviewer set.
func RequireReviewer(cfg *config.Config, actorID string) error {
	if cfg.IsReviewer(actorID) {
		return nil
	}
	return &DeniedError{Actor: actorID, Message: "You do not have permission to perform this action."}
}

// RequireInitiator binds a control to the actor who opened the
// surrounding interaction.
func RequireInitiator(initiatorID, actorID string) error {
	if initiatorID == actorID {
		return nil
	}
	return &DeniedError{Actor: actorID, Message: "Only the person who started this action can use these controls."}
}

// RequireProposedJudge restricts an assignment proposal to the judge it
// was sent to.
func RequireProposedJudge(proposedID, actorID string) error {
	if proposedID == actorID {
		return nil
	}
	return &DeniedError{Actor: actorID, Message: "This assignment proposal is not addressed to you."}
}
