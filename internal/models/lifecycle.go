package models

// legalTransitions is the closed edge set of the review state machine.
// REJECTED and APPLIED are terminal. APPLIED is reachable only from the
// approved states, and in the running system only the batch apply queue
// (or an explicit admin reconciliation) drives that edge.
var legalTransitions = map[CorrectionStatus][]CorrectionStatus{
	CorrectionStatusPending:      {CorrectionStatusUnderReview, CorrectionStatusApproved, CorrectionStatusRejected},
	CorrectionStatusUnderReview:  {CorrectionStatusApproved, CorrectionStatusRejected},
	CorrectionStatusApproved:     {CorrectionStatusApplied},
	CorrectionStatusAutoApproved: {CorrectionStatusApplied},
	CorrectionStatusRejected:     {},
	CorrectionStatusApplied:      {},
}

// CanTransition reports whether from -> to is a legal state-machine edge.
func CanTransition(from, to CorrectionStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s CorrectionStatus) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// Reviewable reports whether a human decision is still possible.
func (s CorrectionStatus) Reviewable() bool {
	return s == CorrectionStatusPending || s == CorrectionStatusUnderReview
}

// Applicable reports whether the record is cleared for mutation apply.
func (s CorrectionStatus) Applicable() bool {
	return s == CorrectionStatusApproved || s == CorrectionStatusAutoApproved
}
