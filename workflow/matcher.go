package workflow

import "fmt"

type MatchOutcome string

const (
	MatchOutcomeUnmatched MatchOutcome = "Unmatched"
	MatchOutcomeUnique    MatchOutcome = "Matched-unique"
	MatchOutcomeAmbiguous MatchOutcome = "Matched-ambiguous"
)

// MatchVerdict is the matcher's result for one normalized row. For an
// ambiguous verdict all candidate ids are carried so a human can resolve the
// link later; ambiguity is never auto-broken.
type MatchVerdict struct {
	Outcome  MatchOutcome
	TaskIds  []int
	IssueIds []int
}

// CandidateCount counts candidates across both stores. Any >=2 result,
// regardless of the task/issue mix, is ambiguous.
func (v MatchVerdict) CandidateCount() int {
	return len(v.TaskIds) + len(v.IssueIds)
}

// Describe renders the verdict for action-log notes.
func (v MatchVerdict) Describe() string {
	switch v.Outcome {
	case MatchOutcomeAmbiguous:
		return fmt.Sprintf("%s: tasks=%v issues=%v", v.Outcome, v.TaskIds, v.IssueIds)
	default:
		return string(v.Outcome)
	}
}

// MatchRow looks up one normalized SLID in the batch's frozen index.
func MatchRow(index *SlidIndex, slid string) MatchVerdict {
	taskIds, issueIds := index.Lookup(slid)

	verdict := MatchVerdict{TaskIds: taskIds, IssueIds: issueIds}
	switch verdict.CandidateCount() {
	case 0:
		verdict.Outcome = MatchOutcomeUnmatched
	case 1:
		verdict.Outcome = MatchOutcomeUnique
	default:
		verdict.Outcome = MatchOutcomeAmbiguous
	}
	return verdict
}
