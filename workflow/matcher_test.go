package workflow

import (
	"strings"
	"testing"
)

func TestMatchRow_UniqueTask(t *testing.T) {
	index := NewSlidIndex()
	index.AddTask("SL-1042", 7)
	index.AddIssue("SL-9999", 3)

	verdict := MatchRow(index, "SL1042")
	if verdict.Outcome != MatchOutcomeUnique {
		t.Fatalf("outcome = %s, want %s", verdict.Outcome, MatchOutcomeUnique)
	}
	if len(verdict.TaskIds) != 1 || verdict.TaskIds[0] != 7 {
		t.Errorf("task ids = %v, want [7]", verdict.TaskIds)
	}
	if len(verdict.IssueIds) != 0 {
		t.Errorf("issue ids = %v, want none", verdict.IssueIds)
	}
}

func TestMatchRow_Unmatched(t *testing.T) {
	index := NewSlidIndex()
	index.AddTask("SL1", 1)

	verdict := MatchRow(index, "SL2")
	if verdict.Outcome != MatchOutcomeUnmatched {
		t.Fatalf("outcome = %s, want %s", verdict.Outcome, MatchOutcomeUnmatched)
	}
	if verdict.CandidateCount() != 0 {
		t.Errorf("candidate count = %d, want 0", verdict.CandidateCount())
	}
}

func TestMatchRow_CrossTypeAmbiguity(t *testing.T) {
	// One task plus one issue on the same SLID is still ambiguous; the matcher
	// never prefers one store over the other.
	index := NewSlidIndex()
	index.AddTask("SL1", 1)
	index.AddIssue("SL1", 2)

	verdict := MatchRow(index, "SL1")
	if verdict.Outcome != MatchOutcomeAmbiguous {
		t.Fatalf("outcome = %s, want %s", verdict.Outcome, MatchOutcomeAmbiguous)
	}
	if verdict.CandidateCount() != 2 {
		t.Errorf("candidate count = %d, want 2", verdict.CandidateCount())
	}
}

func TestMatchRow_MultipleTasksAmbiguous(t *testing.T) {
	index := NewSlidIndex()
	index.AddTask("SL1", 1)
	index.AddTask("SL1", 2)

	verdict := MatchRow(index, "SL1")
	if verdict.Outcome != MatchOutcomeAmbiguous {
		t.Fatalf("outcome = %s, want %s", verdict.Outcome, MatchOutcomeAmbiguous)
	}
}

func TestMatchVerdict_DescribeCarriesCandidates(t *testing.T) {
	verdict := MatchVerdict{
		Outcome:  MatchOutcomeAmbiguous,
		TaskIds:  []int{1, 2},
		IssueIds: []int{9},
	}
	note := verdict.Describe()
	if !strings.Contains(note, "[1 2]") || !strings.Contains(note, "[9]") {
		t.Errorf("ambiguous note must list candidates, got %q", note)
	}
}

func TestSlidIndex_NormalizesCandidateSlids(t *testing.T) {
	index := NewSlidIndex()
	index.AddTask(" sl-1042 ", 7)

	taskIds, _ := index.Lookup(NormalizeSlid("SL 10 42"))
	if len(taskIds) != 1 || taskIds[0] != 7 {
		t.Errorf("lookup after normalization = %v, want [7]", taskIds)
	}
}

func TestSlidIndex_SkipsEmptyCandidateSlids(t *testing.T) {
	index := NewSlidIndex()
	index.AddTask("  ", 1)
	index.AddIssue("--", 2)

	taskIds, issueIds := index.Lookup("")
	if len(taskIds) != 0 || len(issueIds) != 0 {
		t.Errorf("empty slid must never be matchable, got tasks=%v issues=%v", taskIds, issueIds)
	}
}
