package agent

import "testing"

func TestFailureTrackerCountdownAndReset(t *testing.T) {
	f := NewFailureTracker(3)

	f.RecordMessage([]toolOutcome{{toolName: "fs_read", isError: true}})
	if f.Count("fs_read") != 1 || f.Remaining("fs_read") != 2 {
		t.Errorf("count=%d remaining=%d", f.Count("fs_read"), f.Remaining("fs_read"))
	}

	f.RecordMessage([]toolOutcome{{toolName: "fs_read", isError: true}})
	if f.Remaining("fs_read") != 1 || f.MaxReached("fs_read") {
		t.Errorf("remaining=%d maxReached=%v", f.Remaining("fs_read"), f.MaxReached("fs_read"))
	}

	// A success resets the streak.
	f.RecordMessage([]toolOutcome{{toolName: "fs_read", isError: false}})
	if f.Count("fs_read") != 0 {
		t.Errorf("count after success = %d", f.Count("fs_read"))
	}

	f.RecordMessage([]toolOutcome{{toolName: "fs_read", isError: true}})
	f.RecordMessage([]toolOutcome{{toolName: "fs_read", isError: true}})
	f.RecordMessage([]toolOutcome{{toolName: "fs_read", isError: true}})
	if !f.MaxReached("fs_read") {
		t.Error("three consecutive failures must reach the limit")
	}
}

func TestFailureTrackerDedupsWithinOneMessage(t *testing.T) {
	f := NewFailureTracker(3)
	f.RecordMessage([]toolOutcome{
		{toolName: "flaky", isError: true},
		{toolName: "flaky", isError: true},
		{toolName: "flaky", isError: true},
	})
	if f.Count("flaky") != 1 {
		t.Errorf("count = %d, want 1 (deduped per message)", f.Count("flaky"))
	}
}

func TestFailureTrackerMixedOutcomeCountsAsFailure(t *testing.T) {
	f := NewFailureTracker(3)
	// Same tool both failing and succeeding in one message: the failure
	// wins, the counter rises.
	f.RecordMessage([]toolOutcome{
		{toolName: "flaky", isError: true},
		{toolName: "flaky", isError: false},
	})
	if f.Count("flaky") != 1 {
		t.Errorf("count = %d, want 1", f.Count("flaky"))
	}
}

func TestFailureTrackerDisabledLimit(t *testing.T) {
	f := NewFailureTracker(0)
	f.RecordMessage([]toolOutcome{{toolName: "x", isError: true}})
	if f.MaxReached("x") {
		t.Error("limit disabled, MaxReached must never fire")
	}
	if f.Remaining("x") != -1 {
		t.Errorf("remaining = %d, want -1 when disabled", f.Remaining("x"))
	}
}

func TestFailureTrackerIndependentPerTool(t *testing.T) {
	f := NewFailureTracker(2)
	f.RecordMessage([]toolOutcome{{toolName: "a", isError: true}})
	f.RecordMessage([]toolOutcome{{toolName: "b", isError: true}})
	if f.Count("a") != 1 || f.Count("b") != 1 {
		t.Errorf("counters crossed: a=%d b=%d", f.Count("a"), f.Count("b"))
	}
}
