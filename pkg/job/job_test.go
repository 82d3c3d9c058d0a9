package job

import "testing"

func TestStateMachineHappyPath(t *testing.T) {
	j := New("u1")
	for _, to := range []State{Waiting, Running, Done} {
		if err := j.Transition(to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if !j.State().IsTerminal() {
		t.Error("Done should be terminal")
	}
}

func TestStateMachineRejectsIllegalTransition(t *testing.T) {
	j := New("u1")
	if err := j.Transition(Done); err == nil {
		t.Fatal("expected error transitioning directly from None to Done")
	}
}

func TestRequestStatesReturnToRunning(t *testing.T) {
	j := New("u1")
	j.Transition(Waiting)
	j.Transition(Running)
	if err := j.Transition(RequestSshPassword); err != nil {
		t.Fatal(err)
	}
	if j.State().IsTerminal() {
		t.Error("request state must not be terminal")
	}
	if err := j.Transition(Running); err != nil {
		t.Fatal(err)
	}
}

func TestReportedStateForDryRun(t *testing.T) {
	j := New("u1")
	j.Transition(Waiting)
	j.Transition(Running)
	if got := j.ReportedState(true); got != Running {
		t.Errorf("got %s, want Running", got)
	}
	j.Transition(Done)
	if got := j.ReportedState(true); got != Done {
		t.Errorf("terminal state must report as-is even for dry-run, got %s", got)
	}
}

func TestRecentLogRingBuffer(t *testing.T) {
	j := New("u1")
	for i := 0; i < recentLogCapacity+10; i++ {
		j.AppendLog(string(rune('a' + i%26)))
	}
	log := j.RecentLog()
	if len(log) != recentLogCapacity {
		t.Fatalf("got %d entries, want %d", len(log), recentLogCapacity)
	}
}

func TestResetReinitializesAndKeepsMutexUsable(t *testing.T) {
	j := New("u1")
	j.Transition(Waiting)
	j.Transition(Running)
	j.Transition(Done)
	j.AppendLog("finished")

	j.Reset("s2", "nightly", "host1")

	if j.State() != None {
		t.Errorf("State() = %v, want None", j.State())
	}
	if got := j.LastMessage(); got != "" {
		t.Errorf("LastMessage() = %q, want empty after reset", got)
	}
	// Exercise the mutex again to make sure Reset didn't leave it broken.
	if err := j.Transition(Waiting); err != nil {
		t.Fatal(err)
	}
}
