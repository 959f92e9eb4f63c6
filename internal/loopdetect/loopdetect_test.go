package loopdetect

import "testing"

func TestSignatureCanonicalizesArgOrder(t *testing.T) {
	a := Signature("grep", `{"pattern":"TODO","path":"."}`)
	b := Signature("grep", `{"path":".","pattern":"TODO"}`)
	if a != b {
		t.Fatalf("expected identical signatures regardless of key order: %s != %s", a, b)
	}
}

func TestSignatureDiffersByArgs(t *testing.T) {
	a := Signature("grep", `{"pattern":"TODO"}`)
	b := Signature("grep", `{"pattern":"FIXME"}`)
	if a == b {
		t.Fatal("expected different signatures for different args")
	}
}

func TestRepetitionTripsThenAborts(t *testing.T) {
	d := New(Config{R: 3, W: 5, S: 3, K: 3, E: 0})
	args := `{"pattern":"TODO"}`

	v1 := d.RecordToolCall("grep", args)
	if v1.Repetition {
		t.Fatal("should not trip on first call")
	}
	v2 := d.RecordToolCall("grep", args)
	if v2.Repetition {
		t.Fatal("should not trip on second call")
	}
	v3 := d.RecordToolCall("grep", args)
	if !v3.Repetition || v3.Abort || v3.Steer == "" {
		t.Fatalf("expected steering injection on third repeat, got %+v", v3)
	}

	v4 := d.RecordToolCall("grep", args)
	if !v4.Abort || v4.AbortKind != "loop_repetition" {
		t.Fatalf("expected abort on repeat after steering, got %+v", v4)
	}
}

func TestIdleTurnsTerminate(t *testing.T) {
	d := New(Config{R: 3, W: 5, S: 3, K: 2, E: 0})
	v1 := d.RecordTurn("", "", false)
	if v1.Abort {
		t.Fatal("should not abort on first idle turn")
	}
	v2 := d.RecordTurn("", "", false)
	if !v2.Abort || v2.AbortKind != "idle_turns" {
		t.Fatalf("expected idle_turns abort, got %+v", v2)
	}
}

func TestReasoningStallTerminates(t *testing.T) {
	d := New(Config{R: 3, W: 5, S: 2, K: 10, E: 0})
	d.RecordTurn("thinking about it", "", false)
	v := d.RecordTurn("thinking about it", "", false)
	if !v.Abort || v.AbortKind != "reasoning_stall" {
		t.Fatalf("expected reasoning_stall abort, got %+v", v)
	}
}

func TestProductiveTurnResetsStreaks(t *testing.T) {
	d := New(Config{R: 3, W: 5, S: 3, K: 3, E: 0})
	d.RecordTurn("", "", false)
	d.RecordTurn("", "some real output", true)
	v := d.RecordTurn("", "", false)
	if v.Abort {
		t.Fatalf("idle streak should have reset after a productive turn, got %+v", v)
	}
}
