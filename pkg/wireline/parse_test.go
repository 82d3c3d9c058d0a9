package wireline

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Kind
	}{
		{"command", "1 JOB_NEW name='t' jobUUID=u1", KindCommand},
		{"result", "2 1 0 state=running doneCount=0", KindResult},
		{"result no payload", "1 1 0 ", KindResult},
		{"malformed no id", "JOB_NEW name=t", KindMalformed},
		{"malformed empty", "", KindMalformed},
		{"malformed second token numeric-ish", "1 123abc", KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.line); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseCommandRoundTrip(t *testing.T) {
	args, err := ParseArgs(`name='t' jobUUID=u1 scheduleUUID=s1 master='h'`)
	if err != nil {
		t.Fatal(err)
	}
	got := FormatCommand("JOB_NEW",
		QuotedArg("name", "t"),
		CStringArg("jobUUID", "u1"),
		CStringArg("scheduleUUID", "s1"),
		QuotedArg("master", "h"),
	)
	cmd, err := ParseCommand("1 " + got)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.ID != 1 || cmd.Name != "JOB_NEW" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	for _, k := range args.Keys() {
		want, _ := args.Get(k)
		if got, ok := cmd.Args.Get(k); !ok || got != want {
			t.Errorf("key %s: got %q, want %q", k, got, want)
		}
	}
}

func TestParseArgsQuotingAndEscapes(t *testing.T) {
	args, err := ParseArgs(`pattern='it\'s a \\test' plain=foo empty= `)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := args.Get("pattern"); v != `it's a \test` {
		t.Errorf("pattern = %q", v)
	}
	if v, _ := args.Get("plain"); v != "foo" {
		t.Errorf("plain = %q", v)
	}
	if v, ok := args.Get("empty"); !ok || v != "" {
		t.Errorf("empty = %q, %v", v, ok)
	}
}

func TestParseArgsPreservesUnknownKeysInOrder(t *testing.T) {
	args, err := ParseArgs("z=1 a=2 m=3")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"z", "a", "m"}
	got := args.Keys()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseResult(t *testing.T) {
	r, err := ParseResult("2 1 0 state=running doneCount=0")
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != 2 || !r.Completed || r.ErrorCode != 0 {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Payload != "state=running doneCount=0" {
		t.Errorf("payload = %q", r.Payload)
	}
}

func TestQuotingRoundTripInvariant(t *testing.T) {
	// Property 5 in spec §8: parse(format(cmd)) == cmd for well-formed lines.
	values := []string{"plain", "with space", `with'quote`, `with\back`, "with both ' and \\"}
	for _, v := range values {
		arg := AutoArg("k", v)
		line := FormatCommand("TEST", arg)
		cmd, err := ParseCommand("1 " + line)
		if err != nil {
			t.Fatalf("value %q: %v", v, err)
		}
		got, ok := cmd.Args.Get("k")
		if !ok || got != v {
			t.Errorf("value %q round-tripped to %q (ok=%v)", v, got, ok)
		}
	}
}
