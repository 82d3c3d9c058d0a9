package wireline

import "testing"

func TestArgRendering(t *testing.T) {
	tests := []struct {
		name string
		arg  Arg
		want string
	}{
		{"int", IntArg("n", 42), "n=42"},
		{"int64 negative", Int64Arg("n", -7), "n=-7"},
		{"uint64", Uint64Arg("n", 18446744073709551615), "n=18446744073709551615"},
		{"float", FloatArg("f", 3.5), "f=3.5"},
		{"float whole", FloatArg("f", 2.0), "f=2"},
		{"bool true", BoolArg("b", true), "b=yes"},
		{"bool false", BoolArg("b", false), "b=no"},
		{"char", CharArg("c", 'x'), "c=x"},
		{"cstring", CStringArg("s", "hello"), "s=hello"},
		{"quoted", QuotedArg("s", "it's"), `s='it\'s'`},
		{"raw", RawArg("s", "'already quoted'"), "s='already quoted'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.arg.rendered != tt.want {
				t.Errorf("got %q, want %q", tt.arg.rendered, tt.want)
			}
		})
	}
}

func TestFloatArgUsesPOSIXDecimalPoint(t *testing.T) {
	// Regardless of process locale, the decimal separator must be '.'.
	a := FloatArg("ratio", 1234.5678)
	if a.rendered != "ratio=1234.5678" {
		t.Errorf("got %q", a.rendered)
	}
}

func TestAutoArgChoosesQuoting(t *testing.T) {
	if a := AutoArg("k", "noSpaces"); a.rendered != "k=noSpaces" {
		t.Errorf("bare case: got %q", a.rendered)
	}
	if a := AutoArg("k", "has space"); a.rendered != `k='has space'` {
		t.Errorf("quoted case: got %q", a.rendered)
	}
}

func TestFormatCommandUppercasesName(t *testing.T) {
	got := FormatCommand("job_new", IntArg("n", 1))
	if got != "JOB_NEW n=1" {
		t.Errorf("got %q", got)
	}
}

func TestFormatResultPayload(t *testing.T) {
	got := FormatResultPayload(CStringArg("state", "running"), IntArg("doneCount", 3))
	if got != "state=running doneCount=3" {
		t.Errorf("got %q", got)
	}
}

func TestOrderedArgsGetters(t *testing.T) {
	o := NewOrderedArgs()
	o.Set("n", "42")
	o.Set("flag", "yes")
	o.Set("name", "foo")

	n, err := o.GetInt64("n")
	if err != nil || n != 42 {
		t.Errorf("GetInt64: n=%d err=%v", n, err)
	}
	b, err := o.GetBool("flag")
	if err != nil || !b {
		t.Errorf("GetBool: b=%v err=%v", b, err)
	}
	s, err := o.GetString("name")
	if err != nil || s != "foo" {
		t.Errorf("GetString: s=%q err=%v", s, err)
	}
	if _, err := o.GetString("missing"); err == nil {
		t.Error("expected error for missing key")
	}
	if got := o.GetOr("missing", "fallback"); got != "fallback" {
		t.Errorf("GetOr = %q", got)
	}
	if o.Len() != 3 {
		t.Errorf("Len = %d", o.Len())
	}
}

func TestOrderedArgsSetPreservesFirstInsertionOrder(t *testing.T) {
	o := NewOrderedArgs()
	o.Set("a", "1")
	o.Set("b", "2")
	o.Set("a", "override")

	want := []string{"a", "b"}
	got := o.Keys()
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s want %s", i, got[i], want[i])
		}
	}
	if v, _ := o.Get("a"); v != "override" {
		t.Errorf("a = %q, want override", v)
	}
}
