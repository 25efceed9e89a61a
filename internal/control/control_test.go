package control

import "testing"

func TestEnableVector(t *testing.T) {
	got := Enable("subnet", "12345")
	want := "enable,subnet,12345,"
	if got != want {
		t.Errorf("Enable = %q, want %q", got, want)
	}
}

func TestGetVector(t *testing.T) {
	got := Get("subnet", "uuid")
	want := "get,subnet,uuid,"
	if got != want {
		t.Errorf("Get = %q, want %q", got, want)
	}
}

func TestParseRoundTrip(t *testing.T) {
	cmd, err := Parse(Enable("subnet-a", "999"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Command{Verb: "enable", Arg1: "subnet-a", Arg2: "999"}
	if cmd != want {
		t.Errorf("Parse = %+v, want %+v", cmd, want)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	if _, err := Parse("enable,onlyone"); err == nil {
		t.Error("expected error for malformed command, got nil")
	}
}
