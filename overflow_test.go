package ember

import "testing"

func TestParseOverflowPolicy(t *testing.T) {
	cases := map[string]OverflowPolicy{
		"DROP_OLDEST": DropOldest, "drop_oldest": DropOldest,
		"BLOCK": Block, "DROP_NEWEST": DropNewest,
		"SYNCHRONOUS_WRITE": SynchronousWrite, "DISCARD": Discard,
	}
	for in, want := range cases {
		got, err := ParseOverflowPolicy(in)
		if err != nil {
			t.Fatalf("ParseOverflowPolicy(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseOverflowPolicy(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseOverflowPolicyUnknown(t *testing.T) {
	if _, err := ParseOverflowPolicy("nonsense"); err == nil {
		t.Fatal("expected error for unknown overflow policy")
	}
}

func TestOverflowPolicyDefault(t *testing.T) {
	var p OverflowPolicy
	if p != DropOldest {
		t.Fatalf("zero value of OverflowPolicy should be DropOldest, got %v", p)
	}
}
