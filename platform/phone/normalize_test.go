package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "612 345 678", want: "+34612345678"},
		{in: "+34 612-345-678", want: "+34612345678"},
		{in: "  not a number ", want: "not a number"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizeE164(tt.in); got != tt.want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid("+34 612 345 678") {
		t.Fatal("expected spanish mobile to be valid")
	}
	if IsValid("12") {
		t.Fatal("expected short number to be invalid")
	}
}
