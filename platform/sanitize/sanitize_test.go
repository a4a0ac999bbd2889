package sanitize

import "testing"

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "tags", in: "<b>hola</b> mundo", want: "hola mundo"},
		{name: "encoded tags", in: "&lt;script&gt;x&lt;/script&gt;ok", want: "xok"},
		{name: "whitespace", in: "  a \t\t b \n\n c  ", want: "a b\nc"},
		{name: "control chars", in: "a\x00b", want: "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.in); got != tt.want {
				t.Fatalf("Message(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	if got := Name("  Ana \n <i>García</i> "); got != "Ana García" {
		t.Fatalf("unexpected name %q", got)
	}
}
