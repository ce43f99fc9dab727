package broker

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"primary", KindPrimary, false},
		{"secondary", KindSecondary, false},
		{"", "", true},
		{"Primary", "", true},
		{"tertiary", "", true},
	}

	for _, test := range tests {
		got, err := ParseKind(test.in)
		if test.wantErr {
			if !errors.Is(err, ErrUnknownKind) {
				t.Errorf("ParseKind(%q): got %v, want ErrUnknownKind", test.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseKind(%q) failed: %v", test.in, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseKind(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestKindValid(t *testing.T) {
	if !KindPrimary.Valid() || !KindSecondary.Valid() {
		t.Error("built-in kinds must be valid")
	}
	if Kind("tertiary").Valid() {
		t.Error("unknown kind must not be valid")
	}
}
