package validate

import (
	"strings"
	"testing"
	"time"
)

func TestTitle(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"Dentist", true},
		{"  ", false},
		{"", false},
		{strings.Repeat("é", 200), true},
		{strings.Repeat("a", 201), false},
	}
	for _, c := range cases {
		if err := Title(c.in); (err == nil) != c.ok {
			t.Fatalf("Title(%q) err=%v, want ok=%v", c.in, err, c.ok)
		}
	}
}

func TestColor(t *testing.T) {
	for _, v := range []string{"#B552D9", "#000000", "#abcdef"} {
		if err := Color(&v); err != nil {
			t.Fatalf("Color(%q): %v", v, err)
		}
	}
	for _, v := range []string{"B552D9", "#B552D", "#B552D9FF", "red"} {
		if err := Color(&v); err == nil {
			t.Fatalf("Color(%q) accepted", v)
		}
	}
	if err := Color(nil); err != nil {
		t.Fatalf("Color(nil): %v", err)
	}
}

func TestTimeRange(t *testing.T) {
	start := time.Date(2026, 1, 16, 18, 0, 0, 0, time.UTC)
	if err := TimeRange(start, start.Add(time.Hour)); err != nil {
		t.Fatalf("valid range rejected: %v", err)
	}
	if err := TimeRange(start, start); err == nil {
		t.Fatalf("empty range accepted")
	}
	if err := TimeRange(start, start.Add(-time.Minute)); err == nil {
		t.Fatalf("inverted range accepted")
	}
	if err := TimeRange(time.Time{}, start); err == nil {
		t.Fatalf("missing start accepted")
	}
}
