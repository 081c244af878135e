package diag

import "testing"

func TestFormatFixed6(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0.000000"},
		{1.25, "1.250000"},
		{-1.25, "-1.250000"},
		{50, "50.000000"},
		{0.0000005, "0.000001"},    // half-up at the sixth decimal
		{0.9999994999, "0.999999"}, // below the tie, rounds down
		{999, "999.000000"},
	}

	for _, c := range cases {
		got := FormatFixed6(c.in)
		if got != c.want {
			t.Errorf("FormatFixed6(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatFixed6CarriesIntoInteger(t *testing.T) {
	// 1.9999996 rounds the fractional part up to 1000000, which must
	// carry into the integer part rather than overflow the 6 digits.
	got := FormatFixed6(1.9999996)
	if got != "2.000000" {
		t.Errorf("FormatFixed6(1.9999996) = %q, want 2.000000", got)
	}
}
