package diag

// FormatFixed6 renders f as sign + integer part + "." + six zero-padded
// fractional digits, rounding half-up at the sixth decimal place. This is
// a direct port of WebTerminal::printDecimalFixed6_impl: the embedded
// print helper it replaces has no floating-point formatting, and
// fmt.Sprintf("%.6f", ...) would round-to-even instead of half-up on the
// exact tie cases the source's tests exercise.
func FormatFixed6(f float64) string {
	sign := ""
	absF := f
	if f < 0 {
		sign = "-"
		absF = -f
	}

	ip := int64(absF)
	fp := int64((absF-float64(ip))*1e6 + 0.5)
	if fp >= 1000000 {
		ip++
		fp -= 1000000
	}

	return sign + itoa64(ip) + "." + padLeft6(utoa64(uint64(fp)))
}

// itoa64 converts a non-negative int64 to decimal without fmt/strconv.
func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	negative := n < 0
	if negative {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// utoa64 converts a uint64 to decimal without fmt/strconv.
func utoa64(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// padLeft6 zero-pads s on the left to exactly 6 characters.
func padLeft6(s string) string {
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}
