package core

import "strings"

var (
	ones = [...]string{
		"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
		"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen",
		"Seventeen", "Eighteen", "Nineteen",
	}
	tens = [...]string{
		"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
	}
)

// ToWords spells n in English with Indian grouping (Thousand, Lakh, Crore)
// and "and" after the hundreds: 1999 is "One Thousand Nine Hundred and
// Ninety Nine".
func ToWords(n uint64) string {
	if n == 0 {
		return "Zero"
	}
	return strings.Join(appendWords(nil, n), " ")
}

func appendWords(out []string, n uint64) []string {
	for _, g := range []struct {
		size uint64
		name string
	}{
		{10_000_000, "Crore"},
		{100_000, "Lakh"},
		{1_000, "Thousand"},
	} {
		if n >= g.size {
			out = appendWords(out, n/g.size)
			out = append(out, g.name)
			n %= g.size
		}
	}
	if n >= 100 {
		out = append(out, ones[n/100], "Hundred")
		n %= 100
		if n > 0 {
			out = append(out, "and")
		}
	}
	switch {
	case n == 0:
	case n < 20:
		out = append(out, ones[n])
	default:
		out = append(out, tens[n/10])
		if n%10 != 0 {
			out = append(out, ones[n%10])
		}
	}
	return out
}
