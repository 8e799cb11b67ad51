package core

import (
	"strconv"
	"strings"
)

// RegistrationSeed is the first registration number ever issued.
const RegistrationSeed = 1001

// ParseNumber parses a stored registration or roll number. Values that are
// not plain integers report ok=false.
func ParseNumber(s string) (n int64, ok bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxNumeric returns the largest numeric value in values, skipping the ones
// that do not parse.
func MaxNumeric(values []string) (highest int64, found bool) {
	for _, v := range values {
		n, ok := ParseNumber(v)
		if !ok {
			continue
		}
		if !found || n > highest {
			highest, found = n, true
		}
	}
	return highest, found
}

// NextRegistrationNumber returns the number following highest, or the seed when
// no student exists yet.
func NextRegistrationNumber(highest int64, found bool) string {
	return strconv.FormatInt(RegistrationFloor(highest, found)+1, 10)
}

// RegistrationFloor is the value the registration counter must not go below.
func RegistrationFloor(highest int64, found bool) int64 {
	if !found {
		return RegistrationSeed - 1
	}
	return highest
}

// NextRollNumber returns the roll following the highest numeric roll in
// rolls, or "1" for an empty class.
func NextRollNumber(rolls []string) string {
	highest, found := MaxNumeric(rolls)
	return strconv.FormatInt(RollFloor(highest, found)+1, 10)
}

// RollFloor is the value a roll counter must not go below.
func RollFloor(highest int64, found bool) int64 {
	if !found {
		return 0
	}
	return highest
}

// RollCounterKey names the counter of a (class, session) pair.
func RollCounterKey(className, session string) string {
	return "roll/" + strings.TrimSpace(className) + "/" + strings.TrimSpace(session)
}

// RegistrationCounterKey names the global registration counter.
const RegistrationCounterKey = "registration"
