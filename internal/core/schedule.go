package core

// BuildSchedule lays out a session's twelve months at the given monthly
// rates. The transport rate only applies to bus students. Nothing is paid.
// Rates above MaxAmountPaise are rejected.
func BuildSchedule(school, bus Money, isBusStudent bool) (FeeLedger, error) {
	if school.IsNegative() || bus.IsNegative() {
		return FeeLedger{}, ErrNegativeAmount
	}
	if !school.InRange() || !bus.InRange() {
		return FeeLedger{}, ErrAmountTooLarge
	}
	if !isBusStudent {
		bus = Money{}
	}
	var l FeeLedger
	for m := range l {
		l[m] = MonthlyFee{SchoolPart: school, BusPart: bus}
	}
	return l, nil
}
