package core

import "time"

// Selection names the streams a point payment settles.
type Selection struct {
	School bool `json:"paySchool"`
	Bus    bool `json:"payBus"`
}

func (s Selection) Empty() bool { return !s.School && !s.Bus }

// ConfirmMonth settles the selected streams of one month in full and stamps
// the payment time. A selected stream with no part for the month is not
// applicable and is ignored; a selection left with nothing applicable fails
// with ErrNothingSelected. The input month is not modified.
func ConfirmMonth(fee MonthlyFee, sel Selection, at time.Time) (MonthlyFee, error) {
	if sel.Empty() {
		return fee, ErrNothingSelected
	}
	if err := fee.Validate(); err != nil {
		return fee, err
	}
	sel.School = sel.School && fee.SchoolPart.Paise > 0
	sel.Bus = sel.Bus && fee.BusPart.Paise > 0
	if sel.Empty() {
		return fee, ErrNothingSelected
	}
	if sel.School {
		if err := fee.Apply(Tuition, fee.SchoolPart); err != nil {
			return fee, err
		}
	}
	if sel.Bus {
		if err := fee.Apply(Transport, fee.BusPart); err != nil {
			return fee, err
		}
	}
	stamp := at
	fee.PaidAt = &stamp
	return fee, nil
}
