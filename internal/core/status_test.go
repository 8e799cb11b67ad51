package core

import "testing"

func TestMonthStatus(t *testing.T) {
	cases := []struct {
		name string
		fee  MonthlyFee
		want Status
	}{
		{"nothing paid", MonthlyFee{SchoolPart: Rupees(1000), BusPart: Rupees(300)}, StatusPending},
		{"school only", MonthlyFee{SchoolPart: Rupees(1000), BusPart: Rupees(300), PaidSchool: Rupees(1000)}, StatusPartial},
		{"both", MonthlyFee{SchoolPart: Rupees(1000), BusPart: Rupees(300), PaidSchool: Rupees(1000), PaidBus: Rupees(300)}, StatusPaid},
		{"partial school", MonthlyFee{SchoolPart: Rupees(1000), PaidSchool: Rupees(1)}, StatusPartial},
		{"nothing due", MonthlyFee{}, StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fee.Status().Status; got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestLedgerTotals(t *testing.T) {
	l := mustSchedule(t, 1000, 300, true)
	res, err := Allocate(l, StreamAmounts{School: Rupees(2500), Bus: Rupees(300)}, OverpaymentReject, allocatedAt)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	tot := res.Ledger.Totals()
	if tot.Due != Rupees(15600) || tot.Paid != Rupees(2800) || tot.Outstanding != Rupees(12800) {
		t.Fatalf("unexpected totals %+v", tot)
	}
	if tot.PaidMonths != 1 || tot.Partial != 2 || tot.Pending != 9 {
		t.Fatalf("unexpected month counts %+v", tot)
	}
}
