package money

import "time"

// Installment is one generated due obligation before it is persisted
// as a repayment schedule row.
type Installment struct {
	Number    int
	DueDate   time.Time
	Principal Minor
	Interest  Minor
	AmountDue Minor
}

// GenerateSchedule splits principal and interest into count equal monthly
// installments starting at firstDue. Rounding remainders land on the final
// installment so the installments always sum exactly to principal+interest.
func GenerateSchedule(principal, interest Minor, count int, firstDue time.Time) []Installment {
	if count < 1 {
		count = 1
	}
	perPrincipal := principal / Minor(count)
	perInterest := interest / Minor(count)

	out := make([]Installment, 0, count)
	var accP, accI Minor
	for i := 1; i <= count; i++ {
		p, in := perPrincipal, perInterest
		if i == count {
			p = principal - accP
			in = interest - accI
		}
		accP += p
		accI += in
		out = append(out, Installment{
			Number:    i,
			DueDate:   firstDue.AddDate(0, i-1, 0),
			Principal: p,
			Interest:  in,
			AmountDue: p + in,
		})
	}
	return out
}

// FlatInterest computes total interest for a loan: rateBps applied flat to
// the principal for the whole term.
func FlatInterest(principal Minor, rateBps int64) Minor {
	return BasisPointsOf(principal, rateBps)
}
