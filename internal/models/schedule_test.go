package models

import (
	"testing"
	"time"

	"github.com/paylend/loan-service/internal/money"
	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDeriveScheduleStatus(t *testing.T) {
	due := day(2026, 3, 15)

	tests := []struct {
		name string
		paid int64
		asOf time.Time
		want ScheduleStatus
	}{
		{"unpaid before due date", 0, day(2026, 3, 10), SchedulePending},
		{"unpaid on due date", 0, due.Add(12 * time.Hour), SchedulePending},
		{"unpaid end of due day", 0, day(2026, 3, 15).Add(23 * time.Hour), SchedulePending},
		{"unpaid day after", 0, day(2026, 3, 16), ScheduleOverdue},
		{"partial before due", 100, day(2026, 3, 10), SchedulePartial},
		{"partial after due stays partial", 100, day(2026, 4, 1), SchedulePartial},
		{"fully paid", 52000, day(2026, 3, 10), SchedulePaid},
		{"overpaid still paid", 60000, day(2026, 4, 1), SchedulePaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveScheduleStatus(money.Minor(tt.paid), 52000, due, tt.asOf)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaysOverdue(t *testing.T) {
	s := &RepaymentSchedule{DueDate: day(2026, 3, 5)}

	assert.Equal(t, 0, s.DaysOverdue(day(2026, 3, 5)))
	assert.Equal(t, 0, s.DaysOverdue(day(2026, 3, 4)))
	// Still within the due day's grace.
	assert.Equal(t, 0, s.DaysOverdue(day(2026, 3, 5).Add(20*time.Hour)))
	assert.Equal(t, 1, s.DaysOverdue(day(2026, 3, 6).Add(time.Hour)))
	assert.Equal(t, 10, s.DaysOverdue(day(2026, 3, 15).Add(time.Hour)))
}

func TestOutstanding(t *testing.T) {
	s := &RepaymentSchedule{AmountDue: 52000, PaidAmount: 20000}
	assert.EqualValues(t, 32000, s.Outstanding())

	s.PaidAmount = 52000
	assert.EqualValues(t, 0, s.Outstanding())

	s.PaidAmount = 60000
	assert.EqualValues(t, 0, s.Outstanding())
}
