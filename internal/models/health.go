package models

// LoanHealth is a derived, read-only view of a loan's repayment behavior.
type LoanHealth struct {
	LoanID             int64   `json:"loan_id"`
	PaidCount          int     `json:"paid_count"`
	OnTimeCount        int     `json:"on_time_count"`
	OverdueCount       int     `json:"overdue_count"`
	OnTimeRate         float64 `json:"on_time_rate"`
	HealthScore        float64 `json:"health_score"` // 0..100
	ProgressPercentage float64 `json:"progress_percentage"`
}

// HealthAggregate averages per-loan health scores, excluding loans with no
// paid installments.
type HealthAggregate struct {
	LoanCount        int     `json:"loan_count"`
	ScoredLoanCount  int     `json:"scored_loan_count"`
	AverageScore     float64 `json:"average_score"`
	TotalOverdue     int     `json:"total_overdue"`
	AverageOnTimePct float64 `json:"average_on_time_pct"`
}
