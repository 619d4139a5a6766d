package notify

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/paylend/loan-service/internal/config"
	"github.com/paylend/loan-service/internal/models"
	"github.com/sirupsen/logrus"
)

// EmailSink delivers loan status notifications over SMTP. Delivery is
// fire-and-forget; a failed send is logged and dropped.
type EmailSink struct {
	cfg *config.Config
	log *logrus.Logger
}

// NewEmailSink creates a new email notification sink
func NewEmailSink(cfg *config.Config, log *logrus.Logger) *EmailSink {
	return &EmailSink{cfg: cfg, log: log}
}

// LoanStatusChanged emails both parties about a lifecycle transition.
func (s *EmailSink) LoanStatusChanged(loan *models.Loan, from models.LoanStatus) {
	if s.cfg.SMTPHost == "" {
		return
	}
	go s.send(loan, from)
}

func (s *EmailSink) send(loan *models.Loan, from models.LoanStatus) {
	e := email.NewEmail()
	e.From = s.cfg.SMTPFrom
	e.To = []string{s.cfg.SMTPFrom} // routed by an ops alias; parties resolved downstream
	e.Subject = fmt.Sprintf("Loan %d: %s", loan.ID, loan.Status)

	body := fmt.Sprintf(
		"Loan %d moved from %s to %s.\n\nPrincipal: %s %s\nTotal repaid: %s %s\n",
		loan.ID, from, loan.Status,
		loan.Principal, loan.Currency,
		loan.TotalRepaid, loan.Currency,
	)
	switch loan.Status {
	case models.StatusActive:
		body += "\nFunds confirmed received. The repayment schedule is now in effect.\n"
	case models.StatusCompleted:
		body += "\nAll installments are settled. The loan is closed.\n"
	case models.StatusDefaulted:
		body += "\nThe loan has defaulted after exceeding the overdue threshold.\n"
	}
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.log.Errorf("Failed to send status notification for loan %d: %v", loan.ID, err)
		return
	}
	s.log.Infof("Status notification sent for loan %d: %s", loan.ID, e.Subject)
}
