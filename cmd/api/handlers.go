package main

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/mcclellann/laureateLoan/pkg/ledger"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/mcclellann/laureateLoan/pkg/payments"
	"github.com/mcclellann/laureateLoan/pkg/store"
	"github.com/shopspring/decimal"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createLaureateHandler(w http.ResponseWriter, r *http.Request) {
	var req ledger.CreateLaureateInput
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	laureate, err := s.ledger.CreateLaureate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, laureate)
}

func (s *Server) getLaureateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	laureate, err := s.ledger.GetLaureate(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, laureate)
}

func (s *Server) laureateSummaryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.ledger.LaureateSummary(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) laureateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views, err := s.ledger.LaureateSchedule(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) laureatePaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views, err := s.ledger.LaureatePayments(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type createLoanRequest struct {
	LaureateID     uuid.UUID        `json:"laureate_id"`
	Amount         decimal.Decimal  `json:"amount"`
	InterestRate   decimal.Decimal  `json:"interest_rate"`
	StartDate      string           `json:"start_date"`
	EndDate        string           `json:"end_date"`
	MonthlyPayment *decimal.Decimal `json:"monthly_payment,omitempty"`
	Notes          string           `json:"notes"`
	CreatedBy      string           `json:"created_by"`
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.LaureateID == uuid.Nil {
		s.writeError(w, r, models.NewValidationError("laureate_id", "is required"))
		return
	}
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := parseDateField("end_date", req.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	detail, err := s.ledger.CreateLoan(r.Context(), ledger.CreateLoanInput{
		LaureateID:     req.LaureateID,
		Amount:         req.Amount,
		InterestRate:   req.InterestRate,
		StartDate:      start,
		EndDate:        end,
		MonthlyPayment: req.MonthlyPayment,
		Notes:          req.Notes,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	laureateID, err := queryID(r, "laureate_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := store.LoanFilter{LaureateID: laureateID}
	if raw := r.URL.Query().Get("status"); raw != "" {
		if filter.Status, err = models.ParseLoanStatus(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	loans, err := s.ledger.ListLoans(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	detail, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type updateLoanRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateLoanRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	upd := ledger.LoanUpdate{Notes: req.Notes}
	if req.Status != nil {
		status, err := models.ParseLoanStatus(*req.Status)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		upd.Status = &status
	}
	loan, err := s.ledger.UpdateLoan(r.Context(), id, upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) loanBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.ledger.LoanBalance(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) regenerateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.ledger.RegenerateSchedule(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) loanStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.LoanStatistics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	var q ledger.PaymentQuery
	var err error
	if q.LoanID, err = queryID(r, "loan_id"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.LaureateID, err = queryID(r, "laureate_id"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		if q.Status, err = models.ParsePaymentStatus(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if raw := r.URL.Query().Get("overdue"); raw != "" {
		overdue, perr := strconv.ParseBool(raw)
		if perr != nil {
			s.writeError(w, r, models.NewValidationError("overdue", "expected true or false"))
			return
		}
		if overdue {
			asOf, err := s.asOf(r)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			q.OverdueAsOf = &asOf
		}
	}

	views, err := s.ledger.ListPayments(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) overduePaymentsHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := s.asOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.ledger.OverduePayments(r.Context(), asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) paymentStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := s.asOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.ledger.PaymentStatistics(r.Context(), asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type markPaidRequest struct {
	Method         string  `json:"payment_method"`
	TransactionRef string  `json:"transaction_ref"`
	PaidDate       string  `json:"paid_date"`
	Notes          *string `json:"notes"`
}

func (s *Server) markPaidHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req markPaidRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	details := payments.PaidDetails{Method: req.Method, TransactionRef: req.TransactionRef, Notes: req.Notes}
	if req.PaidDate != "" {
		paid, err := parseDateField("paid_date", req.PaidDate)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		details.PaidDate = &paid
	}

	result, err := s.ledger.MarkPaid(r.Context(), id, details)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

func (s *Server) markMissedHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req notesRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.ledger.MarkMissed(r.Context(), id, req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) markOverdueHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req notesRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.ledger.MarkOverdue(r.Context(), id, req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
