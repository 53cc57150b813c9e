package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
	"retail-ledger/internal/service"
)

const dateLayout = "2006-01-02"

type TransactionHandler struct {
	ledger *service.Ledger
}

func NewTransactionHandler(ledger *service.Ledger) *TransactionHandler {
	return &TransactionHandler{
		ledger: ledger,
	}
}

type TransferRequest struct {
	FromAccount json.Number `json:"from_account"`
	ToAccount   json.Number `json:"to_account"`
	Amount      string      `json:"amount"`
	PIN         string      `json:"pin,omitempty"`
}

type FixedDepositRequest struct {
	Amount      string `json:"amount"`
	TenureYears int    `json:"tenure_years"`
	PIN         string `json:"pin,omitempty"`
}

type LoanRequest struct {
	Amount       string `json:"amount,omitempty"`
	TenureMonths int    `json:"tenure_months,omitempty"`
	PIN          string `json:"pin,omitempty"`
}

type amountOp func(r *http.Request, number int64, amount decimal.Decimal, pin string) (*service.AccountResult, error)

func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, func(r *http.Request, number int64, amount decimal.Decimal, pin string) (*service.AccountResult, error) {
		return h.ledger.Deposit(r.Context(), number, amount, pin)
	})
}

func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, func(r *http.Request, number int64, amount decimal.Decimal, pin string) (*service.AccountResult, error) {
		return h.ledger.Withdraw(r.Context(), number, amount, pin)
	})
}

func (h *TransactionHandler) moveFunds(w http.ResponseWriter, r *http.Request, op amountOp) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	var req AmountRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}
	amount, appErr := parseAmount(req.Amount)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := op(r, number, amount, req.PIN)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Account, result.Message)
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}

	from, appErr := parseAccountNumber(req.FromAccount.String())
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	to, appErr := parseAccountNumber(req.ToAccount.String())
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	amount, appErr := parseAmount(req.Amount)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledger.Transfer(r.Context(), service.TransferRequest{
		From:   from,
		To:     to,
		Amount: amount,
		PIN:    req.PIN,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result, result.Message)
}

func (h *TransactionHandler) FixedDeposit(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	var req FixedDepositRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}
	amount, appErr := parseAmount(req.Amount)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	quote, err := h.ledger.FixedDeposit(r.Context(), number, amount, req.TenureYears, req.PIN)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quote, quote.Message)
}

func (h *TransactionHandler) LendLoan(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	var req LoanRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}
	amount := decimal.Zero
	if req.Amount != "" {
		if amount, appErr = parseAmount(req.Amount); appErr != nil {
			writeError(w, appErr)
			return
		}
	}

	offer, err := h.ledger.LendLoan(r.Context(), number, service.LoanRequest{
		Amount:       amount,
		TenureMonths: req.TenureMonths,
	}, req.PIN)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer, offer.Message)
}

func (h *TransactionHandler) SimpleInterest(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	years, err := decimal.NewFromString(r.URL.Query().Get("years"))
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "years must be a number").WithDetails(err.Error()))
		return
	}

	quote, err := h.ledger.SimpleInterest(r.Context(), number, years)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote, quote.Message)
}

func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	records, err := h.ledger.History(r.Context(), number)
	if err != nil {
		handleError(w, err)
		return
	}
	if records == nil {
		records = []domain.TransactionRecord{}
	}
	writeJSON(w, http.StatusOK, records, "")
}

// Statement takes ?from= and ?to= as YYYY-MM-DD dates; both days are included.
// Without them the statement covers the last 30 days.
func (h *TransactionHandler) Statement(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	from, appErr := parseDate(r.URL.Query().Get("from"), today.AddDate(0, 0, -30))
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	to, appErr := parseDate(r.URL.Query().Get("to"), today)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	statement, err := h.ledger.Statement(r.Context(), number, from, to.AddDate(0, 0, 1))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statement, "")
}

func parseDate(s string, fallback time.Time) (time.Time, *errors.AppError) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, errors.NewAppErrorf(errors.InvalidInput, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
