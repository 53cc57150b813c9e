package handler

import (
	"context"
	"net/http"
	"strings"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
	"retail-ledger/internal/service"
)

type AccountHandler struct {
	ledger *service.Ledger
}

func NewAccountHandler(ledger *service.Ledger) *AccountHandler {
	return &AccountHandler{
		ledger: ledger,
	}
}

type CreateAccountRequest struct {
	HolderName     string `json:"holder_name"`
	Age            int    `json:"age"`
	AccountType    string `json:"account_type"`
	InitialDeposit string `json:"initial_deposit"`
	PIN            string `json:"pin,omitempty"`
}

type RenameRequest struct {
	HolderName string `json:"holder_name"`
}

type UpgradeRequest struct {
	AccountType string `json:"account_type"`
}

type ChangePINRequest struct {
	OldPIN string `json:"old_pin"`
	NewPIN string `json:"new_pin"`
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}

	initialDeposit, appErr := parseAmount(req.InitialDeposit)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledger.CreateAccount(r.Context(), service.CreateAccountRequest{
		HolderName:     req.HolderName,
		Age:            req.Age,
		Type:           req.AccountType,
		InitialDeposit: initialDeposit,
		PIN:            req.PIN,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result.Account, result.Message)
}

// ListAccounts supports ?status=active|inactive|locked and ?name= filters.
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if name := q.Get("name"); name != "" {
		accounts, err := h.ledger.SearchByName(name)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accounts, "")
		return
	}

	var accounts []*domain.Account
	switch strings.ToLower(q.Get("status")) {
	case "":
		accounts = h.ledger.ListAccounts()
	case "active":
		accounts = h.ledger.ListActive()
	case "inactive", "closed":
		accounts = h.ledger.ListInactive()
	case "locked":
		accounts = h.ledger.ListLocked()
	default:
		writeError(w, errors.NewAppErrorf(errors.InvalidInput, "unknown status filter %q", q.Get("status")))
		return
	}
	writeJSON(w, http.StatusOK, accounts, "")
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	account, err := h.ledger.FindByNumber(number)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account, "")
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledger.BalanceInquiry(number)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_number": result.Account.Number,
		"balance":        result.Account.Balance,
	}, result.Message)
}

func (h *AccountHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, h.ledger.CloseAccount)
}

func (h *AccountHandler) ReopenAccount(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, h.ledger.ReopenAccount)
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, h.ledger.DeleteAccount)
}

func (h *AccountHandler) DeleteAllAccounts(w http.ResponseWriter, r *http.Request) {
	message, err := h.ledger.DeleteAllAccounts(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, message)
}

func (h *AccountHandler) RenameHolder(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	var req RenameRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledger.RenameHolder(r.Context(), number, req.HolderName)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Account, result.Message)
}

func (h *AccountHandler) UpgradeType(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	var req UpgradeRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledger.UpgradeType(r.Context(), number, req.AccountType)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Account, result.Message)
}

func (h *AccountHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	h.withPIN(w, r, h.ledger.SetPIN)
}

func (h *AccountHandler) VerifyPIN(w http.ResponseWriter, r *http.Request) {
	h.withPIN(w, r, h.ledger.VerifyPIN)
}

func (h *AccountHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.withPIN(w, r, h.ledger.Unlock)
}

func (h *AccountHandler) ChangePIN(w http.ResponseWriter, r *http.Request) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	var req ChangePINRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledger.ChangePIN(r.Context(), number, req.OldPIN, req.NewPIN)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Account, result.Message)
}

type accountOp func(ctx context.Context, number int64) (*service.AccountResult, error)

func (h *AccountHandler) simple(w http.ResponseWriter, r *http.Request, op accountOp) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := op(r.Context(), number)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Account, result.Message)
}

type pinOp func(ctx context.Context, number int64, pin string) (*service.AccountResult, error)

func (h *AccountHandler) withPIN(w http.ResponseWriter, r *http.Request, op pinOp) {
	number, appErr := accountNumberVar(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	var req PINRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := op(r.Context(), number, req.PIN)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Account, result.Message)
}
