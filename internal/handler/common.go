package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

type Response struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// PINRequest carries the PIN for operations on a protected account.
type PINRequest struct {
	PIN string `json:"pin,omitempty"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
	PIN    string `json:"pin,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data, Message: message}
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

func handleError(w http.ResponseWriter, err error) {
	writeError(w, errors.AsAppError(err))
}

func decodeJSON(r *http.Request, v interface{}) *errors.AppError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error())
	}
	return nil
}

func accountNumberVar(r *http.Request) (int64, *errors.AppError) {
	return parseAccountNumber(mux.Vars(r)["account_number"])
}

func parseAccountNumber(s string) (int64, *errors.AppError) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.ErrInvalidAccountID
	}
	return n, nil
}

// parseAmount rejects anything that is not a plain decimal number.
func parseAmount(s string) (decimal.Decimal, *errors.AppError) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error())
	}
	if err := domain.ValidatePrecision(amount); err != nil {
		return decimal.Zero, errors.AsAppError(err)
	}
	return amount, nil
}
