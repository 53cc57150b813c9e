package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"retail-ledger/internal/errors"
	"retail-ledger/internal/service"
)

// AdminHandler serves analytics and whole-ledger maintenance.
type AdminHandler struct {
	ledger *service.Ledger
}

func NewAdminHandler(ledger *service.Ledger) *AdminHandler {
	return &AdminHandler{
		ledger: ledger,
	}
}

func (h *AdminHandler) CountActive(w http.ResponseWriter, r *http.Request) {
	count := h.ledger.CountActive()
	writeJSON(w, http.StatusOK, map[string]int{"active_accounts": count}, "")
}

func (h *AdminHandler) AverageBalance(w http.ResponseWriter, r *http.Request) {
	avg := h.ledger.AverageBalance()
	writeJSON(w, http.StatusOK, map[string]string{"average_balance": avg.StringFixed(2)}, "")
}

func (h *AdminHandler) Youngest(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.Youngest()
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account, "")
}

func (h *AdminHandler) Oldest(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.Oldest()
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account, "")
}

func (h *AdminHandler) TopByBalance(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, errors.NewAppErrorf(errors.InvalidInput, "n must be an integer, got %q", v))
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, h.ledger.TopByBalance(n), "")
}

// Export streams the CSV. It is buffered first so a failure still produces a
// proper error response.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := h.ledger.ExportAccounts(&buf); err != nil {
		handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="accounts.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Import accepts a CSV body in the export format.
func (h *AdminHandler) Import(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.ImportAccounts(r.Context(), r.Body)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report, report.Message)
}

func (h *AdminHandler) Flush(w http.ResponseWriter, r *http.Request) {
	message, err := h.ledger.Flush(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, message)
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	discrepancies, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	message := "Ledger is consistent with the audit log"
	if len(discrepancies) > 0 {
		message = strconv.Itoa(len(discrepancies)) + " account(s) disagree with the audit log"
	}
	writeJSON(w, http.StatusOK, discrepancies, message)
}
