package http

import (
	"errors"
	"net/http"
	"strings"

	"budgetapp/internal/core"
	"budgetapp/internal/services"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

type createAccountRequest struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Balance   any    `json:"balance"`
	IsDefault bool   `json:"isDefault"`
}

type createTransactionRequest struct {
	AccountID         string `json:"accountId"`
	Type              string `json:"type"`
	Amount            any    `json:"amount"`
	Category          string `json:"category"`
	Date              string `json:"date"`
	Description       string `json:"description"`
	IsRecurring       bool   `json:"isRecurring"`
	RecurringInterval string `json:"recurringInterval"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type setBudgetRequest struct {
	Amount any `json:"amount"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleCategories lists the catalog, optionally narrowed by ?type=.
func handleCategories(w http.ResponseWriter, r *http.Request) {
	list := core.Categories()
	if t := strings.TrimSpace(r.URL.Query().Get("type")); t != "" {
		typ, err := core.ParseTransactionType(t)
		if err != nil {
			writeError(w, r, err)
			return
		}
		list = core.CategoriesByType(typ)
	}
	out := make([]categoryDTO, len(list))
	for i, c := range list {
		out[i] = toCategoryDTO(c)
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.EnsureUser(r.Context(), core.User{ID: uid, Email: req.Email, Name: req.Name, ImageURL: req.ImageURL})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toUserDTO(u))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.accounts.ListAccounts(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountDTO, len(list))
	for i, a := range list {
		out[i] = toSummaryDTO(a)
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := core.ParseAccountType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	acct, err := s.accounts.CreateAccount(r.Context(), services.CreateAccountInput{
		UserID:    uid,
		Name:      req.Name,
		Type:      typ,
		Balance:   req.Balance,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toAccountDTO(acct))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := parseViewQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.accounts.ViewAccount(r.Context(), uid, r.PathValue("id"), q, s.now().In(s.loc))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toAccountViewDTO(view))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.accounts.DeleteAccount(r.Context(), uid, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	acct, err := s.accounts.SetDefaultAccount(r.Context(), uid, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toAccountDTO(acct))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var interval core.RecurringInterval
	if strings.TrimSpace(req.RecurringInterval) != "" {
		if interval, err = core.ParseRecurringInterval(req.RecurringInterval); err != nil {
			writeError(w, r, err)
			return
		}
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		writeError(w, r, core.NewValidationError("amount", core.ErrInvalidAmount))
		return
	}

	tr, err := s.transactions.CreateTransaction(r.Context(), services.CreateTransactionInput{
		UserID:            uid,
		AccountID:         req.AccountID,
		Type:              typ,
		Amount:            req.Amount,
		Category:          req.Category,
		Date:              date,
		Description:       req.Description,
		IsRecurring:       req.IsRecurring,
		RecurringInterval: interval,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toTransactionDTO(tr))
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.transactions.BulkDeleteTransactions(r.Context(), uid, req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"deleted": n})
}

// handleGetBudget reports against the "account" query parameter, or the
// user's default account when it is absent.
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accountID := strings.TrimSpace(r.URL.Query().Get("account"))
	if accountID == "" {
		list, err := s.accounts.ListAccounts(r.Context(), uid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, a := range list {
			if a.Account.IsDefault {
				accountID = a.Account.ID
				break
			}
		}
		if accountID == "" {
			writeError(w, r, core.NewValidationError("account", errors.New("no default account; pass ?account=")))
			return
		}
	}
	status, err := s.budgets.CurrentBudget(r.Context(), uid, accountID, s.now().In(s.loc))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBudgetStatusDTO(status))
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		writeError(w, r, core.NewValidationError("amount", core.ErrInvalidAmount))
		return
	}
	b, err := s.budgets.SetBudget(r.Context(), uid, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBudgetDTO(&b))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.dashboard.Dashboard(r.Context(), uid, s.now().In(s.loc))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toDashboardDTO(d))
}
