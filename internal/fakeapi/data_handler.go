package fakeapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2beens/cutroom-admin/internal/middleware"
	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"
	"github.com/2beens/cutroom-admin/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const maxPageLimit = 100

type DataHandler struct {
	data     *DataStore
	accounts *AccountStore
}

func NewDataHandler(data *DataStore, accounts *AccountStore) *DataHandler {
	return &DataHandler{
		data:     data,
		accounts: accounts,
	}
}

func (handler *DataHandler) SetupRoutes(mainRouter *mux.Router, checker middleware.TokenChecker) {
	adminRouter := mainRouter.PathPrefix("/admin").Subrouter()
	adminRouter.HandleFunc("/dashboard/stats", handler.handleStats).Methods("GET").Name("dashboard-stats")
	adminRouter.HandleFunc("/users", handler.handleListUsers).Methods("GET").Name("list-users")
	adminRouter.HandleFunc("/users/{id}/ban", handler.handleBan(true)).Methods("POST").Name("ban-user")
	adminRouter.HandleFunc("/users/{id}/unban", handler.handleBan(false)).Methods("POST").Name("unban-user")
	adminRouter.HandleFunc("/orders", handler.handleListOrders).Methods("GET").Name("list-orders")
	adminRouter.HandleFunc("/kyc", handler.handleListKYC).Methods("GET").Name("list-kyc")
	adminRouter.HandleFunc("/kyc/{id}/approve", handler.handleApproveKYC).Methods("POST").Name("approve-kyc")
	adminRouter.HandleFunc("/kyc/{id}/reject", handler.handleRejectKYC).Methods("POST").Name("reject-kyc")
	adminRouter.Use(middleware.BearerAuth(checker))
}

func (handler *DataHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	pkg.WriteJSONResponseOK(w, map[string]any{
		"success": true,
		"data":    handler.data.Stats(),
	})
}

func (handler *DataHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "dataHandler.listUsers")
	defer span.End()

	page, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := UserFilter{
		Search: query.Get("search"),
		Role:   query.Get("role"),
	}
	if bannedParam := query.Get("banned"); bannedParam != "" {
		banned, err := strconv.ParseBool(bannedParam)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid banned filter")
			return
		}
		filter.Banned = &banned
	}

	users, pagination := handler.data.ListUsers(filter, page, limit)
	span.SetAttributes(attribute.Int("users.total", pagination.Total))
	writePage(w, users, pagination)
}

// handleBan is reserved to super admins; a plain admin gets 403.
func (handler *DataHandler) handleBan(banned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !handler.isSuperAdmin(r) {
			writeFailure(w, http.StatusForbidden, "Super admin access required")
			return
		}

		userID := mux.Vars(r)["id"]
		if err := handler.data.SetBanned(userID, banned); err != nil {
			if errors.Is(err, ErrNotFound) {
				writeFailure(w, http.StatusNotFound, "User not found")
				return
			}
			log.Errorf("set banned [%t] for user %s: %s", banned, userID, err)
			writeFailure(w, http.StatusInternalServerError, "Failed to update user")
			return
		}

		message := "User banned"
		if !banned {
			message = "User unbanned"
		}
		writeSuccess(w, message)
	}
}

func (handler *DataHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	orders, pagination := handler.data.ListOrders(r.URL.Query().Get("status"), page, limit)
	writePage(w, orders, pagination)
}

func (handler *DataHandler) handleListKYC(w http.ResponseWriter, r *http.Request) {
	pkg.WriteJSONResponseOK(w, map[string]any{
		"success": true,
		"data":    handler.data.ListKYC(r.URL.Query().Get("status")),
	})
}

func (handler *DataHandler) handleApproveKYC(w http.ResponseWriter, r *http.Request) {
	handler.reviewKYC(w, mux.Vars(r)["id"], true, "")
}

func (handler *DataHandler) handleRejectKYC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		writeFailure(w, http.StatusBadRequest, "A rejection reason is required")
		return
	}
	handler.reviewKYC(w, mux.Vars(r)["id"], false, strings.TrimSpace(req.Reason))
}

func (handler *DataHandler) reviewKYC(w http.ResponseWriter, id string, approve bool, reason string) {
	err := handler.data.ReviewKYC(id, approve, reason)
	switch {
	case err == nil:
		if approve {
			writeSuccess(w, "KYC approved")
		} else {
			writeSuccess(w, "KYC rejected")
		}
	case errors.Is(err, ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Submission not found")
	case errors.Is(err, ErrAlreadyReviewed):
		writeFailure(w, http.StatusConflict, "Submission already reviewed")
	default:
		log.Errorf("review kyc %s: %s", id, err)
		writeFailure(w, http.StatusInternalServerError, "Failed to review submission")
	}
}

func (handler *DataHandler) isSuperAdmin(r *http.Request) bool {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		return false
	}
	admin, ok := handler.accounts.Get(subject)
	return ok && admin.Role == RoleSuperAdmin
}

func pageParams(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	page, limit = 1, 20
	query := r.URL.Query()

	if pageParam := query.Get("page"); pageParam != "" {
		p, err := strconv.Atoi(pageParam)
		if err != nil || p < 1 {
			writeFailure(w, http.StatusBadRequest, "Invalid page")
			return 0, 0, false
		}
		page = p
	}
	if limitParam := query.Get("limit"); limitParam != "" {
		l, err := strconv.Atoi(limitParam)
		if err != nil || l < 1 || l > maxPageLimit {
			writeFailure(w, http.StatusBadRequest, "Invalid limit")
			return 0, 0, false
		}
		limit = l
	}
	return page, limit, true
}

func writePage[T any](w http.ResponseWriter, items []T, pagination Pagination) {
	pkg.WriteJSONResponseOK(w, map[string]any{
		"success":    true,
		"data":       items,
		"pagination": pagination,
	})
}

func writeSuccess(w http.ResponseWriter, message string) {
	pkg.WriteJSONResponseOK(w, map[string]any{
		"success": true,
		"message": message,
	})
}
