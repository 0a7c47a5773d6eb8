package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flordegrace/ims-api/internal/httputil"
	"github.com/flordegrace/ims-api/internal/logging"
	"github.com/flordegrace/ims-api/internal/session"
	"github.com/flordegrace/ims-api/internal/user"
)

// Handler contains HTTP handlers for admin user management. All routes are
// mounted behind the admin gate.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// UpdateUserRequest represents an admin edit of a user record. Omitted
// fields are left untouched.
type UpdateUserRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	IsAdmin   *bool   `json:"is_admin,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

// Pagination describes the page of a list response
type Pagination struct {
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// ListUsersResponse is the paginated user listing
type ListUsersResponse struct {
	Users      []*user.User `json:"users"`
	Pagination Pagination   `json:"pagination"`
}

// ListUsers returns a paginated, searchable user listing
// @Summary      List users
// @Description  List users with pagination and optional search over email and name
// @Tags         admin
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Page size" default(10)
// @Param        search query string false "Filter on email, first name, last name"
// @Success      200 {object} ListUsersResponse
// @Failure      401 {object} httputil.ErrorResponse "Authentication required"
// @Failure      403 {object} httputil.ErrorResponse "Admin access required"
// @Router       /api/admin/users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 10)
	if perPage > 100 {
		perPage = 10
	}
	search := r.URL.Query().Get("search")

	users, total, err := h.service.ListUsers(r.Context(), page, perPage, search)
	if err != nil {
		logger.Error("failed to list users", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to fetch users", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	pages := (total + perPage - 1) / perPage
	httputil.RespondJSON(w, ListUsersResponse{
		Users: users,
		Pagination: Pagination{
			Page:    page,
			Pages:   pages,
			PerPage: perPage,
			Total:   total,
			HasNext: page < pages,
			HasPrev: page > 1,
		},
	}, http.StatusOK)
}

// GetUser returns a single user
// @Summary      Get user
// @Description  Fetch a user record by ID
// @Tags         admin
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200 {object} map[string]any
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /api/admin/users/{id} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := pathUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("failed to get user", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to fetch user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, map[string]any{"user": u}, http.StatusOK)
}

// UpdateUser applies an admin edit to a user record
// @Summary      Update user
// @Description  Update name and admin/active flags. Self-demotion and self-deactivation are rejected.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id path string true "User ID"
// @Param        request body UpdateUserRequest true "Fields to update"
// @Success      200 {object} map[string]any
// @Failure      400 {object} httputil.ErrorResponse "Self-action forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /api/admin/users/{id} [put]
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	ident, _ := session.IdentityFromContext(r.Context())

	id, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update user request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	updated, err := h.service.UpdateUser(r.Context(), ident.UserID, id, user.FlagUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsAdmin:   req.IsAdmin,
		IsActive:  req.IsActive,
	})
	if err != nil {
		if errors.Is(err, ErrSelfDemote) || errors.Is(err, ErrSelfDeactivate) {
			logger.Warn("rejected self-action", "error", err.Error())
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeSelfAction, http.StatusBadRequest)
			return
		}
		if errors.Is(err, user.ErrNotFound) {
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("failed to update user", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to update user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user updated", "target_user_id", id)
	httputil.RespondJSON(w, map[string]any{"user": updated}, http.StatusOK)
}

// DeleteUser removes a user record
// @Summary      Delete user
// @Description  Delete a user. Self-deletion is rejected.
// @Tags         admin
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200 {object} map[string]string
// @Failure      400 {object} httputil.ErrorResponse "Self-action forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /api/admin/users/{id} [delete]
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	ident, _ := session.IdentityFromContext(r.Context())

	id, ok := pathUserID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteUser(r.Context(), ident.UserID, id)
	if err != nil {
		if errors.Is(err, ErrSelfDelete) {
			logger.Warn("rejected self-deletion")
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeSelfAction, http.StatusBadRequest)
			return
		}
		if errors.Is(err, user.ErrNotFound) {
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("failed to delete user", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to delete user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user deleted", "target_user_id", id)
	httputil.RespondJSON(w, map[string]string{
		"message": "User " + deleted.FullName() + " deleted successfully",
	}, http.StatusOK)
}

// DashboardStats returns aggregate user counts
// @Summary      Dashboard statistics
// @Description  Aggregate user counts for the admin dashboard
// @Tags         admin
// @Produce      json
// @Success      200 {object} map[string]any
// @Failure      401 {object} httputil.ErrorResponse "Authentication required"
// @Failure      403 {object} httputil.ErrorResponse "Admin access required"
// @Router       /api/admin/dashboard-stats [get]
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		logger.Error("failed to fetch stats", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to fetch stats", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, map[string]any{"stats": stats}, http.StatusOK)
}

func pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "invalid user id", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}
