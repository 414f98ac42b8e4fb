package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/MrEthical07/rolecalc/api"
	"github.com/MrEthical07/rolecalc/middleware"
	"github.com/MrEthical07/rolecalc/permission"
)

// calculationHistoryLimit is how many of the caller's entries a calculation
// response carries.
const calculationHistoryLimit = 10

type liveUserKey struct{}

// ServiceHandler serves the calculation and admin routes at its root.
func (s *Sandbox) ServiceHandler() http.Handler {
	return s.serviceRouter()
}

func (s *Sandbox) serviceRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Guard(s.issuer))
	r.Use(s.requireLiveUser)

	r.Post("/calculate", s.handleCalculate)
	r.Route("/admin", func(r chi.Router) {
		r.Get("/roles", s.handleListRoles)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireGroup(permission.RoleAdmin, "Admin access required"))
			r.Post("/roles", s.handleCreateRole)
			r.Delete("/roles", s.handleDeleteRole)
			r.Get("/users", s.handleListUsers)
			r.Delete("/users", s.handleDeleteUser)
			r.Post("/users/role", s.handleSetUserRole)
			r.Post("/users/block", s.handleBlockUser)
			r.Get("/history", s.handleListHistory)
			r.Delete("/history", s.handleDeleteHistory)
		})
	})
	return r
}

// requireLiveUser resolves the token subject against the directory. Deleted or
// disabled users are rejected with 401 even while their token is unexpired.
func (s *Sandbox) requireLiveUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			writeServiceError(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		u, found := s.dir.UserBySub(claims.Subject)
		if !found || !u.Enabled {
			writeServiceError(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), liveUserKey{}, u)))
	})
}

func liveUser(r *http.Request) User {
	u, _ := r.Context().Value(liveUserKey{}).(User)
	return u
}

type serviceError struct {
	Error     string   `json:"error"`
	UserRoles []string `json:"user_roles,omitempty"`
}

func writeServiceError(w http.ResponseWriter, status int, message string, roles []string) {
	writeServiceJSON(w, status, serviceError{Error: message, UserRoles: roles})
}

func writeServiceJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, message string) {
	writeServiceJSON(w, http.StatusOK, map[string]string{"message": message})
}

// decodeBody decodes and validates a JSON body, answering 400 itself on
// failure.
func (s *Sandbox) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeServiceError(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeServiceError(w, http.StatusBadRequest, validationMessage(err), nil)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return fmt.Sprintf("Missing field: '%s'", fe.Field())
	}
	return fmt.Sprintf("Invalid field: '%s'", fe.Field())
}

type calculateBody struct {
	Operand1  *api.Number `json:"operand1" validate:"required"`
	Operand2  *api.Number `json:"operand2" validate:"required"`
	Operation string      `json:"operation" validate:"required"`
}

type calculationEntry struct {
	Operand1  string `json:"operand1"`
	Operand2  string `json:"operand2"`
	Operation string `json:"operation"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

type calculateResult struct {
	Result    string             `json:"result"`
	History   []calculationEntry `json:"history"`
	UserRoles []string           `json:"user_roles"`
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// handleCalculate checks the operation name, then the caller's live groups
// against the current role catalog, then evaluates.
func (s *Sandbox) handleCalculate(w http.ResponseWriter, r *http.Request) {
	u := liveUser(r)
	var body calculateBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	op := permission.Operation(body.Operation)
	if !op.Valid() {
		writeServiceError(w, http.StatusBadRequest, "Unknown operation: "+body.Operation, nil)
		return
	}
	policy := permission.Evaluate(s.dir.Catalog(s.registry), u.Groups)
	if !policy.CanPerform(op) {
		s.logger.Info("calculation denied", "username", u.Username, "operation", string(op))
		writeServiceError(w, http.StatusForbidden, "Permission denied for operation: "+string(op), u.Groups)
		return
	}

	a, b := body.Operand1.Float64(), body.Operand2.Float64()
	var result float64
	switch op {
	case permission.OpAdd:
		result = a + b
	case permission.OpSubtract:
		result = a - b
	case permission.OpMultiply:
		result = a * b
	case permission.OpDivide:
		if b == 0 {
			writeServiceError(w, http.StatusBadRequest, "Division by zero", nil)
			return
		}
		result = a / b
	}

	s.dir.AppendHistory(HistoryEntry{
		UserID:    u.Sub,
		Operand1:  a,
		Operand2:  b,
		Operation: op,
		Result:    result,
	})

	recent := s.dir.History(u.Sub, calculationHistoryLimit)
	history := make([]calculationEntry, 0, len(recent))
	for _, e := range recent {
		history = append(history, calculationEntry{
			Operand1:  formatNumber(e.Operand1),
			Operand2:  formatNumber(e.Operand2),
			Operation: string(e.Operation),
			Result:    formatNumber(e.Result),
			Timestamp: e.Timestamp,
		})
	}
	writeServiceJSON(w, http.StatusOK, calculateResult{
		Result:    formatNumber(result),
		History:   history,
		UserRoles: u.Groups,
	})
}

func (s *Sandbox) handleListRoles(w http.ResponseWriter, _ *http.Request) {
	roles := make([]api.RoleRecord, 0, 4)
	for _, def := range permission.BuiltinRoles() {
		if def.Admin {
			continue
		}
		roles = append(roles, api.RoleRecord{RoleName: def.Name, Permissions: def.Permissions, IsDefault: true})
	}
	for _, r := range s.dir.Roles() {
		roles = append(roles, api.RoleRecord{RoleName: r.Name, Permissions: r.Permissions})
	}
	writeServiceJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type createRoleBody struct {
	RoleName    string                 `json:"roleName" validate:"required,max=64"`
	Permissions []permission.Operation `json:"permissions" validate:"required,min=1,dive,oneof=add subtract multiply divide"`
}

func (s *Sandbox) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var body createRoleBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	s.dir.PutRole(Role{Name: body.RoleName, Permissions: body.Permissions})
	s.logger.Info("role created", "role", body.RoleName, "by", liveUser(r).Username)
	writeMessage(w, fmt.Sprintf("Role %s created", body.RoleName))
}

type roleNameBody struct {
	RoleName string `json:"roleName" validate:"required"`
}

func (s *Sandbox) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	var body roleNameBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	if permission.IsBuiltinRole(body.RoleName) {
		writeServiceError(w, http.StatusBadRequest, "Cannot delete default roles", nil)
		return
	}
	s.dir.DeleteRole(body.RoleName)
	s.logger.Info("role deleted", "role", body.RoleName, "by", liveUser(r).Username)
	writeMessage(w, fmt.Sprintf("Role %s deleted", body.RoleName))
}

func (s *Sandbox) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	users := s.dir.Users()
	out := make([]api.UserRecord, 0, len(users))
	for _, u := range users {
		out = append(out, api.UserRecord{
			Username: u.Username,
			Email:    u.Email,
			Phone:    u.Phone,
			Role:     u.CustomRole,
			Groups:   u.Groups,
			Enabled:  u.Enabled,
			Status:   u.Status(),
			Created:  u.Created.Format(time.RFC3339),
		})
	}
	writeServiceJSON(w, http.StatusOK, map[string]any{"users": out})
}

type usernameBody struct {
	Username string `json:"username" validate:"required"`
}

func (s *Sandbox) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var body usernameBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	if !s.dir.Delete(body.Username) {
		writeServiceError(w, http.StatusNotFound, "User does not exist.", nil)
		return
	}
	s.logger.Info("user deleted", "username", body.Username, "by", liveUser(r).Username)
	writeMessage(w, "User deleted")
}

type setRoleBody struct {
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

func (s *Sandbox) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	var body setRoleBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	if _, ok := s.dir.User(body.Username); !ok {
		writeServiceError(w, http.StatusNotFound, "User does not exist.", nil)
		return
	}
	if !s.dir.GroupExists(body.Role) {
		writeServiceError(w, http.StatusBadRequest, fmt.Sprintf("Role %s does not exist", body.Role), nil)
		return
	}
	s.dir.AssignRole(body.Username, body.Role)
	s.logger.Info("user role changed", "username", body.Username, "role", body.Role, "by", liveUser(r).Username)
	writeMessage(w, "Role updated to "+body.Role)
}

type blockBody struct {
	Username string `json:"username" validate:"required"`
	Block    bool   `json:"block"`
}

func (s *Sandbox) handleBlockUser(w http.ResponseWriter, r *http.Request) {
	var body blockBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	found := s.dir.Update(body.Username, func(u *User) {
		u.Enabled = !body.Block
	})
	if !found {
		writeServiceError(w, http.StatusNotFound, "User does not exist.", nil)
		return
	}
	if body.Block {
		writeMessage(w, "User blocked")
		return
	}
	writeMessage(w, "User unblocked")
}

func (s *Sandbox) handleListHistory(w http.ResponseWriter, _ *http.Request) {
	entries := s.dir.History("", 0)
	out := make([]api.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, api.HistoryEntry{
			UserID:    e.UserID,
			Operand1:  api.Number(e.Operand1),
			Operand2:  api.Number(e.Operand2),
			Operation: e.Operation,
			Result:    api.Number(e.Result),
			Timestamp: e.Timestamp,
		})
	}
	writeServiceJSON(w, http.StatusOK, map[string]any{"history": out})
}

type historyKeyBody struct {
	UserID    string `json:"userId" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
}

func (s *Sandbox) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	var body historyKeyBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	if !s.dir.DeleteHistory(body.UserID, body.Timestamp) {
		writeServiceError(w, http.StatusNotFound, "History entry not found", nil)
		return
	}
	writeMessage(w, "History entry deleted")
}
