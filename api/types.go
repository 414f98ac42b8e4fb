package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/rolecalc/permission"
)

// Number decodes from either a JSON number or a numeric string.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*n = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*n = Number(f)
	return nil
}

func (n Number) Float64() float64 { return float64(n) }

func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

// CalculateRequest is the body of POST calculate.
type CalculateRequest struct {
	Operand1  float64              `json:"operand1"`
	Operand2  float64              `json:"operand2"`
	Operation permission.Operation `json:"operation"`
}

// HistoryEntry is one stored calculation. UserID is set only on admin listings.
type HistoryEntry struct {
	UserID    string               `json:"userId,omitempty"`
	Operand1  Number               `json:"operand1"`
	Operand2  Number               `json:"operand2"`
	Operation permission.Operation `json:"operation"`
	Result    Number               `json:"result"`
	Timestamp string               `json:"timestamp"`
}

// CalculateResponse is the success body of POST calculate.
type CalculateResponse struct {
	Result    Number         `json:"result"`
	History   []HistoryEntry `json:"history"`
	UserRoles []string       `json:"user_roles,omitempty"`
}

// RoleRecord is a role as listed by the admin service.
type RoleRecord struct {
	RoleName    string                 `json:"roleName"`
	Permissions []permission.Operation `json:"permissions"`
	IsDefault   bool                   `json:"isDefault"`
}

// UserRecord is a user as listed by the admin service.
type UserRecord struct {
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Role     string   `json:"role,omitempty"`
	Groups   []string `json:"groups"`
	Enabled  bool     `json:"enabled"`
	Status   string   `json:"status,omitempty"`
	Created  string   `json:"created,omitempty"`
}

// Contact returns the email, or the phone number when no email is set.
func (u UserRecord) Contact() string {
	if u.Email != "" {
		return u.Email
	}
	return u.Phone
}

type rolesResponse struct {
	Roles []RoleRecord `json:"roles"`
}

type usersResponse struct {
	Users []UserRecord `json:"users"`
}

type historyResponse struct {
	History []HistoryEntry `json:"history"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ErrorBody is the service failure body.
type ErrorBody struct {
	Error     string   `json:"error"`
	UserRoles []string `json:"user_roles,omitempty"`
}

type roleRequest struct {
	RoleName    string                 `json:"roleName"`
	Permissions []permission.Operation `json:"permissions,omitempty"`
}

type userRoleRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type blockRequest struct {
	Username string `json:"username"`
	Block    bool   `json:"block"`
}

type usernameRequest struct {
	Username string `json:"username"`
}

type historyKey struct {
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}
