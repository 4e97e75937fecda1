package domain

import (
	"encoding/json"
	"fmt"
)

// ============================================================
// Identity: user record and role enumeration
// ============================================================

// Role is the closed set of account roles recognised by KARDEX.
type Role string

const (
	RoleAdmin    Role = "ADMINISTRADOR"
	RoleVendor   Role = "VENDEDOR"
	RoleCustomer Role = "CLIENTE"

	// Legacy roles kept for accounts created before the portal redesign.
	RoleWarehouse  Role = "ALMACENERO"
	RoleAccountant Role = "CONTADOR"
)

// ParseRole validates a raw role string against the closed enumeration.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleVendor, RoleCustomer, RoleWarehouse, RoleAccountant:
		return Role(s), true
	}
	return "", false
}

// User is the identity record attached to a session. Field names match
// the JSON payload the KARDEX API emits.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"usuario"`
	Name     string `json:"nombre"`
	Email    string `json:"correo"`
	Phone    string `json:"telefono,omitempty"`
	Role     Role   `json:"rol"`
	Photo    string `json:"fotografia,omitempty"`
	Provider string `json:"proveedor,omitempty"`
}

// ParseUser decodes a JSON-encoded identity record (persisted storage
// entry or OAuth redirect payload) and validates its role.
func ParseUser(raw string) (*User, error) {
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, &ErrMalformedPayload{Reason: err.Error()}
	}
	if _, ok := ParseRole(string(u.Role)); !ok {
		return nil, &ErrMalformedPayload{Reason: fmt.Sprintf("unknown role %q", u.Role)}
	}
	return &u, nil
}
