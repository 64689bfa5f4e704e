package entity

import (
	"fmt"
	"time"
)

// Role is the closed set of account roles
type Role int

const (
	RoleEmployee Role = iota + 1
	RoleManager
	RoleAdmin
)

// ParseRole converts the wire representation into a Role
func ParseRole(s string) (Role, error) {
	switch s {
	case "employee":
		return RoleEmployee, nil
	case "manager":
		return RoleManager, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role: %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleEmployee:
		return "employee"
	case RoleManager:
		return "manager"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// CanApprove reports whether holders of this role may vote on requests
func (r Role) CanApprove() bool {
	switch r {
	case RoleEmployee, RoleManager:
		return true
	case RoleAdmin:
		return false
	default:
		return false
	}
}

// CanManage reports whether holders of this role may be assigned as someone's manager
func (r Role) CanManage() bool {
	switch r {
	case RoleManager:
		return true
	case RoleEmployee, RoleAdmin:
		return false
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User is a directory entry
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	ManagerID  string    `json:"manager_id,omitempty"`
	LarkOpenID string    `json:"lark_open_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
