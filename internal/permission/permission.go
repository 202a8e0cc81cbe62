// Package permission decides which roles may perform which actions on resources.
package permission

import "github.com/Baaaki/resource-hub/internal/models"

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists every action the gate knows about.
var Actions = []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete}

// Check reports whether role may perform action. Unknown roles and unknown
// actions are always denied.
func Check(role models.Role, action Action) bool {
	switch action {
	case ActionRead:
		switch role {
		case models.RoleAdmin, models.RoleStaff, models.RoleUser:
			return true
		}
	case ActionCreate, ActionUpdate, ActionDelete:
		switch role {
		case models.RoleAdmin, models.RoleStaff:
			return true
		}
	}
	return false
}
