package models

import "strings"

// Role is the unified governance role used by every authorization decision.
type Role string

const (
	RoleInstructor     Role = "instructor"
	RoleDepartmentHead Role = "department_head"
	RoleQualityManager Role = "quality_manager"
	RoleAuditor        Role = "auditor"
	RoleAdmin          Role = "admin"
)

// capability describes what a role may do. Call sites ask the role, never compare names.
type capability struct {
	rank              int
	seeAllDepartments bool
	writeAny          bool
	writeDepartment   bool
	deleteAny         bool
	obsolete          bool
	queryAudit        bool
	approveFromLevel  int
	approveScoped     bool
	manageDirectory   bool
	createAnywhere    bool
}

var capabilities = map[Role]capability{
	RoleInstructor: {rank: 1},
	RoleDepartmentHead: {
		rank:             2,
		writeDepartment:  true,
		approveFromLevel: 2,
		approveScoped:    true,
	},
	RoleAuditor: {
		rank:              2,
		seeAllDepartments: true,
		queryAudit:        true,
	},
	RoleQualityManager: {
		rank:              3,
		seeAllDepartments: true,
		obsolete:          true,
		queryAudit:        true,
		approveFromLevel:  1,
		createAnywhere:    true,
	},
	RoleAdmin: {
		rank:              4,
		seeAllDepartments: true,
		writeAny:          true,
		deleteAny:         true,
		obsolete:          true,
		queryAudit:        true,
		approveFromLevel:  1,
		manageDirectory:   true,
		createAnywhere:    true,
	},
}

// ParseRole normalises a role claim. The legacy "faculty" name maps to instructor.
func ParseRole(raw string) (Role, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, "-", "_")
	if value == "faculty" {
		return RoleInstructor, true
	}
	role := Role(value)
	if _, ok := capabilities[role]; !ok {
		return "", false
	}
	return role, true
}

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

// Rank orders roles by authority; unknown roles rank zero.
func (r Role) Rank() int {
	return capabilities[r].rank
}

// CanApprove reports whether the role may approve documents at the given level.
// Scope (department) is checked separately via ApprovalIsScoped.
func (r Role) CanApprove(level int) bool {
	if !ValidLevel(level) {
		return false
	}
	from := capabilities[r].approveFromLevel
	return from > 0 && level >= from
}

// ApprovalIsScoped reports whether approval authority is limited to the assignment's department.
func (r Role) ApprovalIsScoped() bool {
	return capabilities[r].approveScoped
}

func (r Role) CanSeeAllDepartments() bool { return capabilities[r].seeAllDepartments }

func (r Role) CanWriteAny() bool { return capabilities[r].writeAny }

func (r Role) CanWriteDepartment() bool { return capabilities[r].writeDepartment }

func (r Role) CanDelete() bool { return capabilities[r].deleteAny }

func (r Role) CanObsolete() bool { return capabilities[r].obsolete }

func (r Role) CanQueryAudit() bool { return capabilities[r].queryAudit }

func (r Role) CanManageDirectory() bool { return capabilities[r].manageDirectory }

func (r Role) CanCreateAnywhere() bool { return capabilities[r].createAnywhere }

// CreatesInDepartment reports whether holding the role inside a department allows
// authoring documents there. Read-only roles never author.
func (r Role) CreatesInDepartment() bool {
	return r.Valid() && r != RoleAuditor
}

// ApproverRoles lists the roles that may approve at level, highest rank first.
func ApproverRoles(level int) []Role {
	var roles []Role
	for _, role := range []Role{RoleAdmin, RoleQualityManager, RoleDepartmentHead, RoleAuditor, RoleInstructor} {
		if role.CanApprove(level) {
			roles = append(roles, role)
		}
	}
	return roles
}

// ValidLevel reports whether level is a governance level (1 policy .. 4 form).
func ValidLevel(level int) bool {
	return level >= LevelPolicy && level <= LevelForm
}

const (
	LevelPolicy          = 1
	LevelProcedure       = 2
	LevelWorkInstruction = 3
	LevelForm            = 4
)
