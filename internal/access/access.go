// Package access is the single place where read, write and governance
// permissions are decided. Every predicate is pure and total: unknown roles,
// empty subjects and invalid levels all deny.
package access

import (
	"github.com/noah-isme/arc-docs-api/internal/models"
)

// NewSubject resolves an actor against its directory assignments. The
// directory decides department scope; non-empty role claims can only narrow
// the active assignments.
func NewSubject(actor models.Actor, assignments []models.RoleAssignment) models.Subject {
	subject := models.Subject{UserID: actor.UserID}
	if actor.UserID == "" {
		return subject
	}
	claimed := make(map[models.Role]struct{}, len(actor.Roles))
	for _, role := range actor.Roles {
		claimed[role] = struct{}{}
	}
	for _, a := range assignments {
		if a.UserID != actor.UserID || !a.Role.Valid() {
			continue
		}
		if len(claimed) > 0 {
			if _, ok := claimed[a.Role]; !ok {
				continue
			}
		}
		subject.Assignments = append(subject.Assignments, a)
	}
	return subject
}

func isOwner(s models.Subject, doc models.Document) bool {
	return s.UserID != "" && doc.OwnerUserID == s.UserID
}

func anyAssignment(s models.Subject, pred func(models.RoleAssignment) bool) bool {
	for _, a := range s.Assignments {
		if pred(a) {
			return true
		}
	}
	return false
}

// CanRead: owner, anyone holding a role in the document's department, or a
// global-visibility role.
func CanRead(s models.Subject, doc models.Document) bool {
	if isOwner(s, doc) {
		return true
	}
	return anyAssignment(s, func(a models.RoleAssignment) bool {
		return a.Role.CanSeeAllDepartments() || (a.Role.Valid() && a.InDepartment(doc.DepartmentID))
	})
}

// CanWrite: owner while draft, a department-scoped elevated role inside its
// department, or the administrative role unconditionally.
func CanWrite(s models.Subject, doc models.Document) bool {
	if s.UserID == "" {
		return false
	}
	if anyAssignment(s, func(a models.RoleAssignment) bool { return a.Role.CanWriteAny() }) {
		return true
	}
	if isOwner(s, doc) && doc.Status == models.DocumentStatusDraft {
		return true
	}
	return anyAssignment(s, func(a models.RoleAssignment) bool {
		return a.Role.CanWriteDepartment() && a.InDepartment(doc.DepartmentID)
	})
}

// CanDelete is strictly narrower than CanWrite: admin, or the owner of a draft.
// Auditors never delete.
func CanDelete(s models.Subject, doc models.Document) bool {
	if s.UserID == "" {
		return false
	}
	if anyAssignment(s, func(a models.RoleAssignment) bool { return a.Role.CanDelete() }) {
		return true
	}
	if s.HasRole(models.RoleAuditor) {
		return false
	}
	return isOwner(s, doc) && doc.Status == models.DocumentStatusDraft
}

// CanCreate reports whether the subject may author documents (and allocate
// numbers) for the department.
func CanCreate(s models.Subject, departmentID string) bool {
	if s.UserID == "" || departmentID == "" {
		return false
	}
	return anyAssignment(s, func(a models.RoleAssignment) bool {
		return a.Role.CanCreateAnywhere() || (a.Role.CreatesInDepartment() && a.InDepartment(departmentID))
	})
}

// EligibleApprover reports whether a single assignment carries approval
// authority for a document at level in departmentID.
func EligibleApprover(a models.RoleAssignment, level int, departmentID string) bool {
	if !a.Role.CanApprove(level) {
		return false
	}
	if a.Role.ApprovalIsScoped() {
		return a.InDepartment(departmentID)
	}
	return true
}

// CanApprove reports whether any of the subject's assignments can approve at level.
func CanApprove(s models.Subject, level int, departmentID string) bool {
	if s.UserID == "" {
		return false
	}
	return anyAssignment(s, func(a models.RoleAssignment) bool {
		return EligibleApprover(a, level, departmentID)
	})
}

// CanSubmit: the owner, or a subject authorised to approve at the document's level.
func CanSubmit(s models.Subject, doc models.Document) bool {
	return isOwner(s, doc) || CanApprove(s, doc.Level, doc.DepartmentID)
}

// CanWithdraw: only the owner pulls a pending document back to draft.
func CanWithdraw(s models.Subject, doc models.Document) bool {
	return isOwner(s, doc)
}

// CanObsolete requires obsolescence authority (quality manager or admin tier).
func CanObsolete(s models.Subject, _ models.Document) bool {
	if s.UserID == "" {
		return false
	}
	return anyAssignment(s, func(a models.RoleAssignment) bool { return a.Role.CanObsolete() })
}

// CanQueryAudit reports whether the subject may read other actors' audit entries.
func CanQueryAudit(s models.Subject) bool {
	if s.UserID == "" {
		return false
	}
	return anyAssignment(s, func(a models.RoleAssignment) bool { return a.Role.CanQueryAudit() })
}

// CanManageDirectory gates department and role assignment changes.
func CanManageDirectory(s models.Subject) bool {
	if s.UserID == "" {
		return false
	}
	return anyAssignment(s, func(a models.RoleAssignment) bool { return a.Role.CanManageDirectory() })
}

// VisibilityFor expresses CanRead as a listing filter.
func VisibilityFor(s models.Subject) models.Visibility {
	if anyAssignment(s, func(a models.RoleAssignment) bool { return a.Role.CanSeeAllDepartments() }) {
		return models.Visibility{All: true}
	}
	vis := models.Visibility{UserID: s.UserID}
	seen := make(map[string]struct{})
	for _, a := range s.Assignments {
		if a.DepartmentID == nil || !a.Role.Valid() {
			continue
		}
		if _, ok := seen[*a.DepartmentID]; ok {
			continue
		}
		seen[*a.DepartmentID] = struct{}{}
		vis.DepartmentIDs = append(vis.DepartmentIDs, *a.DepartmentID)
	}
	return vis
}

// Allows reports whether a visibility filter admits doc; it must agree with CanRead.
func Allows(v models.Visibility, doc models.Document) bool {
	if v.All {
		return true
	}
	if v.UserID != "" && doc.OwnerUserID == v.UserID {
		return true
	}
	for _, id := range v.DepartmentIDs {
		if id == doc.DepartmentID {
			return true
		}
	}
	return false
}
