package feed

import "github.com/noah-isme/campus-board-api/internal/models"

// Visible decides whether a notice may be shown to a viewer with the given
// role. The policy is role-only: no other viewer attribute participates.
// Admins and teachers see everything; students see everything except
// staff-category notices. An unrecognized role falls through to the student
// policy so it fails safe.
//
// The per-notice visible_to role set is intentionally not consulted here;
// see DESIGN.md.
func Visible(notice models.Notice, role models.UserRole) bool {
	switch role {
	case models.RoleAdmin, models.RoleTeacher:
		return true
	default:
		return notice.Category != models.CategoryStaff
	}
}

// FilterVisible returns the notices visible to the given role, preserving
// input order.
func FilterVisible(notices []models.Notice, role models.UserRole) []models.Notice {
	out := make([]models.Notice, 0, len(notices))
	for _, n := range notices {
		if Visible(n, role) {
			out = append(out, n)
		}
	}
	return out
}
