package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-board-api/internal/models"
)

func notice(id string, category models.NoticeCategory, pinned bool, createdAt time.Time) models.Notice {
	return models.Notice{
		ID:        id,
		Title:     "Notice " + id,
		Category:  category,
		IsPinned:  pinned,
		CreatedAt: createdAt,
	}
}

func TestVisibleStaffHiddenFromStudents(t *testing.T) {
	staff := notice("1", models.CategoryStaff, false, time.Now())

	assert.False(t, Visible(staff, models.RoleStudent))
	assert.True(t, Visible(staff, models.RoleTeacher))
	assert.True(t, Visible(staff, models.RoleAdmin))
}

func TestVisibleNonStaffVisibleToEveryone(t *testing.T) {
	for _, category := range models.NoticeCategories {
		if category == models.CategoryStaff {
			continue
		}
		n := notice("1", category, false, time.Now())
		for _, role := range []models.UserRole{models.RoleStudent, models.RoleTeacher, models.RoleAdmin} {
			assert.True(t, Visible(n, role), "category %s role %s", category, role)
		}
	}
}

func TestVisibleUnknownRoleFailsSafe(t *testing.T) {
	staff := notice("1", models.CategoryStaff, false, time.Now())
	exam := notice("2", models.CategoryExam, false, time.Now())

	assert.False(t, Visible(staff, models.UserRole("GUEST")))
	assert.True(t, Visible(exam, models.UserRole("GUEST")))
}

func TestVisibleIgnoresVisibleToField(t *testing.T) {
	n := notice("1", models.CategoryExam, false, time.Now())
	n.VisibleTo = []string{"teacher"}

	// visible_to is stored but never enforced.
	assert.True(t, Visible(n, models.RoleStudent))
}

func TestFilterVisiblePreservesBaseOrder(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := []models.Notice{
		notice("2", models.CategoryExam, true, t0.Add(-time.Hour)),
		notice("1", models.CategoryStaff, false, t0),
		notice("3", models.CategoryEvents, false, t0.Add(-2*time.Hour)),
	}

	student := FilterVisible(snapshot, models.RoleStudent)
	require.Len(t, student, 2)
	assert.Equal(t, "2", student[0].ID)
	assert.Equal(t, "3", student[1].ID)

	admin := FilterVisible(snapshot, models.RoleAdmin)
	require.Len(t, admin, 3)
	assert.Equal(t, "2", admin[0].ID)
	assert.Equal(t, "1", admin[1].ID)
}
