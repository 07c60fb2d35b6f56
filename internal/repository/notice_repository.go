package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-board-api/internal/models"
)

const noticeColumns = `id, title, description, category, department, visible_to, attachment_url, attachment_name, attachment_kind, created_by, created_by_name, is_pinned, is_approved, created_at, expiry_date`

// NoticeRepository provides persistence for notices.
type NoticeRepository struct {
	db *sqlx.DB
}

// NewNoticeRepository creates the repository.
func NewNoticeRepository(db *sqlx.DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// Snapshot returns the complete notice set in base feed order: pinned
// notices first, newest first within each pin tier. Expired notices are
// included; expiry is enforced by the user-filter layer, never here.
func (r *NoticeRepository) Snapshot(ctx context.Context) ([]models.Notice, error) {
	query := fmt.Sprintf(`SELECT %s FROM notices ORDER BY is_pinned DESC, created_at DESC`, noticeColumns)
	notices := []models.Notice{}
	if err := r.db.SelectContext(ctx, &notices, query); err != nil {
		return nil, fmt.Errorf("snapshot notices: %w", err)
	}
	return notices, nil
}

// GetByID returns a notice by identifier.
func (r *NoticeRepository) GetByID(ctx context.Context, id string) (*models.Notice, error) {
	query := fmt.Sprintf(`SELECT %s FROM notices WHERE id = $1`, noticeColumns)
	var n models.Notice
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		return nil, err
	}
	return &n, nil
}

// Create inserts a new notice. The creation timestamp is assigned here,
// not by the caller.
func (r *NoticeRepository) Create(ctx context.Context, notice *models.Notice) error {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO notices (id, title, description, category, department, visible_to, attachment_url, attachment_name, attachment_kind, created_by, created_by_name, is_pinned, is_approved, created_at, expiry_date)
VALUES (:id, :title, :description, :category, :department, :visible_to, :attachment_url, :attachment_name, :attachment_kind, :created_by, :created_by_name, :is_pinned, :is_approved, :created_at, :expiry_date)`
	if _, err := r.db.NamedExecContext(ctx, query, notice); err != nil {
		return fmt.Errorf("create notice: %w", err)
	}
	return nil
}

// Update modifies an existing notice. created_at and created_by are
// immutable once set.
func (r *NoticeRepository) Update(ctx context.Context, notice *models.Notice) error {
	query := `UPDATE notices SET title = :title, description = :description, category = :category, department = :department,
visible_to = :visible_to, attachment_url = :attachment_url, attachment_name = :attachment_name, attachment_kind = :attachment_kind,
is_pinned = :is_pinned, is_approved = :is_approved, expiry_date = :expiry_date
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, notice); err != nil {
		return fmt.Errorf("update notice: %w", err)
	}
	return nil
}

// Delete removes the notice record. The attachment object, if any, is left
// behind; see the uploads sweep.
func (r *NoticeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM notices WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete notice: %w", err)
	}
	return nil
}

// Stats scans the whole collection and aggregates counts per category.
func (r *NoticeRepository) Stats(ctx context.Context) (*models.NoticeStats, error) {
	rows := []struct {
		Category models.NoticeCategory `db:"category"`
		Count    int                   `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT category, COUNT(*) AS count FROM notices GROUP BY category`); err != nil {
		return nil, fmt.Errorf("aggregate notice stats: %w", err)
	}

	stats := &models.NoticeStats{ByCategory: make(map[models.NoticeCategory]int, len(models.NoticeCategories))}
	for _, category := range models.NoticeCategories {
		stats.ByCategory[category] = 0
	}
	for _, row := range rows {
		stats.ByCategory[row.Category] = row.Count
		stats.Total += row.Count
	}
	return stats, nil
}

// ReferencedAttachments returns the stored object names still referenced by
// a notice row. Everything else under the uploads directory is an orphan.
func (r *NoticeRepository) ReferencedAttachments(ctx context.Context) (map[string]struct{}, error) {
	var paths []string
	if err := r.db.SelectContext(ctx, &paths, `SELECT attachment_url FROM notices WHERE attachment_url IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("list referenced attachments: %w", err)
	}
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		out[p] = struct{}{}
	}
	return out, nil
}
