package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-board-api/internal/feed"
	"github.com/noah-isme/campus-board-api/internal/models"
	appErrors "github.com/noah-isme/campus-board-api/pkg/errors"
	"github.com/noah-isme/campus-board-api/pkg/export"
	"github.com/noah-isme/campus-board-api/pkg/storage"
)

const statsCacheKey = "notices:stats"

type noticeRepository interface {
	Snapshot(ctx context.Context) ([]models.Notice, error)
	GetByID(ctx context.Context, id string) (*models.Notice, error)
	Create(ctx context.Context, notice *models.Notice) error
	Update(ctx context.Context, notice *models.Notice) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.NoticeStats, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type changePublisher interface {
	NoticesChanged(ctx context.Context)
}

type attachmentStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
}

type attachmentSigner interface {
	Generate(noticeID, relPath string) (string, time.Time, error)
	Parse(token string) (noticeID, relPath string, expiresAt time.Time, err error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// NoticeService handles notice workflows: creation with attachment upload,
// edits, moderation, the filtered listing pipeline, statistics and export.
type NoticeService struct {
	repo      noticeRepository
	cache     statsCache
	publisher changePublisher
	store     attachmentStore
	signer    attachmentSigner
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger

	metrics  *MetricsService
	statsTTL time.Duration
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
}

// SetMetrics attaches cache hit/miss instrumentation. Optional.
func (s *NoticeService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// NewNoticeService constructs the service.
func NewNoticeService(repo noticeRepository, cache statsCache, publisher changePublisher, store attachmentStore, signer attachmentSigner, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, statsTTL time.Duration) *NoticeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NoticeService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		store:     store,
		signer:    signer,
		audit:     audit,
		validator: validate,
		logger:    logger,
		statsTTL:  statsTTL,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
	}
	svc.validator.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return models.ValidCategory(strings.ToLower(fl.Field().String()))
	})
	svc.validator.RegisterValidation("audiencerole", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "student", "teacher", "admin":
			return true
		default:
			return false
		}
	})
	return svc
}

// Upload carries a pending attachment stream from the transport layer.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// CreateNoticeRequest describes the create payload. Title and description
// length floors match what the posting form has always enforced.
type CreateNoticeRequest struct {
	Title       string     `json:"title" validate:"required,min=5"`
	Description string     `json:"description" validate:"required,min=20"`
	Category    string     `json:"category" validate:"required,category"`
	Department  *string    `json:"department"`
	VisibleTo   []string   `json:"visible_to" validate:"omitempty,dive,audiencerole"`
	IsPinned    bool       `json:"is_pinned"`
	ExpiryDate  *time.Time `json:"expiry_date"`
}

// UpdateNoticeRequest describes a partial update. Nil fields are untouched.
type UpdateNoticeRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=5"`
	Description *string    `json:"description" validate:"omitempty,min=20"`
	Category    *string    `json:"category" validate:"omitempty,category"`
	Department  *string    `json:"department"`
	VisibleTo   []string   `json:"visible_to" validate:"omitempty,dive,audiencerole"`
	IsPinned    *bool      `json:"is_pinned"`
	ExpiryDate  *time.Time `json:"expiry_date"`
	ClearExpiry bool       `json:"clear_expiry"`
}

// ListNoticesRequest carries the user-level filter parameters.
type ListNoticesRequest struct {
	Query      string
	Category   string
	Department string
	From       *time.Time
	Until      *time.Time
	Sort       string
}

// NoticeItem decorates a notice with the display-only freshness flag.
type NoticeItem struct {
	models.Notice
	IsNew bool `json:"is_new"`
}

// List returns the notices visible to the viewer role after user filters,
// expiry exclusion and ordering. The same pipeline backs the live feed; this
// is its request/response form.
func (s *NoticeService) List(ctx context.Context, role models.UserRole, req ListNoticesRequest) ([]NoticeItem, error) {
	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notices")
	}

	now := time.Now().UTC()
	visible := feed.FilterVisible(snapshot, role)
	filtered := feed.UserFilters{
		Query:      req.Query,
		Category:   req.Category,
		Department: req.Department,
		From:       req.From,
		Until:      req.Until,
		Sort:       feed.SortOrder(req.Sort),
	}.Apply(visible, now)

	items := make([]NoticeItem, len(filtered))
	for i, n := range filtered {
		items[i] = NoticeItem{Notice: n, IsNew: feed.IsNew(n, now)}
	}
	return items, nil
}

// Get returns a notice by id, enforcing visibility for the viewer role.
func (s *NoticeService) Get(ctx context.Context, id string, role models.UserRole) (*models.Notice, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get notice")
	}
	if !feed.Visible(*n, role) {
		// Invisible notices are indistinguishable from absent ones.
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
	}
	return n, nil
}

// Create registers a new notice, uploading the attachment first. If the
// insert fails after a successful upload the stored file is orphaned; the
// uploads sweep reclaims it when enabled.
func (s *NoticeService) Create(ctx context.Context, actor *models.JWTClaims, req CreateNoticeRequest, upload *Upload) (*models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notice payload")
	}

	notice := &models.Notice{
		Title:         req.Title,
		Description:   req.Description,
		Category:      models.NoticeCategory(strings.ToLower(req.Category)),
		Department:    normalizeDepartment(req.Department),
		VisibleTo:     req.VisibleTo,
		CreatedBy:     actor.UserID,
		CreatedByName: actor.DisplayName,
		IsPinned:      req.IsPinned,
		IsApproved:    true,
		ExpiryDate:    req.ExpiryDate,
	}
	if notice.VisibleTo == nil {
		notice.VisibleTo = []string{"student", "teacher", "admin"}
	}

	if upload != nil {
		if err := s.attach(notice, upload); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, notice); err != nil {
		if notice.AttachmentURL != nil {
			s.logger.Warn("notice insert failed after upload; attachment orphaned",
				zap.String("object", *notice.AttachmentURL), zap.Error(err))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notice")
	}

	s.recordAudit(ctx, actor, models.AuditActionNoticeCreate, notice.ID, notice)
	s.invalidateStats(ctx)
	s.publisher.NoticesChanged(ctx)
	return notice, nil
}

// Update modifies an existing notice. Admins may edit any notice; teachers
// only their own.
func (s *NoticeService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateNoticeRequest, upload *Upload) (*models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notice payload")
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notice")
	}
	if err := canModify(actor, existing); err != nil {
		return nil, err
	}

	if req.Title != nil {
		existing.Title = *req.Title
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.Category != nil {
		existing.Category = models.NoticeCategory(strings.ToLower(*req.Category))
	}
	if req.Department != nil {
		existing.Department = normalizeDepartment(req.Department)
	}
	if req.VisibleTo != nil {
		existing.VisibleTo = req.VisibleTo
	}
	if req.IsPinned != nil {
		existing.IsPinned = *req.IsPinned
	}
	if req.ClearExpiry {
		existing.ExpiryDate = nil
	} else if req.ExpiryDate != nil {
		existing.ExpiryDate = req.ExpiryDate
	}

	if upload != nil {
		// The previous attachment object, if any, stays on disk.
		if err := s.attach(existing, upload); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notice")
	}

	s.recordAudit(ctx, actor, models.AuditActionNoticeUpdate, existing.ID, existing)
	s.invalidateStats(ctx)
	s.publisher.NoticesChanged(ctx)
	return existing, nil
}

// Delete removes a notice record. The attachment object is intentionally
// not removed here; only the uploads sweep touches stored files.
func (s *NoticeService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notice")
	}
	if err := canModify(actor, existing); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notice")
	}

	s.recordAudit(ctx, actor, models.AuditActionNoticeDelete, id, existing)
	s.invalidateStats(ctx)
	s.publisher.NoticesChanged(ctx)
	return nil
}

// Stats returns the collection-wide aggregate, served from cache when fresh.
func (s *NoticeService) Stats(ctx context.Context) (*models.NoticeStats, error) {
	var cached models.NoticeStats
	if err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil {
		s.metrics.RecordCacheOperation(true)
		return &cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("stats cache read failed", zap.Error(err))
	}
	s.metrics.RecordCacheOperation(false)

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute stats")
	}
	if err := s.cache.Set(ctx, statsCacheKey, stats, s.statsTTL); err != nil {
		s.logger.Warn("stats cache write failed", zap.Error(err))
	}
	return stats, nil
}

// Export renders the viewer-visible notice set as CSV or PDF.
func (s *NoticeService) Export(ctx context.Context, role models.UserRole, format string) ([]byte, string, string, error) {
	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notices")
	}
	visible := feed.FilterVisible(snapshot, role)

	dataset := export.Dataset{
		Headers: []string{"Title", "Category", "Department", "Posted By", "Created At", "Pinned", "Expires"},
		Rows:    make([]map[string]string, 0, len(visible)),
	}
	for _, n := range visible {
		row := map[string]string{
			"Title":      n.Title,
			"Category":   string(n.Category),
			"Posted By":  n.CreatedByName,
			"Created At": n.CreatedAt.Format(time.RFC3339),
			"Pinned":     fmt.Sprintf("%t", n.IsPinned),
		}
		if n.Department != nil {
			row["Department"] = *n.Department
		}
		if n.ExpiryDate != nil {
			row["Expires"] = n.ExpiryDate.Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	stamp := time.Now().UTC().Format("20060102")
	switch strings.ToLower(format) {
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Notice Board")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", "notices_" + stamp + ".pdf", nil
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", "notices_" + stamp + ".csv", nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format: "+format)
	}
}

// AttachmentToken issues a signed download token for the notice's attachment.
func (s *NoticeService) AttachmentToken(ctx context.Context, id string, role models.UserRole) (string, error) {
	n, err := s.Get(ctx, id, role)
	if err != nil {
		return "", err
	}
	if n.AttachmentURL == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "notice has no attachment")
	}
	token, _, err := s.signer.Generate(n.ID, *n.AttachmentURL)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign attachment url")
	}
	return token, nil
}

// ResolveAttachment validates a download token and opens the stored object.
func (s *NoticeService) ResolveAttachment(ctx context.Context, token string) (*os.File, string, error) {
	noticeID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired attachment link")
	}

	name := relPath
	if n, err := s.repo.GetByID(ctx, noticeID); err == nil && n.AttachmentName != nil {
		name = *n.AttachmentName
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "attachment no longer available")
	}
	return file, name, nil
}

func (s *NoticeService) attach(notice *models.Notice, upload *Upload) error {
	objectName := storage.ObjectName(upload.Filename)
	if _, err := s.store.SaveStream(objectName, upload.Reader); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return appErrors.Wrap(err, appErrors.ErrBucketNotFound.Code, appErrors.ErrBucketNotFound.Status, appErrors.ErrBucketNotFound.Message)
		}
		return appErrors.Wrap(err, appErrors.ErrUploadFailed.Code, appErrors.ErrUploadFailed.Status, "attachment upload failed")
	}
	kind := models.AttachmentKind(storage.DetectKind(upload.ContentType, upload.Filename))
	notice.AttachmentURL = &objectName
	notice.AttachmentName = &upload.Filename
	notice.AttachmentKind = &kind
	return nil
}

func (s *NoticeService) invalidateStats(ctx context.Context) {
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func (s *NoticeService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "notices",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record notice audit log", zap.Error(err))
	}
}

func canModify(actor *models.JWTClaims, notice *models.Notice) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if notice.CreatedBy == actor.UserID {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "teachers may only modify their own notices")
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "students may not modify notices")
	}
}

func normalizeDepartment(dept *string) *string {
	if dept == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*dept)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
