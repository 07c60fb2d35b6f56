package service

import (
	"context"
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-board-api/internal/models"
	appErrors "github.com/noah-isme/campus-board-api/pkg/errors"
	"github.com/noah-isme/campus-board-api/pkg/storage"
)

type mockNoticeRepo struct {
	notices   map[string]*models.Notice
	snapshot  []models.Notice
	createErr error
	statsOut  *models.NoticeStats
	statsHits int
}

func (m *mockNoticeRepo) Snapshot(ctx context.Context) ([]models.Notice, error) {
	return m.snapshot, nil
}

func (m *mockNoticeRepo) GetByID(ctx context.Context, id string) (*models.Notice, error) {
	if n, ok := m.notices[id]; ok {
		copy := *n
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockNoticeRepo) Create(ctx context.Context, notice *models.Notice) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.notices == nil {
		m.notices = make(map[string]*models.Notice)
	}
	notice.ID = "generated"
	notice.CreatedAt = time.Now().UTC()
	copy := *notice
	m.notices[notice.ID] = &copy
	return nil
}

func (m *mockNoticeRepo) Update(ctx context.Context, notice *models.Notice) error {
	if _, ok := m.notices[notice.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *notice
	m.notices[notice.ID] = &copy
	return nil
}

func (m *mockNoticeRepo) Delete(ctx context.Context, id string) error {
	delete(m.notices, id)
	return nil
}

func (m *mockNoticeRepo) Stats(ctx context.Context) (*models.NoticeStats, error) {
	m.statsHits++
	return m.statsOut, nil
}

type mockCache struct {
	values  map[string][]byte
	deletes []string
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.deletes = append(m.deletes, key)
	return nil
}

type mockPublisher struct {
	changes int
}

func (m *mockPublisher) NoticesChanged(ctx context.Context) {
	m.changes++
}

type mockStore struct {
	saved   map[string]string
	saveErr error
}

func (m *mockStore) SaveStream(filename string, r io.Reader) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	data, _ := io.ReadAll(r)
	if m.saved == nil {
		m.saved = make(map[string]string)
	}
	m.saved[filename] = string(data)
	return filename, nil
}

func (m *mockStore) Open(filename string) (*os.File, error) {
	return nil, os.ErrNotExist
}

type mockAudit struct {
	logs []*models.AuditLog
}

func (m *mockAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func newNoticeService(repo *mockNoticeRepo, cache *mockCache, pub *mockPublisher, store *mockStore, audit *mockAudit) *NoticeService {
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewNoticeService(repo, cache, pub, store, signer, audit, validator.New(), zap.NewNop(), 5*time.Minute)
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher, DisplayName: "Prof. Rao"}
}

func validCreateRequest() CreateNoticeRequest {
	return CreateNoticeRequest{
		Title:       "Midterm schedule",
		Description: "The midterm examinations begin on Monday at nine sharp.",
		Category:    "exam",
	}
}

func TestCreateNoticeValidation(t *testing.T) {
	svc := newNoticeService(&mockNoticeRepo{}, &mockCache{}, &mockPublisher{}, &mockStore{}, &mockAudit{})

	cases := []struct {
		name   string
		mutate func(*CreateNoticeRequest)
	}{
		{"short title", func(r *CreateNoticeRequest) { r.Title = "Hey" }},
		{"short description", func(r *CreateNoticeRequest) { r.Description = "too short" }},
		{"unknown category", func(r *CreateNoticeRequest) { r.Category = "gossip" }},
		{"bad audience role", func(r *CreateNoticeRequest) { r.VisibleTo = []string{"janitor"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateRequest()
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), teacherClaims(), req, nil)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestCreateNoticePublishesAndAudits(t *testing.T) {
	repo := &mockNoticeRepo{}
	pub := &mockPublisher{}
	cache := &mockCache{}
	audit := &mockAudit{}
	svc := newNoticeService(repo, cache, pub, &mockStore{}, audit)

	n, err := svc.Create(context.Background(), teacherClaims(), validCreateRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "t-1", n.CreatedBy)
	assert.Equal(t, "Prof. Rao", n.CreatedByName)
	assert.True(t, n.IsApproved)
	assert.ElementsMatch(t, []string{"student", "teacher", "admin"}, []string(n.VisibleTo))
	assert.Equal(t, 1, pub.changes)
	assert.Contains(t, cache.deletes, statsCacheKey)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionNoticeCreate, audit.logs[0].Action)
}

func TestCreateNoticeWithAttachment(t *testing.T) {
	repo := &mockNoticeRepo{}
	store := &mockStore{}
	svc := newNoticeService(repo, &mockCache{}, &mockPublisher{}, store, &mockAudit{})

	upload := &Upload{
		Filename:    "timetable.pdf",
		ContentType: "application/pdf",
		Reader:      strings.NewReader("%PDF-1.4"),
	}
	n, err := svc.Create(context.Background(), teacherClaims(), validCreateRequest(), upload)
	require.NoError(t, err)
	require.NotNil(t, n.AttachmentURL)
	assert.Equal(t, "timetable.pdf", *n.AttachmentName)
	assert.Equal(t, models.AttachmentPDF, *n.AttachmentKind)
	assert.Contains(t, store.saved, *n.AttachmentURL)
}

func TestCreateNoticeOrphansUploadOnInsertFailure(t *testing.T) {
	repo := &mockNoticeRepo{createErr: sql.ErrConnDone}
	store := &mockStore{}
	svc := newNoticeService(repo, &mockCache{}, &mockPublisher{}, store, &mockAudit{})

	upload := &Upload{Filename: "poster.png", ContentType: "image/png", Reader: strings.NewReader("png")}
	_, err := svc.Create(context.Background(), teacherClaims(), validCreateRequest(), upload)
	require.Error(t, err)
	// Upload happened first and is not rolled back.
	assert.Len(t, store.saved, 1)
}

func TestUpdateNoticeAuthorization(t *testing.T) {
	existing := &models.Notice{ID: "n-1", Title: "Sports day", Description: strings.Repeat("d", 30), Category: models.CategorySports, CreatedBy: "t-1"}
	repo := &mockNoticeRepo{notices: map[string]*models.Notice{"n-1": existing}}
	svc := newNoticeService(repo, &mockCache{}, &mockPublisher{}, &mockStore{}, &mockAudit{})

	newTitle := "Sports day postponed"
	req := UpdateNoticeRequest{Title: &newTitle}

	t.Run("author teacher allowed", func(t *testing.T) {
		n, err := svc.Update(context.Background(), teacherClaims(), "n-1", req, nil)
		require.NoError(t, err)
		assert.Equal(t, newTitle, n.Title)
	})

	t.Run("other teacher forbidden", func(t *testing.T) {
		other := &models.JWTClaims{UserID: "t-2", Role: models.RoleTeacher}
		_, err := svc.Update(context.Background(), other, "n-1", req, nil)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	})

	t.Run("admin allowed", func(t *testing.T) {
		admin := &models.JWTClaims{UserID: "a-1", Role: models.RoleAdmin}
		_, err := svc.Update(context.Background(), admin, "n-1", req, nil)
		require.NoError(t, err)
	})

	t.Run("student forbidden", func(t *testing.T) {
		student := &models.JWTClaims{UserID: "s-1", Role: models.RoleStudent}
		_, err := svc.Update(context.Background(), student, "n-1", req, nil)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	})
}

func TestDeleteNoticeKeepsAttachment(t *testing.T) {
	object := "1700000000_abc.pdf"
	existing := &models.Notice{ID: "n-1", CreatedBy: "t-1", AttachmentURL: &object}
	repo := &mockNoticeRepo{notices: map[string]*models.Notice{"n-1": existing}}
	store := &mockStore{saved: map[string]string{object: "data"}}
	pub := &mockPublisher{}
	svc := newNoticeService(repo, &mockCache{}, pub, store, &mockAudit{})

	require.NoError(t, svc.Delete(context.Background(), teacherClaims(), "n-1"))
	_, ok := repo.notices["n-1"]
	assert.False(t, ok)
	// The stored object survives; only the sweep removes files.
	assert.Contains(t, store.saved, object)
	assert.Equal(t, 1, pub.changes)
}

func TestGetNoticeHidesStaffFromStudents(t *testing.T) {
	staff := &models.Notice{ID: "n-1", Category: models.CategoryStaff}
	repo := &mockNoticeRepo{notices: map[string]*models.Notice{"n-1": staff}}
	svc := newNoticeService(repo, &mockCache{}, &mockPublisher{}, &mockStore{}, &mockAudit{})

	_, err := svc.Get(context.Background(), "n-1", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	n, err := svc.Get(context.Background(), "n-1", models.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, "n-1", n.ID)
}

func TestListAppliesVisibilityAndFilters(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockNoticeRepo{snapshot: []models.Notice{
		{ID: "staff", Category: models.CategoryStaff, Title: "Staff meeting", CreatedAt: now},
		{ID: "fresh", Category: models.CategoryExam, Title: "Exam hall list", CreatedAt: now.Add(-time.Hour)},
		{ID: "stale", Category: models.CategoryExam, Title: "Old exam notice", CreatedAt: now.Add(-72 * time.Hour)},
	}}
	svc := newNoticeService(repo, &mockCache{}, &mockPublisher{}, &mockStore{}, &mockAudit{})

	items, err := svc.List(context.Background(), models.RoleStudent, ListNoticesRequest{Category: "exam"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "fresh", items[0].ID)
	assert.True(t, items[0].IsNew)
	assert.False(t, items[1].IsNew)
}

func TestStatsUsesCache(t *testing.T) {
	repo := &mockNoticeRepo{statsOut: &models.NoticeStats{Total: 3}}
	svc := newNoticeService(repo, &mockCache{}, &mockPublisher{}, &mockStore{}, &mockAudit{})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, repo.statsHits)
}

func TestExportCSVRespectsVisibility(t *testing.T) {
	repo := &mockNoticeRepo{snapshot: []models.Notice{
		{ID: "1", Title: "Staff only", Category: models.CategoryStaff, CreatedByName: "HR"},
		{ID: "2", Title: "Sports meet", Category: models.CategorySports, CreatedByName: "Coach"},
	}}
	svc := newNoticeService(repo, &mockCache{}, &mockPublisher{}, &mockStore{}, &mockAudit{})

	payload, contentType, filename, err := svc.Export(context.Background(), models.RoleStudent, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, strings.HasSuffix(filename, ".csv"))
	assert.Contains(t, string(payload), "Sports meet")
	assert.NotContains(t, string(payload), "Staff only")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := newNoticeService(&mockNoticeRepo{}, &mockCache{}, &mockPublisher{}, &mockStore{}, &mockAudit{})
	_, _, _, err := svc.Export(context.Background(), models.RoleAdmin, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttachmentTokenRoundTrip(t *testing.T) {
	object := "1700000000_abc.pdf"
	name := "syllabus.pdf"
	repo := &mockNoticeRepo{notices: map[string]*models.Notice{
		"n-1": {ID: "n-1", Category: models.CategoryExam, AttachmentURL: &object, AttachmentName: &name},
	}}
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewNoticeService(repo, &mockCache{}, &mockPublisher{}, &mockStore{}, signer, &mockAudit{}, validator.New(), zap.NewNop(), time.Minute)

	token, err := svc.AttachmentToken(context.Background(), "n-1", models.RoleStudent)
	require.NoError(t, err)

	noticeID, relPath, _, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "n-1", noticeID)
	assert.Equal(t, object, relPath)
}

func TestAttachmentTokenMissingAttachment(t *testing.T) {
	repo := &mockNoticeRepo{notices: map[string]*models.Notice{
		"n-1": {ID: "n-1", Category: models.CategoryExam},
	}}
	svc := newNoticeService(repo, &mockCache{}, &mockPublisher{}, &mockStore{}, &mockAudit{})

	_, err := svc.AttachmentToken(context.Background(), "n-1", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
