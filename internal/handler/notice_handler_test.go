package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-board-api/internal/middleware"
	"github.com/noah-isme/campus-board-api/internal/models"
	"github.com/noah-isme/campus-board-api/internal/service"
	appErrors "github.com/noah-isme/campus-board-api/pkg/errors"
	"github.com/noah-isme/campus-board-api/pkg/storage"
)

type fakeNoticeRepo struct {
	notices  map[string]*models.Notice
	snapshot []models.Notice
}

func (f *fakeNoticeRepo) Snapshot(ctx context.Context) ([]models.Notice, error) {
	return f.snapshot, nil
}

func (f *fakeNoticeRepo) GetByID(ctx context.Context, id string) (*models.Notice, error) {
	if n, ok := f.notices[id]; ok {
		copy := *n
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeNoticeRepo) Create(ctx context.Context, notice *models.Notice) error {
	if f.notices == nil {
		f.notices = make(map[string]*models.Notice)
	}
	notice.ID = "created-1"
	notice.CreatedAt = time.Now().UTC()
	copy := *notice
	f.notices[notice.ID] = &copy
	return nil
}

func (f *fakeNoticeRepo) Update(ctx context.Context, notice *models.Notice) error {
	copy := *notice
	f.notices[notice.ID] = &copy
	return nil
}

func (f *fakeNoticeRepo) Delete(ctx context.Context, id string) error {
	delete(f.notices, id)
	return nil
}

func (f *fakeNoticeRepo) Stats(ctx context.Context) (*models.NoticeStats, error) {
	return &models.NoticeStats{Total: len(f.snapshot)}, nil
}

type fakeCache struct{}

func (fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}
func (fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
func (fakeCache) Delete(ctx context.Context, key string) error { return nil }

type fakePublisher struct{ changes int }

func (f *fakePublisher) NoticesChanged(ctx context.Context) { f.changes++ }

type fakeAudit struct{}

func (fakeAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func newTestNoticeHandler(t *testing.T, repo *fakeNoticeRepo, pub *fakePublisher) *NoticeHandler {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("handler-test-secret", time.Hour)
	svc := service.NewNoticeService(repo, fakeCache{}, pub, store, signer, fakeAudit{}, validator.New(), zap.NewNop(), time.Minute)
	return NewNoticeHandler(svc, 10<<20)
}

func authedContext(t *testing.T, rec *httptest.ResponseRecorder, req *http.Request, role models.UserRole) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t-1", Role: role, DisplayName: "Prof. Rao"})
	return c
}

func TestNoticeListFiltersStaffForStudents(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeNoticeRepo{snapshot: []models.Notice{
		{ID: "s-1", Category: models.CategoryStaff, Title: "Staff meeting", CreatedAt: now},
		{ID: "e-1", Category: models.CategoryExam, Title: "Exam notice", CreatedAt: now},
	}}
	handler := newTestNoticeHandler(t, repo, &fakePublisher{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodGet, "/notices", nil), models.RoleStudent)
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "e-1", items[0]["id"])
	assert.Equal(t, float64(1), env.Meta["count"])
}

func TestNoticeListAnonymousGetsStudentPolicy(t *testing.T) {
	repo := &fakeNoticeRepo{snapshot: []models.Notice{
		{ID: "s-1", Category: models.CategoryStaff, CreatedAt: time.Now().UTC()},
	}}
	handler := newTestNoticeHandler(t, repo, &fakePublisher{})

	rec := httptest.NewRecorder()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/notices", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"s-1"`)
}

func TestNoticeListRejectsBadTimestamp(t *testing.T) {
	handler := newTestNoticeHandler(t, &fakeNoticeRepo{}, &fakePublisher{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodGet, "/notices?from=yesterday", nil), models.RoleAdmin)
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoticeCreateMultipartWithAttachment(t *testing.T) {
	repo := &fakeNoticeRepo{}
	pub := &fakePublisher{}
	handler := newTestNoticeHandler(t, repo, pub)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("title", "Annual sports day"))
	require.NoError(t, writer.WriteField("description", "The annual sports day will be held on the main ground."))
	require.NoError(t, writer.WriteField("category", "sports"))
	require.NoError(t, writer.WriteField("is_pinned", "true"))
	part, err := writer.CreateFormFile("attachment", "schedule.pdf")
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader("%PDF-1.4 schedule"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/notices", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	c := authedContext(t, rec, req, models.RoleTeacher)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := repo.notices["created-1"]
	require.NotNil(t, created)
	assert.True(t, created.IsPinned)
	require.NotNil(t, created.AttachmentName)
	assert.Equal(t, "schedule.pdf", *created.AttachmentName)
	assert.Equal(t, 1, pub.changes)
}

func TestNoticeCreateValidationError(t *testing.T) {
	handler := newTestNoticeHandler(t, &fakeNoticeRepo{}, &fakePublisher{})

	payload := `{"title":"Hey","description":"too short","category":"exam"}`
	req := httptest.NewRequest(http.MethodPost, "/notices", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := authedContext(t, rec, req, models.RoleTeacher)
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoticeCreateMultipartWithoutAttachment(t *testing.T) {
	repo := &fakeNoticeRepo{}
	handler := newTestNoticeHandler(t, repo, &fakePublisher{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("title", "Library hours"))
	require.NoError(t, writer.WriteField("description", "The library stays open until midnight during exams."))
	require.NoError(t, writer.WriteField("category", "office"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/notices", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	c := authedContext(t, rec, req, models.RoleTeacher)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := repo.notices["created-1"]
	require.NotNil(t, created)
	assert.Nil(t, created.AttachmentURL)
}

func TestNoticeUpdateRejectsMalformedMultipart(t *testing.T) {
	repo := &fakeNoticeRepo{notices: map[string]*models.Notice{
		"n-1": {ID: "n-1", CreatedBy: "t-1"},
	}}
	handler := newTestNoticeHandler(t, repo, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPut, "/notices/n-1", strings.NewReader("this is not a multipart body"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=deadbeef")
	rec := httptest.NewRecorder()
	c := authedContext(t, rec, req, models.RoleTeacher)
	c.Params = gin.Params{{Key: "id", Value: "n-1"}}
	handler.Update(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestNoticeDeleteForbiddenForOtherTeacher(t *testing.T) {
	repo := &fakeNoticeRepo{notices: map[string]*models.Notice{
		"n-1": {ID: "n-1", CreatedBy: "someone-else"},
	}}
	handler := newTestNoticeHandler(t, repo, &fakePublisher{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodDelete, "/notices/n-1", nil), models.RoleTeacher)
	c.Params = gin.Params{{Key: "id", Value: "n-1"}}
	handler.Delete(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	_, stillThere := repo.notices["n-1"]
	assert.True(t, stillThere)
}

func TestNoticeStats(t *testing.T) {
	repo := &fakeNoticeRepo{snapshot: []models.Notice{{ID: "1"}, {ID: "2"}}}
	handler := newTestNoticeHandler(t, repo, &fakePublisher{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodGet, "/notices/stats", nil), models.RoleAdmin)
	handler.Stats(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)
}

func TestNoticeExportCSV(t *testing.T) {
	repo := &fakeNoticeRepo{snapshot: []models.Notice{
		{ID: "1", Title: "Placement drive", Category: models.CategoryPlacement, CreatedAt: time.Now().UTC()},
	}}
	handler := newTestNoticeHandler(t, repo, &fakePublisher{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodGet, "/notices/export?format=csv", nil), models.RoleAdmin)
	handler.Export(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	assert.Contains(t, rec.Body.String(), "Placement drive")
}

func TestAttachmentLinkAndDownload(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	object := "1700000000_abcd1234.pdf"
	_, err = store.SaveStream(object, strings.NewReader("%PDF-1.4 contents"))
	require.NoError(t, err)

	name := "handbook.pdf"
	repo := &fakeNoticeRepo{notices: map[string]*models.Notice{
		"n-1": {ID: "n-1", Category: models.CategoryOffice, AttachmentURL: &object, AttachmentName: &name},
	}}
	signer := storage.NewSignedURLSigner("handler-test-secret", time.Hour)
	svc := service.NewNoticeService(repo, fakeCache{}, &fakePublisher{}, store, signer, fakeAudit{}, validator.New(), zap.NewNop(), time.Minute)
	handler := NewNoticeHandler(svc, 0)

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodGet, "/notices/n-1/attachment", nil), models.RoleStudent)
	c.Params = gin.Params{{Key: "id", Value: "n-1"}}
	handler.AttachmentLink(c)
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var link map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &link))
	require.NotEmpty(t, link["token"])

	dlRec := httptest.NewRecorder()
	dlCtx := authedContext(t, dlRec, httptest.NewRequest(http.MethodGet, "/attachments/"+link["token"], nil), models.RoleStudent)
	dlCtx.Params = gin.Params{{Key: "token", Value: link["token"]}}
	handler.DownloadAttachment(dlCtx)

	require.Equal(t, http.StatusOK, dlRec.Code)
	assert.Contains(t, dlRec.Header().Get("Content-Disposition"), "handbook.pdf")
	assert.Contains(t, dlRec.Body.String(), "%PDF-1.4 contents")
}

func TestDownloadAttachmentRejectsTamperedToken(t *testing.T) {
	handler := newTestNoticeHandler(t, &fakeNoticeRepo{}, &fakePublisher{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodGet, "/attachments/bogus", nil), models.RoleStudent)
	c.Params = gin.Params{{Key: "token", Value: "bogus.0.cGF0aA.deadbeef"}}
	handler.DownloadAttachment(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}
