package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-board-api/internal/feed"
	"github.com/noah-isme/campus-board-api/internal/models"
)

type staticSource struct {
	notices []models.Notice
}

func (s *staticSource) Snapshot(ctx context.Context) ([]models.Notice, error) {
	return s.notices, nil
}

// closeNotifyRecorder adds the http.CloseNotifier method gin's Context.Stream
// requires of the underlying ResponseWriter; client disconnect is driven via
// the request context instead.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func TestFeedStreamDeliversInitialSnapshot(t *testing.T) {
	source := &staticSource{notices: []models.Notice{
		{ID: "staff-1", Category: models.CategoryStaff, CreatedAt: time.Now().UTC()},
		{ID: "exam-1", Category: models.CategoryExam, CreatedAt: time.Now().UTC()},
	}}
	hub := feed.NewHub(source, zap.NewNop())
	handler := NewFeedHandler(hub, time.Minute, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/feed", nil).WithContext(ctx)
	rec := &closeNotifyRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	c, _ := gin.CreateTestContext(rec)
	c.Request = req

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Stream(c)
	}()

	// Give the initial snapshot time to land, then disconnect the client.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate on client disconnect")
	}

	body := rec.Body.String()
	assert.Contains(t, body, "event:notices")
	assert.Contains(t, body, "exam-1")
	// Anonymous viewers read under the student policy.
	assert.NotContains(t, body, "staff-1")
	require.Equal(t, 0, hub.SubscriberCount())
}
