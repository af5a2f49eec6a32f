package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/analytics"
	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/internal/platform/metrics"
	"github.com/example/course-platform/internal/progress"
	"github.com/example/course-platform/services/progress/internal/store"
	"github.com/example/course-platform/services/progress/internal/worker"
)

type recordResponse struct {
	Progress progress.Record `json:"progress"`
}

type listResponse struct {
	Progress []progress.Record `json:"progress"`
}

// Deps are the collaborators of the progress handlers.
type Deps struct {
	Repo   store.Repository
	Writes *WritePublisher
	Events *analytics.Publisher
	Log    *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// ListProgress handles GET /progress.
func ListProgress(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, api.CodeAuthMissing, "Missing auth", rid)
			return
		}

		limit := 25
		if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = min(max(n, 1), 100)
			}
		}

		recs, err := d.Repo.List(r.Context(), uid, limit)
		if err != nil {
			d.logger().Error("list progress", zap.String("request_id", rid), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		if recs == nil {
			recs = []progress.Record{}
		}
		api.WriteJSON(w, http.StatusOK, listResponse{Progress: recs})
	}
}

// GetProgress handles GET /progress/{courseId}.
func GetProgress(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, api.CodeAuthMissing, "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "courseId"))
		if !validCourseID(courseID) {
			api.BadRequest(w, api.CodeInvalidCourseID, "courseId is invalid", rid, nil)
			return
		}

		rec, err := d.Repo.GetOrCreate(r.Context(), uid, courseID)
		if err != nil {
			d.logger().Error("get progress", zap.String("request_id", rid), zap.String("course_id", courseID), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, recordResponse{Progress: rec})
	}
}

// PutProgress handles PUT /progress/{courseId}. The body is merged into the
// stored record field by field; see progress.Merge.
func PutProgress(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, api.CodeAuthMissing, "Missing auth", rid)
			return
		}
		courseID := strings.TrimSpace(chi.URLParam(r, "courseId"))
		if !validCourseID(courseID) {
			api.BadRequest(w, api.CodeInvalidCourseID, "courseId is invalid", rid, nil)
			return
		}

		var in progress.Record
		if !decodeJSON(w, r, rid, &in) {
			return
		}
		if in.CourseID != "" && in.CourseID != courseID {
			api.BadRequest(w, api.CodeCourseMismatch, "body courseId does not match path", rid, nil)
			return
		}
		if in.Status != "" && !in.Status.Valid() {
			api.BadRequest(w, api.CodeInvalidStatus, "status must be not-started, in-progress or completed", rid, nil)
			return
		}
		in.CourseID = courseID

		if d.Writes.Enabled() {
			eventID, err := d.Writes.PublishWrite(worker.WriteEvent{UserID: uid, CourseID: courseID, Record: in})
			if err != nil {
				d.logger().Warn("publish progress write", zap.String("request_id", rid), zap.Error(err))
				api.Unavailable(w, api.CodeEventPublishFailed, "failed to publish event", rid)
				return
			}
			metrics.ProgressWrites.WithLabelValues("async").Inc()
			w.Header().Set("X-Event-ID", eventID)
			w.WriteHeader(http.StatusAccepted)
			return
		}

		ch, err := d.Repo.Merge(r.Context(), uid, courseID, in)
		if err != nil {
			d.logger().Error("merge progress", zap.String("request_id", rid), zap.String("course_id", courseID), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		metrics.ProgressWrites.WithLabelValues("sync").Inc()
		PublishChange(d.Events, uid, ch)
		api.WriteJSON(w, http.StatusOK, recordResponse{Progress: ch.After})
	}
}

// PublishChange emits analytics events for a stored change.
func PublishChange(events *analytics.Publisher, userID string, ch store.Change) {
	props := map[string]any{
		"course_id": ch.After.CourseID,
		"progress":  ch.After.Progress,
		"status":    string(ch.After.Status),
	}
	events.Publish(analytics.SubjectProgressUpdated, "progress_updated", userID, props)
	if ch.Completed() {
		events.Publish(analytics.SubjectCourseCompleted, "course_completed", userID, props)
	}
}
