package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/louisbranch/coursereg/internal/platform/telemetry/metrics"
	"github.com/louisbranch/coursereg/internal/services/registration/bus"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/session"
	"github.com/louisbranch/coursereg/internal/services/registration/engine"
	"github.com/louisbranch/coursereg/internal/services/registration/projection"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
	"github.com/louisbranch/coursereg/internal/services/registration/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router http.Handler
	store  *memory.Store
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	store := memory.New()
	repo := engine.Repository{Store: store}
	events := bus.NewMemory(nil)
	enrollments := projection.NewEnrollments()
	events.Subscribe(enrollments.Handle)
	handler := engine.Handler{
		Sessions: repo,
		Store:    store,
		Bus:      events,
		Now:      func() time.Time { return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC) },
	}
	srv := NewServer(Config{
		Commands:    handler,
		Sessions:    repo,
		Enrollments: enrollments,
		Metrics:     metrics.New(),
	})
	return testServer{router: srv.Router(), store: store}
}

func (s testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRegistrationFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/sessions", `{"student_id":"S12345678","term":"2024-Spring"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[sessionIDResponse](t, rec)
	if created.SessionID != "S12345678:2024-Spring" {
		t.Fatalf("session id = %q", created.SessionID)
	}
	if got := rec.Header().Get("Location"); got != "/v1/sessions/S12345678:2024-Spring" {
		t.Fatalf("location = %q", got)
	}

	rec = s.do(t, http.MethodPost, "/v1/sessions/S12345678:2024-Spring/courses",
		`{"courses":[{"course_id":"C100000","units":3},{"course_id":"C200000","units":4}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/v1/sessions/S12345678:2024-Spring", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", rec.Code, rec.Body.String())
	}
	state := decode[sessionResponse](t, rec)
	if state.TotalUnits != 7 || len(state.Enrollments) != 2 || state.Status != "Draft" || state.Version != 2 {
		t.Fatalf("session = %+v", state)
	}

	rec = s.do(t, http.MethodGet, "/v1/students/S12345678/terms/2024-Spring/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get by key status = %d", rec.Code)
	}
	if byKey := decode[sessionResponse](t, rec); byKey.SessionID != state.SessionID || byKey.TotalUnits != 7 {
		t.Fatalf("session by key = %+v", byKey)
	}

	rec = s.do(t, http.MethodGet, "/v1/sessions/S12345678:2024-Spring/enrollments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("enrollments status = %d", rec.Code)
	}
	list := decode[struct {
		Enrollments []enrollmentResponse `json:"enrollments"`
	}](t, rec)
	if len(list.Enrollments) != 2 || list.Enrollments[0].Status != "Requested" {
		t.Fatalf("enrollments = %+v", list.Enrollments)
	}

	rec = s.do(t, http.MethodGet, "/v1/students/S12345678/terms/2024-Spring/enrollments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("student enrollments status = %d", rec.Code)
	}
	byStudent := decode[struct {
		Enrollments []enrollmentResponse `json:"enrollments"`
	}](t, rec)
	if len(byStudent.Enrollments) != 2 || byStudent.Enrollments[0].CourseID != "C100000" || byStudent.Enrollments[1].CourseID != "C200000" {
		t.Fatalf("student enrollments = %+v", byStudent.Enrollments)
	}
	rec = s.do(t, http.MethodGet, "/v1/students/S12345678/terms/2024-Fall/enrollments", "")
	if rec.Code != http.StatusOK || rec.Body.String() != `{"enrollments":[]}` {
		t.Fatalf("other term = %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodGet, "/v1/students/X1/terms/2024-Fall/enrollments", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad student status = %d, want 400", rec.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/v1/sessions", `{"student_id":"S12345678","term":"2024-Spring"}`)
	s.do(t, http.MethodPost, "/v1/sessions/S12345678:2024-Spring/courses", `{"courses":[{"course_id":"C100000","units":3},{"course_id":"C200000","units":4}]}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"duplicate create", http.MethodPost, "/v1/sessions", `{"student_id":"S12345678","term":"2024-Spring"}`, http.StatusConflict, "SESSION_ALREADY_EXISTS"},
		{"bad student", http.MethodPost, "/v1/sessions", `{"student_id":"X1","term":"2024-Spring"}`, http.StatusBadRequest, "STUDENT_ID_INVALID"},
		{"bad term", http.MethodPost, "/v1/sessions", `{"student_id":"S12345678","term":"2024-Winter"}`, http.StatusBadRequest, "TERM_INVALID"},
		{"malformed body", http.MethodPost, "/v1/sessions", `{`, http.StatusBadRequest, "COMMAND_INVALID"},
		{"missing session", http.MethodGet, "/v1/sessions/S87654321:2024-Fall", "", http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"bad session id", http.MethodGet, "/v1/sessions/nope", "", http.StatusBadRequest, "SESSION_ID_INVALID"},
		{"duplicate course", http.MethodPost, "/v1/sessions/S12345678:2024-Spring/courses", `{"courses":[{"course_id":"C100000","units":1}]}`, http.StatusConflict, "SESSION_DUPLICATE_COURSE"},
		{"max units", http.MethodPost, "/v1/sessions/S12345678:2024-Spring/courses", `{"courses":[{"course_id":"C300000","units":10},{"course_id":"C400000","units":11}]}`, http.StatusUnprocessableEntity, "SESSION_MAX_UNITS_EXCEEDED"},
		{"empty courses", http.MethodPost, "/v1/sessions/S12345678:2024-Spring/courses", `{"courses":[]}`, http.StatusBadRequest, "COMMAND_INVALID"},
		{"course above ceiling", http.MethodPost, "/v1/sessions/S12345678:2024-Spring/courses", `{"courses":[{"course_id":"C300000","units":21}]}`, http.StatusBadRequest, "COMMAND_INVALID"},
		{"overflowing units", http.MethodPost, "/v1/sessions/S12345678:2024-Spring/courses", `{"courses":[{"course_id":"C300000","units":9223372036854775807},{"course_id":"C400000","units":9223372036854775807}]}`, http.StatusBadRequest, "COMMAND_INVALID"},
		{"bad course", http.MethodPost, "/v1/sessions/S12345678:2024-Spring/courses", `{"courses":[{"course_id":"C1","units":1}]}`, http.StatusBadRequest, "COURSE_ID_INVALID"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.status, rec.Body.String())
			}
			body := decode[ErrorBody](t, rec)
			if body.Code != tc.code {
				t.Fatalf("code = %q, want %q", body.Code, tc.code)
			}
			if body.Retryable {
				t.Fatal("business errors must not be retryable")
			}
			if body.Message == "" {
				t.Fatal("expected message")
			}
		})
	}
}

func TestErrorMessageIsLocalized(t *testing.T) {
	s := newTestServer(t)
	en := s.do(t, http.MethodGet, "/v1/sessions/S87654321:2024-Fall", "")
	ja := s.do(t, http.MethodGet, "/v1/sessions/S87654321:2024-Fall", "", "Accept-Language", "ja-JP,ja;q=0.9")

	if got := ja.Header().Get("Content-Language"); got != "ja-JP" {
		t.Fatalf("content language = %q, want ja-JP", got)
	}
	enBody, jaBody := decode[ErrorBody](t, en), decode[ErrorBody](t, ja)
	if enBody.Code != jaBody.Code {
		t.Fatalf("codes differ: %s vs %s", enBody.Code, jaBody.Code)
	}
	if enBody.Message == jaBody.Message {
		t.Fatalf("message not localized: %q", jaBody.Message)
	}
	if !strings.Contains(enBody.Message, "S87654321:2024-Fall") {
		t.Fatalf("message = %q, want session id", enBody.Message)
	}
}

type stubCommands struct {
	err error
}

func (s stubCommands) CreateSession(context.Context, engine.CreateSessionCommand) (ids.SessionID, error) {
	return "", s.err
}

func (s stubCommands) AddCourses(context.Context, engine.AddCoursesCommand) (ids.SessionID, error) {
	return "", s.err
}

type stubSessions struct {
	err error
}

func (s stubSessions) FindByID(context.Context, ids.SessionID) (session.State, error) {
	return session.State{}, s.err
}

func (s stubSessions) FindByStudentAndTerm(context.Context, ids.StudentID, ids.Term) (session.State, error) {
	return session.State{}, s.err
}

func TestInfrastructureErrorsAreDistinguished(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{
			name:      "store failure",
			err:       storage.Wrap(storage.OpList, event.AggregateTypeRegistrationSession, "S12345678:2024-Spring", errors.New("timeout")),
			status:    http.StatusServiceUnavailable,
			code:      "EVENT_STORE_FAILURE",
			retryable: true,
		},
		{
			name:   "corrupted stream",
			err:    &session.ReconstructionError{SessionID: "S12345678:2024-Spring", Reason: "bad", EventCount: 1},
			status: http.StatusInternalServerError,
			code:   "RECONSTRUCTION_FAILED",
		},
		{
			name:      "concurrency conflict",
			err:       &session.ConcurrencyConflictError{SessionID: "S12345678:2024-Spring", ExpectedVersion: 2},
			status:    http.StatusConflict,
			code:      "SESSION_CONCURRENCY_CONFLICT",
			retryable: true,
		},
		{
			name:   "unknown",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "UNKNOWN",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(Config{Commands: stubCommands{err: tc.err}, Sessions: stubSessions{err: tc.err}})
			router := srv.Router()

			for _, req := range []*http.Request{
				httptest.NewRequest(http.MethodGet, "/v1/sessions/S12345678:2024-Spring", nil),
				httptest.NewRequest(http.MethodPost, "/v1/sessions/S12345678:2024-Spring/courses", strings.NewReader(`{"courses":[{"course_id":"C100000","units":3}]}`)),
			} {
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, req)
				if rec.Code != tc.status {
					t.Fatalf("%s status = %d, want %d", req.URL.Path, rec.Code, tc.status)
				}
				body := decode[ErrorBody](t, rec)
				if body.Code != tc.code || body.Retryable != tc.retryable {
					t.Fatalf("%s body = %+v, want code %s retryable %v", req.URL.Path, body, tc.code, tc.retryable)
				}
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Fatal("expected request id header")
	}

	s.do(t, http.MethodPost, "/v1/sessions", `{"student_id":"S12345678","term":"2024-Spring"}`)
	rec = s.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `coursereg_http_requests_total{method="POST",path="/v1/sessions",status="201"} 1`) {
		t.Fatalf("metrics missing request counter:\n%s", rec.Body.String())
	}
}

func TestMetricsUnavailableWithoutRecorder(t *testing.T) {
	srv := NewServer(Config{Commands: stubCommands{}, Sessions: stubSessions{}})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
