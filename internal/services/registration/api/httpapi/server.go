// Package httpapi exposes registration commands and reads over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/louisbranch/coursereg/internal/platform/logging"
	"github.com/louisbranch/coursereg/internal/platform/telemetry/metrics"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/enrollment"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/session"
	"github.com/louisbranch/coursereg/internal/services/registration/engine"
)

// Commands runs registration commands.
type Commands interface {
	CreateSession(ctx context.Context, cmd engine.CreateSessionCommand) (ids.SessionID, error)
	AddCourses(ctx context.Context, cmd engine.AddCoursesCommand) (ids.SessionID, error)
}

// Sessions reads replayed session state.
type Sessions interface {
	FindByID(ctx context.Context, id ids.SessionID) (session.State, error)
	FindByStudentAndTerm(ctx context.Context, student ids.StudentID, term ids.Term) (session.State, error)
}

// Enrollments reads the enrollment projection.
type Enrollments interface {
	ListBySession(sessionID ids.SessionID) []enrollment.Enrollment
	ListByStudentAndTerm(student ids.StudentID, term ids.Term) []enrollment.Enrollment
}

// Config wires the server dependencies. Commands and Sessions are required.
type Config struct {
	ServiceName string
	Commands    Commands
	Sessions    Sessions
	Enrollments Enrollments
	Logger      *zap.Logger
	Metrics     *metrics.Recorder
}

// Server serves the registration API.
type Server struct {
	commands    Commands
	sessions    Sessions
	enrollments Enrollments
	logger      *zap.Logger
	metrics     *metrics.Recorder
	serviceName string
}

// NewServer builds a server from cfg.
func NewServer(cfg Config) *Server {
	name := cfg.ServiceName
	if name == "" {
		name = "registration"
	}
	return &Server{
		commands:    cfg.Commands,
		sessions:    cfg.Sessions,
		enrollments: cfg.Enrollments,
		logger:      logging.OrNop(cfg.Logger),
		metrics:     cfg.Metrics,
		serviceName: name,
	}
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.RequestID())
	r.Use(otelgin.Middleware(s.serviceName))
	r.Use(logging.GinMiddleware(s.logger))
	r.Use(s.observe())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", s.createSession)
		v1.GET("/sessions/:session_id", s.getSession)
		v1.POST("/sessions/:session_id/courses", s.addCourses)
		v1.GET("/sessions/:session_id/enrollments", s.listEnrollments)
		v1.GET("/students/:student_id/terms/:term/session", s.getSessionByStudentAndTerm)
		v1.GET("/students/:student_id/terms/:term/enrollments", s.listStudentEnrollments)
	}
	return r
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
