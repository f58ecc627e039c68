package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/session"
	"github.com/louisbranch/coursereg/internal/services/registration/engine"
)

type createSessionRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Term      string `json:"term" binding:"required"`
}

type courseRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	Units    int    `json:"units"`
}

type addCoursesRequest struct {
	Courses []courseRequest `json:"courses" binding:"required,dive"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &session.InvalidCommandError{Reason: err.Error()})
		return
	}
	student, err := ids.ParseStudentID(req.StudentID)
	if err != nil {
		respondError(c, err)
		return
	}
	term, err := ids.ParseTerm(req.Term)
	if err != nil {
		respondError(c, err)
		return
	}
	id, err := s.commands.CreateSession(c.Request.Context(), engine.CreateSessionCommand{StudentID: student, Term: term})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", "/v1/sessions/"+string(id))
	c.JSON(http.StatusCreated, sessionIDResponse{SessionID: string(id)})
}

func (s *Server) addCourses(c *gin.Context) {
	sessionID, err := ids.ParseSessionID(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req addCoursesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &session.InvalidCommandError{Reason: err.Error()})
		return
	}
	courses := make([]engine.CourseInput, 0, len(req.Courses))
	for _, cr := range req.Courses {
		courseID, err := ids.ParseCourseID(cr.CourseID)
		if err != nil {
			respondError(c, err)
			return
		}
		courses = append(courses, engine.CourseInput{CourseID: courseID, Units: cr.Units})
	}
	id, err := s.commands.AddCourses(c.Request.Context(), engine.AddCoursesCommand{SessionID: sessionID, Courses: courses})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionIDResponse{SessionID: string(id)})
}

func (s *Server) getSession(c *gin.Context) {
	sessionID, err := ids.ParseSessionID(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	state, err := s.sessions.FindByID(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(state))
}

func (s *Server) getSessionByStudentAndTerm(c *gin.Context) {
	student, err := ids.ParseStudentID(c.Param("student_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	term, err := ids.ParseTerm(c.Param("term"))
	if err != nil {
		respondError(c, err)
		return
	}
	state, err := s.sessions.FindByStudentAndTerm(c.Request.Context(), student, term)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(state))
}

// listEnrollments reads the projection, which may lag the event store.
func (s *Server) listEnrollments(c *gin.Context) {
	sessionID, err := ids.ParseSessionID(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := []enrollmentResponse{}
	if s.enrollments != nil {
		for _, e := range s.enrollments.ListBySession(sessionID) {
			out = append(out, newEnrollmentResponse(e))
		}
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": out})
}

func (s *Server) listStudentEnrollments(c *gin.Context) {
	student, err := ids.ParseStudentID(c.Param("student_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	term, err := ids.ParseTerm(c.Param("term"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := []enrollmentResponse{}
	if s.enrollments != nil {
		for _, e := range s.enrollments.ListByStudentAndTerm(student, term) {
			out = append(out, newEnrollmentResponse(e))
		}
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": out})
}
