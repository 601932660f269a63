package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/adaptiq/internal/generator"
	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/session"
)

// errNotOwned hides sessions of other learners.
var errNotOwned = &session.Error{Kind: session.KindSessionNotFound, Message: "session not found"}

type createSessionRequest struct {
	LearnerID          string `json:"learner_id"`
	SubjectID          string `json:"subject_id"`
	TopicID            string `json:"topic_id"`
	SubtopicID         string `json:"subtopic_id"`
	QuestionCount      int    `json:"question_count"`
	TimeLimitSeconds   int    `json:"time_limit_seconds"`
	StartingDifficulty string `json:"starting_difficulty"`
	Adaptive           bool   `json:"adaptive"`
}

type submitAnswerRequest struct {
	QuestionID       string `json:"question_id" binding:"required"`
	ChosenAnswer     string `json:"chosen_answer"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

type generateRequest struct {
	SubjectID  string `json:"subject_id"`
	TopicID    string `json:"topic_id"`
	SubtopicID string `json:"subtopic_id"`
	Difficulty string `json:"difficulty"`
	Count      int    `json:"count"`
	Save       bool   `json:"save"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	learner := c.GetHeader(LearnerHeader)
	if learner == "" {
		learner = req.LearnerID
	} else if req.LearnerID != "" && req.LearnerID != learner {
		writeError(c, &session.Error{Kind: session.KindValidation, Message: "learner_id does not match " + LearnerHeader})
		return
	}

	sess, err := s.engine.Create(c.Request.Context(), session.Config{
		LearnerID:          learner,
		SubjectID:          req.SubjectID,
		TopicID:            req.TopicID,
		SubtopicID:         req.SubtopicID,
		QuestionCount:      req.QuestionCount,
		TimeLimitSeconds:   req.TimeLimitSeconds,
		StartingDifficulty: question.Difficulty(req.StartingDifficulty),
		Adaptive:           req.Adaptive,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess.Public()})
}

// owned loads the session and checks the learner header. It writes the
// error response itself and returns nil on failure.
func (s *Server) owned(c *gin.Context) *session.Session {
	sess, err := s.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil
	}
	if learner := c.GetHeader(LearnerHeader); learner != "" && learner != sess.LearnerID {
		writeError(c, errNotOwned)
		return nil
	}
	return sess
}

func (s *Server) getSession(c *gin.Context) {
	sess := s.owned(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess.Public()})
}

func (s *Server) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	if s.owned(c) == nil {
		return
	}
	out, err := s.engine.SubmitAnswer(c.Request.Context(), c.Param("id"), req.QuestionID, req.ChosenAnswer, req.TimeSpentSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{"session": out.Session.Public()}
	if out.Result != nil {
		body["result"] = out.Result
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) pauseSession(c *gin.Context) {
	if s.owned(c) == nil {
		return
	}
	if err := s.engine.Pause(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) resumeSession(c *gin.Context) {
	if s.owned(c) == nil {
		return
	}
	sess, err := s.engine.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess.Public()})
}

func (s *Server) finalizeSession(c *gin.Context) {
	if s.owned(c) == nil {
		return
	}
	res, err := s.engine.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (s *Server) getResult(c *gin.Context) {
	res, err := s.engine.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if learner := c.GetHeader(LearnerHeader); learner != "" && learner != res.LearnerID {
		writeError(c, errNotOwned)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (s *Server) generateQuestions(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	d, err := question.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeBadRequest(c, err)
		return
	}
	genReq := generator.Request{
		Criteria:   question.Criteria{SubjectID: req.SubjectID, TopicID: req.TopicID, SubtopicID: req.SubtopicID},
		Difficulty: d,
		Count:      req.Count,
	}
	if err := genReq.Validate(); err != nil {
		writeBadRequest(c, err)
		return
	}

	qs, err := s.gen.Generate(c.Request.Context(), genReq)
	if err != nil {
		s.logger.Warn("question generation failed", "criteria", genReq.Criteria.String(), "error", err)
		c.JSON(http.StatusBadGateway, errorBody("GenerationFailed", "question generation failed"))
		return
	}
	if req.Save && s.bank != nil {
		if err := s.bank.Save(c.Request.Context(), qs); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"questions": qs, "saved": req.Save && s.bank != nil})
}

func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody(string(session.KindValidation), err.Error()))
}

func writeError(c *gin.Context, err error) {
	kind := session.KindOf(err)
	msg := "internal error"
	var e *session.Error
	if errors.As(err, &e) && kind != session.KindInternal {
		msg = e.Message
	}
	c.JSON(statusFor(kind), errorBody(string(kind), msg))
}

func errorBody(kind, message string) gin.H {
	return gin.H{"error": gin.H{"kind": kind, "message": message}}
}

func statusFor(kind session.Kind) int {
	switch kind {
	case session.KindValidation, session.KindInvalidTimeSpent:
		return http.StatusBadRequest
	case session.KindSessionNotFound:
		return http.StatusNotFound
	case session.KindSessionNotActive, session.KindSessionTerminated, session.KindInvalidTransition,
		session.KindQuestionMismatch, session.KindSessionNotCompleted:
		return http.StatusConflict
	case session.KindPoolExhausted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
