package http

import (
	"fmt"
	"net/http"
	"strconv"

	"chronotech-quiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type submitAnswerRequest struct {
	QuestionIndex *int   `json:"questionIndex" validate:"required,min=0"`
	Answer        string `json:"answer" validate:"required"`
	QuizID        string `json:"quizId" validate:"required"`
}

type startSessionRequest struct {
	QuizID string `json:"quizId" validate:"required"`
}

type sessionAnswerRequest struct {
	Answer string `json:"answer" validate:"required"`
}

type textRequest struct {
	Text string `json:"text" validate:"required"`
}

type commentResponse struct {
	Comment  domain.Comment       `json:"comment"`
	Unlocked []domain.Achievement `json:"unlocked,omitempty"`
}

type likeResponse struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}

type reloadResponse struct {
	QuizID    string `json:"quizId"`
	Questions int    `json:"questions"`
}

// submitAnswer is the callable scoring entrypoint.
func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request) {
	uid := principalID(r)
	if uid == "" {
		writeError(w, s.log, domain.ErrNoPrincipal)
		return
	}
	var req submitAnswerRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	res, err := s.svc.Reconciler.SubmitAnswer(r.Context(), uid, domain.AnswerSubmission{
		QuizID:        req.QuizID,
		QuestionIndex: *req.QuestionIndex,
		Answer:        req.Answer,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svc.Accounts.Profile(r.Context(), principalID(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	entries, err := s.svc.Leaderboard.TopN(r.Context(), limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) todayMission(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Missions.Current(r.Context(), principalID(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if status == nil {
		writeError(w, s.log, domain.Errorf(domain.ErrNotFound, "no mission today"))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) achievements(w http.ResponseWriter, r *http.Request) {
	unlocked, err := s.svc.Achievements.Unlocked(r.Context(), principalID(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, unlocked)
}

// reloadQuiz drops the cached copy of a quiz and reads it back from the
// content source. Admins only.
func (s *Server) reloadQuiz(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if p == nil {
		writeError(w, s.log, domain.ErrNoPrincipal)
		return
	}
	if !p.IsAdmin {
		writeError(w, s.log, domain.Errorf(domain.ErrPermissionDenied, "only admins can reload quiz content"))
		return
	}
	quizID := chi.URLParam(r, "quizID")
	if err := s.svc.QuizCache.Invalidate(r.Context(), quizID); err != nil {
		writeError(w, s.log, fmt.Errorf("invalidate quiz %s: %w", quizID, err))
		return
	}
	quiz, err := s.svc.QuizCache.GetQuiz(r.Context(), quizID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	s.log.Info("quiz content reloaded",
		zap.String("quiz_id", quiz.ID),
		zap.String("user_id", p.UID),
		zap.Int("questions", len(quiz.Questions)))
	writeJSON(w, http.StatusOK, reloadResponse{QuizID: quiz.ID, Questions: len(quiz.Questions)})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	view, err := s.svc.Quizzes.StartSession(r.Context(), principalID(r), req.QuizID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Quizzes.Current(r.Context(), principalID(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) answerSession(w http.ResponseWriter, r *http.Request) {
	var req sessionAnswerRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	out, err := s.svc.Quizzes.SubmitAnswer(r.Context(), principalID(r), req.Answer)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) expireSession(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Quizzes.Expire(r.Context(), principalID(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) abandonSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Quizzes.Abandon(r.Context(), principalID(r)); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	comments, err := s.svc.Forum.Comments(r.Context(), limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) postComment(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	comment, unlocked, err := s.svc.Forum.PostComment(r.Context(), PrincipalFrom(r.Context()), req.Text)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentResponse{Comment: comment, Unlocked: unlocked})
}

func (s *Server) listReplies(w http.ResponseWriter, r *http.Request) {
	replies, err := s.svc.Forum.Replies(r.Context(), chi.URLParam(r, "commentID"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, replies)
}

func (s *Server) postReply(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	reply, err := s.svc.Forum.PostReply(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "commentID"), req.Text)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

// toggleLike serves both comment and reply likes; replyID is empty for comments.
func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	liked, count, err := s.svc.Forum.ToggleLike(r.Context(), principalID(r),
		chi.URLParam(r, "commentID"), chi.URLParam(r, "replyID"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Liked: liked, LikeCount: count})
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Forum.DeleteComment(r.Context(), principalID(r),
		chi.URLParam(r, "commentID"), chi.URLParam(r, "replyID"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Errorf(domain.ErrInvalidArgument, "%s must be a non-negative integer", name)
	}
	return n, nil
}
