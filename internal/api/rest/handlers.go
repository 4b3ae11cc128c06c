package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/model"
)

type loginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func badBody(err error) error {
	return apperr.Wrap(apperr.InvalidInput, "请求体格式错误", err)
}

func (s *Server) signup(c *gin.Context) {
	var req model.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badBody(err))
		return
	}

	resp, err := s.accounts.Signup(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badBody(err))
		return
	}

	token, err := s.accounts.Login(c.Request.Context(), req.Identity, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) profile(c *gin.Context) {
	profile, err := s.accounts.GetProfile(c.Request.Context(), subjectFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badBody(err))
		return
	}

	if err := s.accounts.ChangePassword(c.Request.Context(), subjectFrom(c), req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "密码已更新"})
}

func (s *Server) listCandidates(c *gin.Context) {
	list, err := s.candidates.ListPublic(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) voteCount(c *gin.Context) {
	tally, err := s.candidates.ListWithTally(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}

func (s *Server) createCandidate(c *gin.Context) {
	var input model.CandidateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, badBody(err))
		return
	}

	candidate, err := s.candidates.Create(c.Request.Context(), input, subjectFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": candidate})
}

func (s *Server) updateCandidate(c *gin.Context) {
	var patch model.CandidatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, badBody(err))
		return
	}

	candidate, err := s.candidates.Update(c.Request.Context(), c.Param("candidateID"), patch, subjectFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": candidate})
}

func (s *Server) deleteCandidate(c *gin.Context) {
	candidate, err := s.candidates.Delete(c.Request.Context(), c.Param("candidateID"), subjectFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": candidate})
}

func (s *Server) castVote(c *gin.Context) {
	if err := s.votes.CastVote(c.Request.Context(), c.Param("candidateID"), subjectFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "投票成功"})
}

func (s *Server) auditTally(c *gin.Context) {
	audits, err := s.candidates.AuditTally(c.Request.Context(), subjectFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, audits)
}
