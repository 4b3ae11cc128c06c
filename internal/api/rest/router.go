package rest

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/onevote/internal/service"
)

// Server REST接口
type Server struct {
	accounts   *service.AccountService
	candidates *service.CandidateService
	votes      *service.VoteService
	tokens     TokenVerifier
	logger     *slog.Logger
}

func NewServer(accounts *service.AccountService, candidates *service.CandidateService, votes *service.VoteService, tokens TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		accounts:   accounts,
		candidates: candidates,
		votes:      votes,
		tokens:     tokens,
		logger:     logger,
	}
}

// Router 注册所有路由。graphqlPath非空时把GraphQL处理器挂到同一个引擎上。
func (s *Server) Router(graphqlPath string, graphqlHandler http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := JWTAuth(s.tokens)

	user := router.Group("/user")
	{
		user.POST("/signup", s.signup)
		user.POST("/login", s.login)
		user.GET("/profile", authed, s.profile)
		user.PUT("/profile/password", authed, s.changePassword)
	}

	candidate := router.Group("/candidate")
	{
		candidate.GET("", s.listCandidates)
		candidate.GET("/vote/count", s.voteCount)

		candidate.POST("", authed, s.createCandidate)
		candidate.PUT("/:candidateID", authed, s.updateCandidate)
		candidate.DELETE("/:candidateID", authed, s.deleteCandidate)
		candidate.POST("/vote/:candidateID", authed, s.castVote)
		candidate.GET("/audit", authed, s.auditTally)
	}

	if graphqlPath != "" && graphqlHandler != nil {
		router.Any(graphqlPath, gin.WrapH(graphqlHandler))
	}

	return router
}
