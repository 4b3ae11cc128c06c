package graph

import (
	"context"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/auth"
	"github.com/lvdashuaibi/onevote/internal/service"
)

// TokenVerifier 校验令牌并返回主体ID
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// GraphQLServer GraphQL服务器
type GraphQLServer struct {
	schema  *graphql.Schema
	handler *relay.Handler
	tokens  TokenVerifier
}

// NewGraphQLServer 创建新的GraphQL服务器
func NewGraphQLServer(accounts *service.AccountService, candidates *service.CandidateService, votes *service.VoteService, tokens TokenVerifier) *GraphQLServer {
	resolver := &Resolver{
		accounts:   accounts,
		candidates: candidates,
		votes:      votes,
	}

	schema := graphql.MustParseSchema(schemaString, resolver)

	return &GraphQLServer{
		schema:  schema,
		handler: &relay.Handler{Schema: schema},
		tokens:  tokens,
	}
}

type authKey struct{}

// authState 令牌校验结果，需要登录的解析器再决定是否拒绝
type authState struct {
	subjectID string
	err       error
}

// Handler 解析Authorization头后交给relay处理
func (s *GraphQLServer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := authState{err: apperr.New(apperr.AuthInvalid, "缺少认证令牌")}
		if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
			subjectID, err := s.tokens.Verify(token)
			state = authState{subjectID: subjectID, err: err}
		}

		ctx := context.WithValue(r.Context(), authKey{}, state)
		s.handler.ServeHTTP(w, r.WithContext(ctx))
	})
}

// subjectFrom 返回当前请求的主体ID，未认证时返回认证错误
func subjectFrom(ctx context.Context) (string, error) {
	state, ok := ctx.Value(authKey{}).(authState)
	if !ok {
		return "", apperr.New(apperr.AuthInvalid, "缺少认证令牌")
	}
	if state.err != nil {
		return "", state.err
	}
	return state.subjectID, nil
}

// gqlError 对外只暴露公开消息和错误码
type gqlError struct {
	msg  string
	kind apperr.Kind
}

func (e *gqlError) Error() string {
	return e.msg
}

func (e *gqlError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.kind.String()}
}

func publicError(err error) error {
	if err == nil {
		return nil
	}
	return &gqlError{msg: apperr.PublicMessage(err), kind: apperr.KindOf(err)}
}
