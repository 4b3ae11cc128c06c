package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/onevote/internal/auth"
	"github.com/lvdashuaibi/onevote/internal/model"
	"github.com/lvdashuaibi/onevote/internal/policy"
	"github.com/lvdashuaibi/onevote/internal/repository"
	"github.com/lvdashuaibi/onevote/internal/service"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *auth.TokenService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryRepository()
	tokens := auth.NewTokenService("test-secret", time.Hour)

	accounts := service.NewAccountService(store, auth.NewPasswordHasher(bcrypt.MinCost), tokens, logger)
	candidates := service.NewCandidateService(store, policy.New(store, logger), nil, logger)
	votes := service.NewVoteService(store, nil, nil, logger)

	return NewServer(accounts, candidates, votes, tokens, logger).Router("", nil), tokens
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signup(t *testing.T, router http.Handler, identity, role string) model.SignupResponse {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/user/signup", "", model.SignupRequest{
		Identity: identity, Password: "secret123", Role: role, Name: "n-" + identity, Age: 30,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("signup status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp model.SignupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	return resp
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body.Code
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		method, path string
	}{
		{http.MethodPost, "/candidate"},
		{http.MethodPut, "/candidate/c1"},
		{http.MethodDelete, "/candidate/c1"},
		{http.MethodPost, "/candidate/vote/c1"},
		{http.MethodGet, "/candidate/audit"},
		{http.MethodGet, "/user/profile"},
		{http.MethodPut, "/user/profile/password"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := doJSON(t, router, tt.method, tt.path, "", map[string]string{})
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if code := errorCode(t, w); code != "AUTH_INVALID" {
				t.Errorf("code = %q, want AUTH_INVALID", code)
			}
		})
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	router, _ := newTestRouter(t)
	expired, err := auth.NewTokenService("test-secret", -time.Minute).Issue("someone")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/user/profile", expired, nil)
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != "AUTH_EXPIRED" {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSignupLoginProfile(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := signup(t, router, "111", "")

	w := doJSON(t, router, http.MethodPost, "/user/login", "", map[string]string{"identity": "111", "password": "secret123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/user/login", "", map[string]string{"identity": "111", "password": "bad"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/user/profile", resp.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile status = %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Errorf("profile leaks password field: %s", w.Body.String())
	}

	w = doJSON(t, router, http.MethodPut, "/user/profile/password", resp.Token,
		map[string]string{"currentPassword": "secret123", "newPassword": "another1"})
	if w.Code != http.StatusOK {
		t.Errorf("change password status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSecondAdminConflict(t *testing.T) {
	router, _ := newTestRouter(t)
	signup(t, router, "a1", "admin")

	w := doJSON(t, router, http.MethodPost, "/user/signup", "", model.SignupRequest{
		Identity: "a2", Password: "secret123", Role: "admin", Name: "b",
	})
	if w.Code != http.StatusConflict || errorCode(t, w) != "CONFLICT" {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestVotingFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	admin := signup(t, router, "admin", "admin")
	voter := signup(t, router, "voter", "")

	w := doJSON(t, router, http.MethodPost, "/candidate", voter.Token, model.CandidateInput{Name: "x", Party: "P"})
	if w.Code != http.StatusForbidden {
		t.Errorf("voter create status = %d, want 403", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/candidate", admin.Token, model.CandidateInput{Name: "x", Party: "P", Age: 50})
	if w.Code != http.StatusOK {
		t.Fatalf("admin create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created struct {
		Response model.Candidate `json:"response"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode candidate: %v", err)
	}
	votePath := "/candidate/vote/" + created.Response.ID

	w = doJSON(t, router, http.MethodPost, votePath, admin.Token, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("admin vote status = %d, want 403", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/candidate/vote/missing", voter.Token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing candidate status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, votePath, voter.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("vote status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, votePath, voter.Token, nil)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "ALREADY_VOTED" {
		t.Errorf("second vote status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/candidate/vote/count", "", nil)
	var tally []model.PartyTally
	if err := json.Unmarshal(w.Body.Bytes(), &tally); err != nil {
		t.Fatalf("decode tally: %v", err)
	}
	if len(tally) != 1 || tally[0] != (model.PartyTally{Party: "P", Count: 1}) {
		t.Errorf("tally = %+v", tally)
	}

	w = doJSON(t, router, http.MethodGet, "/candidate", "", nil)
	var list []model.CandidateSummary
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Party != "P" {
		t.Errorf("list = %+v", list)
	}

	w = doJSON(t, router, http.MethodGet, "/candidate/audit", admin.Token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("audit status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/candidate/"+created.Response.ID, admin.Token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	// 删除结果不能带出投票明细
	if bytes.Contains(w.Body.Bytes(), []byte(`"votes"`)) || bytes.Contains(w.Body.Bytes(), []byte(voter.Profile.ID)) {
		t.Errorf("delete body exposes voters: %s", w.Body.String())
	}
}

func TestBadBody(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/user/login", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest || errorCode(t, w) != "INVALID_INPUT" {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
