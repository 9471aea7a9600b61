package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/hitoshi/tweeper/internal/auth"
	"github.com/hitoshi/tweeper/internal/middleware"
	"github.com/hitoshi/tweeper/internal/model"
	"github.com/hitoshi/tweeper/internal/repository/memory"
	"github.com/hitoshi/tweeper/internal/security"
	"github.com/hitoshi/tweeper/internal/tweep"
	"github.com/hitoshi/tweeper/internal/user"
	"golang.org/x/crypto/bcrypt"
)

// testServer はインメモリストアと実サービスで構成したルーター。
type testServer struct {
	router http.Handler
	store  *memory.Store
	tokens *auth.TokenService
}

type testServerOption func(*RouterDeps)

func withMaxAudioSize(n int64) testServerOption {
	return func(d *RouterDeps) { d.MaxAudioSize = n }
}

func withDB(db Pinger) testServerOption {
	return func(d *RouterDeps) { d.DB = db }
}

func newTestServer(t *testing.T, opts ...testServerOption) *testServer {
	t.Helper()

	tokens, err := auth.NewTokenService("handler-test-secret", auth.DefaultTokenTTL)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	store := memory.NewStore()
	authSvc := auth.NewService(store.Users(), auth.NewPasswordHasher(bcrypt.MinCost), tokens, nil)
	userSvc := user.NewService(store.Users(), store, security.NewTextSanitizer(), nil, 0)
	tweepSvc := tweep.NewService(store.Tweeps(), nil)

	deps := &RouterDeps{
		TokenVerifier:     tokens,
		UserFinder:        store.Users(),
		CORSAllowedOrigin: "*",
		AuthService:       authSvc,
		UserService:       userSvc,
		TweepService:      tweepSvc,
	}
	for _, opt := range opts {
		opt(deps)
	}

	return &testServer{
		router: NewRouter(deps),
		store:  store,
		tokens: tokens,
	}
}

// do はリクエストを実行する。tokenが空でなければBearerトークンを付与する。
func (s *testServer) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req, token)
}

// register はユーザーを登録してトークンを返す。
func (s *testServer) register(t *testing.T, username, password string) string {
	t.Helper()
	w := s.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"password": password,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body = %s", username, w.Code, w.Body.String())
	}
	var res authResponse
	decodeBody(t, w, &res)
	return res.Token
}

// createTweep はtweepを作成してIDを返す。
func (s *testServer) createTweep(t *testing.T, token string, audio []byte, duration string) string {
	t.Helper()
	w := s.do(t, newUploadRequest(t, audio, "audio/wav", "clip.wav", duration), token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create tweep: status = %d, body = %s", w.Code, w.Body.String())
	}
	var res tweepEnvelope
	decodeBody(t, w, &res)
	return res.Tweep.ID
}

func (s *testServer) listTweeps(t *testing.T, path string) []tweepResponse {
	t.Helper()
	w := s.do(t, httptest.NewRequest(http.MethodGet, path, nil), "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s: status = %d", path, w.Code)
	}
	var res listTweepsResponse
	decodeBody(t, w, &res)
	return res.Tweeps
}

// newUploadRequest はtweep作成用のmultipartリクエストを生成する。
// audioがnilの場合はaudioパートを含めない。contentTypeが空の場合はパートのContent-Typeを付けない。
func newUploadRequest(t *testing.T, audio []byte, contentType, filename, duration string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if audio != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="audio"; filename="`+filename+`"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		part.Write(audio)
	}
	if err := mw.WriteField("duration", duration); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/tweeps", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
}

// withUser は認証済みユーザーをコンテキストに注入したリクエストを返す。
func withUser(r *http.Request, u *model.User) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), u))
}

// --- モック定義 ---

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error { return m.err }

type mockTweepService struct {
	createFn         func(ctx context.Context, owner *model.User, audio []byte, duration string) (*model.Tweep, error)
	listFn           func(ctx context.Context) ([]*model.Tweep, error)
	listByUsernameFn func(ctx context.Context, username string) ([]*model.Tweep, error)
	getAudioFn       func(ctx context.Context, id string) (*model.Tweep, error)
	deleteFn         func(ctx context.Context, actor *model.User, id string) error
}

func (m *mockTweepService) Create(ctx context.Context, owner *model.User, audio []byte, duration string) (*model.Tweep, error) {
	if m.createFn != nil {
		return m.createFn(ctx, owner, audio, duration)
	}
	return &model.Tweep{ID: "t-1", Username: owner.Username, Duration: duration, CreatedAt: time.Now()}, nil
}

func (m *mockTweepService) List(ctx context.Context) ([]*model.Tweep, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockTweepService) ListByUsername(ctx context.Context, username string) ([]*model.Tweep, error) {
	if m.listByUsernameFn != nil {
		return m.listByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *mockTweepService) GetAudio(ctx context.Context, id string) (*model.Tweep, error) {
	if m.getAudioFn != nil {
		return m.getAudioFn(ctx, id)
	}
	return nil, model.NewTweepNotFoundError()
}

func (m *mockTweepService) Delete(ctx context.Context, actor *model.User, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil
}
