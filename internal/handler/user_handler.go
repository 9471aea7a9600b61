package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tweeper/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// List は新しい順にユーザーを返す。limitが0以下の場合は既定件数。
	List(ctx context.Context, limit int) ([]*model.User, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) (*model.User, error)
	// ChangeUsername はユーザー名を変更し、所有tweepのユーザー名も付け替える。
	ChangeUsername(ctx context.Context, userID, newUsername string) (*model.User, error)
}

// UserHandler はユーザー参照のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// listUsersResponse はユーザー一覧のレスポンス。
type listUsersResponse struct {
	Users []userResponse `json:"users"`
	Count int            `json:"count"`
}

// ListUsers はユーザー一覧を新しい順に返す。
// limitが数値でない、または1未満の場合は既定件数になる。
// GET /api/users?limit=N
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context(), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	res := listUsersResponse{Users: make([]userResponse, 0, len(users))}
	for _, u := range users {
		res.Users = append(res.Users, toUserResponse(u))
	}
	res.Count = len(res.Users)
	writeJSON(w, http.StatusOK, res)
}

// GetUser はユーザー名でユーザーを返す。
// GET /api/users/:username
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := pathUsername(r)

	user, err := h.service.GetByUsername(r.Context(), username)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(user)})
}

// pathUsername はURLパスの:usernameをデコードして返す。
func pathUsername(r *http.Request) string {
	raw := chi.URLParam(r, "username")
	if username, err := url.PathUnescape(raw); err == nil {
		return username
	}
	return raw
}

// parseLimit はlimitクエリを解釈する。解釈できない値は0（既定件数）として扱う。
func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0
	}
	return n
}
