// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tweeper/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// RegisterAndIssue はユーザーを登録し、トークンを発行する。
	RegisterAndIssue(ctx context.Context, username, password string) (string, *model.User, error)
	// Login は資格情報を検証し、トークンを発行する。
	Login(ctx context.Context, username, password string) (string, *model.User, error)
}

// AuthHandler は登録・ログイン・プロフィール関連のHTTPハンドラー。
type AuthHandler struct {
	auth  AuthServiceInterface
	users UserServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(auth AuthServiceInterface, users UserServiceInterface) *AuthHandler {
	return &AuthHandler{
		auth:  auth,
		users: users,
	}
}

// credentialsRequest は登録・ログインリクエストのボディ。
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	DisplayName string `json:"displayName"`
}

// changeUsernameRequest はユーザー名変更リクエストのボディ。
type changeUsernameRequest struct {
	NewUsername string `json:"newUsername"`
}

// authResponse は登録・ログイン成功時のレスポンス。
type authResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

// userEnvelope は単一ユーザーを返すレスポンス。
type userEnvelope struct {
	Message string       `json:"message,omitempty"`
	User    userResponse `json:"user"`
}

// Register は新規ユーザーを登録する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	token, user, err := h.auth.RegisterAndIssue(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Message: "User registered successfully",
		Token:   token,
		User:    toUserResponse(user),
	})
}

// Login はユーザー名とパスワードでログインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Message: "Login successful",
		Token:   token,
		User:    toUserResponse(user),
	})
}

// GetProfile は認証済みユーザーのプロフィールを返す。
// GET /api/auth/profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(user)})
}

// UpdateProfile は認証済みユーザーの表示名を更新する。
// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req updateProfileRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	updated, err := h.users.UpdateDisplayName(r.Context(), user.ID, req.DisplayName)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userEnvelope{
		Message: "Profile updated successfully",
		User:    toUserResponse(updated),
	})
}

// ChangeUsername は認証済みユーザーのユーザー名を変更する。
// 対象は常にトークンのユーザーで、ボディで他ユーザーを指定することはできない。
// PUT /api/auth/change-username
func (h *AuthHandler) ChangeUsername(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req changeUsernameRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	updated, err := h.users.ChangeUsername(r.Context(), user.ID, req.NewUsername)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	slog.Info("username change request completed",
		slog.String("user_id", user.ID),
		slog.String("username", updated.Username),
	)
	writeJSON(w, http.StatusOK, userEnvelope{
		Message: "Username changed successfully",
		User:    toUserResponse(updated),
	})
}
