package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/tweeper/internal/middleware"
	"github.com/hitoshi/tweeper/internal/model"
)

// maxJSONBodyBytes はJSONリクエストボディの上限。
const maxJSONBodyBytes = 1 << 20

// userResponse はユーザー情報のAPIレスポンス。
// パスワードハッシュは含めない。
type userResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// tweepResponse はtweepのAPIレスポンス。音声データは含めない。
type tweepResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Duration  string    `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

func toTweepResponse(t *model.Tweep) tweepResponse {
	return tweepResponse{
		ID:        t.ID,
		Username:  t.Username,
		Duration:  t.Duration,
		CreatedAt: t.CreatedAt,
	}
}

func toTweepResponses(tweeps []*model.Tweep) []tweepResponse {
	res := make([]tweepResponse, 0, len(tweeps))
	for _, t := range tweeps {
		res = append(res, toTweepResponse(t))
	}
	return res
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSONBody はリクエストボディをdstにデコードする。
// 未知のフィールドや複数のJSON値を含むボディはINVALID_REQUESTとして拒否する。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return model.NewInvalidRequestError("リクエストボディが大きすぎます")
		case errors.Is(err, io.EOF):
			return model.NewInvalidRequestError("リクエストボディが空です")
		default:
			return model.NewInvalidRequestError(err.Error())
		}
	}
	if dec.More() {
		return model.NewInvalidRequestError("JSON値は1つだけ指定してください")
	}
	return nil
}

// requireUser は認証ミドルウェアが注入したユーザーを返す。
// 取得できない場合は401を書き込み、nilを返す。
func requireUser(w http.ResponseWriter, r *http.Request) *model.User {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil
	}
	return user
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidUsername,
		model.ErrCodeInvalidPassword,
		model.ErrCodeInvalidDisplayName,
		model.ErrCodeInvalidDuration,
		model.ErrCodeAudioRequired,
		model.ErrCodeInvalidAudioType,
		model.ErrCodeAudioTooLarge,
		model.ErrCodeSameUsername:
		return http.StatusBadRequest
	case model.ErrCodeUsernameTaken:
		// 既存クライアントとの互換のため409ではなく400を返す
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials, model.ErrCodeTokenExpired:
		return http.StatusUnauthorized
	case model.ErrCodeTokenInvalid:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeTweepNotFound, model.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// notFoundAPI は未定義のAPIエンドポイントに404を返す。
func notFoundAPI(w http.ResponseWriter, r *http.Request) {
	writeAPIErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
}

// methodNotAllowed は許可されていないメソッドに405を返す。
func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeAPIErrorResponse(w, http.StatusMethodNotAllowed, &model.APIError{
		Code:     "METHOD_NOT_ALLOWED",
		Message:  fmt.Sprintf("%s メソッドはこのエンドポイントでは使用できません。", r.Method),
		Category: "system",
		Action:   "APIドキュメントを確認してください。",
	})
}
