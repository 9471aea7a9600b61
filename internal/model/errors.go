// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, user, tweep, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidUsername    = "INVALID_USERNAME"
	ErrCodeInvalidPassword    = "INVALID_PASSWORD"
	ErrCodeInvalidDisplayName = "INVALID_DISPLAY_NAME"
	ErrCodeInvalidDuration    = "INVALID_DURATION"
	ErrCodeAudioRequired      = "AUDIO_REQUIRED"
	ErrCodeInvalidAudioType   = "INVALID_AUDIO_TYPE"
	ErrCodeAudioTooLarge      = "AUDIO_TOO_LARGE"
	ErrCodeSameUsername       = "SAME_USERNAME"
	ErrCodeUsernameTaken      = "USERNAME_TAKEN"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid       = "TOKEN_INVALID"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeTweepNotFound      = "TWEEP_NOT_FOUND"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidUsernameError はユーザー名の形式が不正な場合のエラーを生成する。
func NewInvalidUsernameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUsername,
		Message:  "ユーザー名は3文字以上20文字以下で指定してください。",
		Category: "validation",
		Action:   "ユーザー名を確認してください。",
	}
}

// NewInvalidPasswordError はパスワードが不正な場合のエラーを生成する。
func NewInvalidPasswordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPassword,
		Message:  fmt.Sprintf("パスワードが不正です: %s", reason),
		Category: "validation",
		Action:   "パスワードを確認してください。",
	}
}

// NewInvalidDisplayNameError は表示名が不正な場合のエラーを生成する。
func NewInvalidDisplayNameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDisplayName,
		Message:  "表示名は1文字以上50文字以下で指定してください。",
		Category: "validation",
		Action:   "表示名を確認してください。",
	}
}

// NewInvalidDurationError は再生時間の形式が不正な場合のエラーを生成する。
func NewInvalidDurationError(duration string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDuration,
		Message:  fmt.Sprintf("再生時間はHH:MM:SS形式で指定してください: %q", duration),
		Category: "validation",
		Action:   "例: 00:01:30",
	}
}

// NewAudioRequiredError は音声ファイルが添付されていない場合のエラーを生成する。
func NewAudioRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAudioRequired,
		Message:  "音声ファイルが必要です。",
		Category: "validation",
		Action:   "audioフィールドに音声ファイルを添付してください。",
	}
}

// NewInvalidAudioTypeError は音声以外のファイルが添付された場合のエラーを生成する。
func NewInvalidAudioTypeError(mimeType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAudioType,
		Message:  fmt.Sprintf("音声ファイルのみアップロードできます: %s", mimeType),
		Category: "validation",
		Action:   "audio/* 形式のファイルを添付してください。",
	}
}

// NewAudioTooLargeError は音声ファイルがサイズ上限を超えた場合のエラーを生成する。
func NewAudioTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeAudioTooLarge,
		Message:  fmt.Sprintf("音声ファイルが大きすぎます（上限 %d バイト）。", maxBytes),
		Category: "validation",
		Action:   "録音時間を短くして再度お試しください。",
	}
}

// NewSameUsernameError は変更後のユーザー名が現在と同じ場合のエラーを生成する。
func NewSameUsernameError() *APIError {
	return &APIError{
		Code:     ErrCodeSameUsername,
		Message:  "新しいユーザー名は現在のユーザー名と異なる必要があります。",
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewUsernameTakenError はユーザー名が既に使用されている場合のエラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  "このユーザー名は既に使用されています。",
		Category: "user",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewUnauthorizedError は認証情報がない、またはユーザーを特定できない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はユーザー名またはパスワードが誤っている場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。",
	}
}

// NewTokenExpiredError はトークンの有効期限が切れている場合のエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "トークンの有効期限が切れています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTokenInvalidError はトークンが改ざん・破損している場合のエラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "トークンが不正です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "user",
		Action:   "ユーザー名を確認してください。",
	}
}

// NewTweepNotFoundError は投稿が存在しない、または削除権限がない場合のエラーを生成する。
// 他ユーザーの投稿の存在を漏らさないため、両者は同じエラーになる。
func NewTweepNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTweepNotFound,
		Message:  "投稿が見つからないか、削除する権限がありません。",
		Category: "tweep",
		Action:   "投稿IDを確認してください。",
	}
}

// NewNotFoundError は存在しないAPIエンドポイントへのアクセス時のエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "APIエンドポイントが見つかりません。",
		Category: "system",
		Action:   "URLを確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// HasCode はerrがAPIErrorで指定コードを持つかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
