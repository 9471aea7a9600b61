package model

import "time"

// Tweep はユーザーが投稿した音声クリップを表す。
// Usernameは所有ユーザーのusernameの非正規化コピーで、
// ユーザー名変更時には全件書き換える必要がある。
type Tweep struct {
	ID        string
	UserID    string
	Username  string
	AudioData []byte // 一覧取得時はnil
	Duration  string // HH:MM:SS（クライアント申告値）
	CreatedAt time.Time
}
