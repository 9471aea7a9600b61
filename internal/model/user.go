// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはクライアントに返してはならない。
type User struct {
	ID           string
	Username     string
	PasswordHash string `json:"-"`
	DisplayName  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public はパスワードハッシュを除いたコピーを返す。
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	return &c
}
