// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが入力するプレーンテキスト（表示名など）から
// HTMLタグと制御文字を取り除く。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses は反復の上限。通常は出力が変化しなくなった時点で止まる。
// 表示名は50文字以内のため、実際の入力でこの上限に達することはない。
const maxSanitizePasses = 64

// TextSanitizer はプレーンテキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグと制御文字を除去したプレーンテキストを返す。
	// 前後の空白は除去する。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグを除去し、エスケープされた文字実体を元の文字に戻す。
// "&amp;lt;b&amp;gt;" のように多重にエスケープされたタグも、出力が変化しなくなるまで
// タグ除去と実体参照の展開を繰り返して取り除く。
func (s *textSanitizer) Sanitize(raw string) string {
	out := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}

	out = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, out)

	return strings.TrimSpace(out)
}
