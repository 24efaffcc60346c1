// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はアンケートの自由記述欄に入力された文字列から
// マークアップを取り除き、プレーンテキストとして保存できる形に整える。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxFreeTextLength は自由記述欄に保存する最大文字数（rune単位）。
const MaxFreeTextLength = 2000

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Clean は入力から全てのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白を取り除き、MaxFreeTextLength を超える部分は切り捨てる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Clean(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyは全てのタグを除去し、テキストノードのみ残す。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Clean は入力から全てのHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Clean(raw string) string {
	// StrictPolicyは & などをエンティティに変換するため元の文字に戻す。
	// 表示時のエスケープはhtml/templateが行う。
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.TrimSpace(cleaned)

	if utf8.RuneCountInString(cleaned) > MaxFreeTextLength {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:MaxFreeTextLength]))
	}
	return cleaned
}
