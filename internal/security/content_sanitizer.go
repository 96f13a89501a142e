// Package security はユーザー入力の無害化を提供する。
//
// ContentSanitizer はブログ本文などのHTMLと、自己紹介文などのプレーンテキストを
// 保存前にサニタイズする。公開ページは第三者が閲覧するため、
// 保存時点で許可リスト外のタグと属性を取り除いておく。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はポートフォリオのテキスト入力を無害化するインターフェース。
type ContentSanitizer interface {
	// SanitizeHTML はブログ本文用のHTMLをサニタイズする。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em, h2〜h4, img）のみを通過させる。
	// URLはhttpsとmailto（aのhrefのみ意味を持つ）のみ許可する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeHTML(rawHTML string) string

	// StripTags は全てのタグを除去し、前後の空白を取り除いたテキストを返す。
	// 戻り値はHTMLエスケープされていないプレーンテキストで、表示時にエスケープする。
	StripTags(text string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのポリシーはSanitize呼び出しに対してスレッドセーフ。
type contentSanitizer struct {
	rich   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// script, iframe, style等は許可リストに含めないことで除去される
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
		"h2", "h3", "h4",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})
	p.AllowURLSchemes("mailto")

	return &contentSanitizer{
		rich:   p,
		strict: bluemonday.StrictPolicy(),
	}
}

// SanitizeHTML はブログ本文用のHTMLをサニタイズする。
func (s *contentSanitizer) SanitizeHTML(rawHTML string) string {
	return s.rich.Sanitize(rawHTML)
}

// StripTags は全てのタグを除去する。
// StrictPolicyは出力をエスケープするため、入力どおりの文字に戻してから返す。
func (s *contentSanitizer) StripTags(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(text)))
}

// compile-time interface check
var _ ContentSanitizer = (*contentSanitizer)(nil)
