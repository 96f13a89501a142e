package portfolio

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/portfolium/internal/model"
)

const (
	minSubdomainLength = 3
	maxSubdomainLength = 63

	// defaultBaseMaxLength は生成するサブドメインの基底部分の最大長。
	// 衝突時に付与する "-xxxxxx" の分を残す。
	defaultBaseMaxLength = 50

	// fallbackSubdomainBase は表示名から基底部分を作れない場合に使う。
	fallbackSubdomainBase = "portfolio"

	// defaultCandidateCount は生成するデフォルトサブドメイン候補数。
	defaultCandidateCount = 6
)

var (
	subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	nonSlugChars     = regexp.MustCompile(`[^a-z0-9]+`)
)

// reservedSubdomains はサービス側で使用するため利用者に割り当てない名前。
var reservedSubdomains = map[string]struct{}{
	"www":    {},
	"api":    {},
	"app":    {},
	"admin":  {},
	"mail":   {},
	"static": {},
	"assets": {},
	"cdn":    {},
	"status": {},
	"blog":   {},
}

// NormalizeSubdomain は前後の空白を除去し小文字化する。
func NormalizeSubdomain(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateSubdomain はサブドメインの形式を検証する。
// 英小文字・数字・ハイフンのみ、3〜63文字、先頭と末尾はハイフン不可、予約語不可。
func ValidateSubdomain(name string) error {
	if len(name) < minSubdomainLength || len(name) > maxSubdomainLength {
		return model.NewInvalidSubdomainError("長さは3〜63文字です")
	}
	if !subdomainPattern.MatchString(name) {
		return model.NewInvalidSubdomainError("使用できない文字が含まれています")
	}
	if _, ok := reservedSubdomains[name]; ok {
		return model.NewInvalidSubdomainError("予約済みの名前です")
	}
	return nil
}

// DefaultSubdomainCandidates はseed（表示名など）からデフォルトサブドメインの候補を生成する。
// 先頭は基底名そのもの、以降は基底名にランダムな接尾辞を付けたもの。
func DefaultSubdomainCandidates(seed string) []string {
	base := subdomainBase(seed)

	candidates := make([]string, 0, defaultCandidateCount)
	if _, reserved := reservedSubdomains[base]; !reserved {
		candidates = append(candidates, base)
	}
	for len(candidates) < defaultCandidateCount {
		candidates = append(candidates, base+"-"+randomSuffix())
	}
	return candidates
}

func subdomainBase(seed string) string {
	base := nonSlugChars.ReplaceAllString(strings.ToLower(seed), "-")
	base = strings.Trim(base, "-")
	if len(base) > defaultBaseMaxLength {
		base = strings.TrimRight(base[:defaultBaseMaxLength], "-")
	}
	if len(base) < minSubdomainLength {
		return fallbackSubdomainBase
	}
	return base
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
