package filter

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/width"
)

// DefaultAdKeywords is ordered: when several keywords hit, the earliest wins.
var DefaultAdKeywords = []string{
	// contact solicitation
	"加微信",
	"微信",
	"加v",
	"vx",
	"wx",
	"qq",
	"私聊我",
	"联系我",
	// payment solicitation
	"支付宝",
	"转账",
	"收款",
	"代付",
	"usdt",
	// promotion
	"兼职",
	"日赚",
	"推广",
	"优惠",
	"福利",
	"招代理",
	// links and mentions
	"http://",
	"https://",
	"www.",
	"t.me/",
	"@",
}

// AdFilter flags advertisement-like text. It holds no mutable state and is
// safe for concurrent use.
type AdFilter struct {
	keywords []string
	matcher  *ahocorasick.Matcher

	whitelist        []string
	whitelistMatcher *ahocorasick.Matcher
}

func NewAdFilter(keywords, whitelist []string) *AdFilter {
	f := &AdFilter{
		keywords:  cleanList(keywords),
		whitelist: cleanList(whitelist),
	}
	f.matcher = ahocorasick.NewStringMatcher(normalizeAll(f.keywords))
	f.whitelistMatcher = ahocorasick.NewStringMatcher(normalizeAll(f.whitelist))
	return f
}

// Classify reports whether text looks like an ad and which keyword matched.
func (f *AdFilter) Classify(text string) (bool, string) {
	if text == "" || len(f.keywords) == 0 {
		return false, ""
	}

	in := []byte(normalize(text))
	if len(f.whitelist) > 0 && len(f.whitelistMatcher.MatchThreadSafe(in)) > 0 {
		return false, ""
	}

	hits := f.matcher.MatchThreadSafe(in)
	if len(hits) == 0 {
		return false, ""
	}

	first := hits[0]
	for _, idx := range hits[1:] {
		if idx < first {
			first = idx
		}
	}
	return true, f.keywords[first]
}

func normalize(s string) string {
	return strings.ToLower(width.Fold.String(s))
}

func normalizeAll(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = normalize(s)
	}
	return out
}

func cleanList(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[normalize(s)]; ok {
			continue
		}
		seen[normalize(s)] = struct{}{}
		out = append(out, s)
	}
	return out
}
