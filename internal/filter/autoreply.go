package filter

import "strings"

type ReplyRule struct {
	Trigger string
	Reply   string
}

type AutoReplies struct {
	rules []ReplyRule
}

func NewAutoReplies(rules []ReplyRule) *AutoReplies {
	normalized := make([]ReplyRule, 0, len(rules))
	for _, r := range rules {
		if strings.TrimSpace(r.Trigger) == "" {
			continue
		}
		normalized = append(normalized, ReplyRule{Trigger: normalize(r.Trigger), Reply: r.Reply})
	}
	return &AutoReplies{rules: normalized}
}

// Lookup returns the reply of the first rule whose trigger occurs in text.
func (a *AutoReplies) Lookup(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	text = normalize(text)
	for _, r := range a.rules {
		if strings.Contains(text, r.Trigger) {
			return r.Reply, true
		}
	}
	return "", false
}
