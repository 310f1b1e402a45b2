package linkutil

import (
	"net/url"
	"regexp"
)

const postHost = "x.com"

var (
	postURLRe = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:twitter\.com|x\.com)/[a-z0-9_]+/status/(\d+)`)
	bareIDRe  = regexp.MustCompile(`(?i)/status/(\d+)`)
)

// IsPostURL reports whether text contains a link to a post.
func IsPostURL(text string) bool {
	return postURLRe.MatchString(text)
}

// ExtractPostID returns the numeric id of the first post linked in text.
func ExtractPostID(text string) (string, bool) {
	if m := postURLRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := bareIDRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}

func PostURL(handle, postID string) string {
	u := url.URL{
		Scheme: "https",
		Host:   postHost,
		Path:   "/" + url.PathEscape(handle) + "/status/" + url.PathEscape(postID),
	}
	return u.String()
}

func ProfileURL(handle string) string {
	u := url.URL{
		Scheme: "https",
		Host:   postHost,
		Path:   "/" + url.PathEscape(handle),
	}
	return u.String()
}
