package extract

import (
	"regexp"
	"strings"
)

var socialPatterns = map[string]*regexp.Regexp{
	"linkedin":  regexp.MustCompile(`(?i)https?://(?:www\.)?linkedin\.com/(?:company|in)/[a-zA-Z0-9_-]+/?`),
	"facebook":  regexp.MustCompile(`(?i)https?://(?:www\.)?facebook\.com/[a-zA-Z0-9._-]+/?`),
	"instagram": regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/[a-zA-Z0-9._-]+/?`),
	"twitter":   regexp.MustCompile(`(?i)https?://(?:www\.)?(?:twitter|x)\.com/[a-zA-Z0-9_]+/?`),
	"youtube":   regexp.MustCompile(`(?i)https?://(?:www\.)?youtube\.com/(?:c/|channel/|user/)?[a-zA-Z0-9_-]+/?`),
}

// SocialLinks finds the first profile URL per platform in page content,
// skipping share/intent links.
func SocialLinks(text string) map[string]string {
	out := make(map[string]string)
	for platform, re := range socialPatterns {
		match := re.FindString(text)
		if match == "" {
			continue
		}
		link := strings.TrimRight(match, "/")
		if strings.Contains(link, "/sharer") || strings.Contains(link, "/intent") || strings.Contains(link, "/share") {
			continue
		}
		out[platform] = link
	}
	return out
}
