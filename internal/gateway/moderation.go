package gateway

import (
	"regexp"
	"strings"
)

var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(porn|pornograph|xxx|nsfw|nude|naked|sex(?:ual)?|explicit|erotic|hentai)\b`),
	regexp.MustCompile(`(?i)\b(child|minor|underage|kid|teen).*\b(sex|nude|naked|explicit)\b`),
	regexp.MustCompile(`(?i)\b(gore|mutilation|torture|dismember|beheading)\b`),
	regexp.MustCompile(`(?i)\b(self.?harm|suicide|kill.?yourself)\b`),
	regexp.MustCompile(`(?i)\b(terror(?:ist|ism)?|bomb.?making|explosives?.?recipe)\b`),
	regexp.MustCompile(`(?i)\b(drugs?.?recipe|meth.?lab|cocaine.?synthesis)\b`),
	regexp.MustCompile(`(?i)\b(hack(?:ing)?.?tutorial|malware|ransomware|phishing.?kit)\b`),
}

// ContainsBlockedContent reports whether text matches a moderation pattern.
func ContainsBlockedContent(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range blockedPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	return false
}
