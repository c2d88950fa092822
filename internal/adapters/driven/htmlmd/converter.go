// Package htmlmd converts help-archive HTML pages to Markdown with
// regex-based tag stripping, preserving headings, code fences, and
// lists instead of flattening everything to plain text.
package htmlmd

import (
	"html"
	"regexp"
	"strings"
)

// Converter implements driven.HTMLConverter. It is stateless and pure:
// the same input byte string always yields the same Markdown output.
type Converter struct{}

// New constructs the HTML-to-Markdown converter.
func New() *Converter { return &Converter{} }

var (
	scriptTag    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag     = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag  = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag      = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag       = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)

	preTag    = regexp.MustCompile(`(?is)<pre[^>]*>(.*?)</pre>`)
	codeTag   = regexp.MustCompile(`(?is)<code[^>]*>(.*?)</code>`)
	headingTag = [7]*regexp.Regexp{
		nil,
		regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`),
		regexp.MustCompile(`(?is)<h2[^>]*>(.*?)</h2>`),
		regexp.MustCompile(`(?is)<h3[^>]*>(.*?)</h3>`),
		regexp.MustCompile(`(?is)<h4[^>]*>(.*?)</h4>`),
		regexp.MustCompile(`(?is)<h5[^>]*>(.*?)</h5>`),
		regexp.MustCompile(`(?is)<h6[^>]*>(.*?)</h6>`),
	}
	listItemTag = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	paragraphClose = regexp.MustCompile(`(?i)</(p|div|tr|blockquote|table|section|article)>`)
	paragraphOpen  = regexp.MustCompile(`(?i)<(p|div|tr|blockquote|table|section|article)[^>]*>`)
	brTag          = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTag          = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags        = regexp.MustCompile(`<[^>]+>`)
	multiSpaces    = regexp.MustCompile(`[ \t]+`)
	multiNewlines  = regexp.MustCompile(`\n{3,}`)
)

// Convert turns raw HTML into Markdown text.
func (c *Converter) Convert(raw []byte) (string, error) {
	content := string(raw)

	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = preTag.ReplaceAllString(content, "\n```\n$1\n```\n")
	content = codeTag.ReplaceAllString(content, "`$1`")

	for level := 6; level >= 1; level-- {
		marker := strings.Repeat("#", level)
		content = headingTag[level].ReplaceAllString(content, "\n"+marker+" $1\n")
	}

	content = listItemTag.ReplaceAllString(content, "\n- $1")

	content = paragraphOpen.ReplaceAllString(content, "\n")
	content = paragraphClose.ReplaceAllString(content, "\n")
	content = brTag.ReplaceAllString(content, "\n")
	content = hrTag.ReplaceAllString(content, "\n---\n")

	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	content = multiSpaces.ReplaceAllString(content, " ")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	var result []string
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		result = append(result, trimmed)
	}
	return strings.TrimSpace(strings.Join(result, "\n")), nil
}

// ExtractTitle returns the first h1/h2 heading text, or "" if none is
// present; the caller falls back to the filename stem
func ExtractTitle(raw []byte) string {
	content := string(raw)
	if m := headingTag[1].FindStringSubmatch(content); len(m) > 1 {
		return cleanInline(m[1])
	}
	if m := headingTag[2].FindStringSubmatch(content); len(m) > 1 {
		return cleanInline(m[1])
	}
	return ""
}

func cleanInline(s string) string {
	s = allTags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}
