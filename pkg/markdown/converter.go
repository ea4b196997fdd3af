package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	paragraphPattern = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	htmlTagPattern   = regexp.MustCompile(`</?([a-zA-Z]+)(?:\s[^>]*)?>`)
	tagNamePattern   = regexp.MustCompile(`</?([a-zA-Z]+)`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
)

// Telegram HTML tags kept for bot-authored texts; links are allowed here
// because menu texts point at the channel.
var supportedTags = map[string]bool{"b": true, "i": true, "code": true, "pre": true, "a": true}

// ToTelegramHTML converts markdown to Telegram-compatible HTML
func ToTelegramHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	// Hard line breaks keep the line structure of menu texts. Smartypants stays
	// off: Telegram rejects named entities such as &ldquo;.
	extensions := blackfriday.CommonExtensions | blackfriday.HardLineBreak
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.UseXHTML,
	})
	html := string(blackfriday.Run([]byte(markdown),
		blackfriday.WithExtensions(extensions),
		blackfriday.WithRenderer(renderer),
	))

	return cleanHTMLForTelegram(html)
}

// cleanHTMLForTelegram cleans HTML to be compatible with Telegram
func cleanHTMLForTelegram(html string) string {
	// Paragraphs become blank-line separated blocks
	html = paragraphPattern.ReplaceAllString(html, "$1\n\n")
	html = strings.ReplaceAll(html, "<br />", "")
	html = strings.ReplaceAll(html, "<br>", "")

	html = strings.ReplaceAll(html, "<strong>", "<b>")
	html = strings.ReplaceAll(html, "</strong>", "</b>")
	html = strings.ReplaceAll(html, "<em>", "<i>")
	html = strings.ReplaceAll(html, "</em>", "</i>")

	html = regexp.MustCompile(`(?s)<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`).ReplaceAllString(html, "<pre>$1</pre>")

	// Lists become bullet lines
	html = strings.ReplaceAll(html, "<li>", "• ")
	html = strings.ReplaceAll(html, "</li>", "")

	html = htmlTagPattern.ReplaceAllStringFunc(html, func(match string) string {
		tagMatch := tagNamePattern.FindStringSubmatch(match)
		if len(tagMatch) > 1 && supportedTags[tagMatch[1]] {
			return match
		}
		return ""
	})

	html = blankRunPattern.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
