package markdown

import (
	"html"
	"regexp"
	"strings"
)

// Tags Telegram's HTML parse mode is asked to honor for model output.
var allowedTags = map[string]bool{
	"<b>": true, "</b>": true,
	"<i>": true, "</i>": true,
	"<code>": true, "</code>": true,
	"<pre>": true, "</pre>": true,
}

var (
	thinkPattern      = regexp.MustCompile(`(?s)<think>.*?</think>`)
	openTagPattern    = regexp.MustCompile(`<\w+[^>]*>`)
	closeTagPattern   = regexp.MustCompile(`</\w+>`)
	boldPattern       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern     = regexp.MustCompile(`\*(.*?)\*`)
	codeBlockPattern  = regexp.MustCompile("```([^`]*)```")
	inlineCodePattern = regexp.MustCompile("`([^`]+)`")
	anyTagPattern     = regexp.MustCompile(`<[^>]+>`)
)

type pass struct {
	name  string
	apply func(string) string
}

// Passes run in this order; each one sees the output of the previous.
// Emphasis conversion is non-greedy and does not understand nesting, so
// inputs like "**a *b** c*" come out mismatched.
var sanitizePasses = []pass{
	{"drop_reasoning", func(s string) string { return thinkPattern.ReplaceAllString(s, "") }},
	{"filter_tags", filterTags},
	{"bold", func(s string) string { return boldPattern.ReplaceAllString(s, "<b>$1</b>") }},
	{"italic", func(s string) string { return italicPattern.ReplaceAllString(s, "<i>$1</i>") }},
	{"code_block", convertCodeBlocks},
	{"inline_code", func(s string) string { return inlineCodePattern.ReplaceAllString(s, "<code>$1</code>") }},
	{"trim", strings.TrimSpace},
}

// Sanitize turns raw model output into HTML limited to b, i, code and pre.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	text := raw
	for _, p := range sanitizePasses {
		text = p.apply(text)
	}
	return text
}

func filterTags(s string) string {
	keep := func(tag string) string {
		if allowedTags[tag] {
			return tag
		}
		return ""
	}
	s = openTagPattern.ReplaceAllStringFunc(s, keep)
	return closeTagPattern.ReplaceAllStringFunc(s, keep)
}

func convertCodeBlocks(s string) string {
	return codeBlockPattern.ReplaceAllStringFunc(s, func(block string) string {
		content := codeBlockPattern.FindStringSubmatch(block)[1]
		return "<pre><code>" + html.EscapeString(strings.TrimSpace(content)) + "</code></pre>"
	})
}

// StripTags removes every tag, for resending a reply Telegram refused to parse.
func StripTags(s string) string {
	return anyTagPattern.ReplaceAllString(s, "")
}
