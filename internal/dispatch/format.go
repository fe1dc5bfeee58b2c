package dispatch

import (
	"html"
	"regexp"
	"strings"
)

var (
	mdBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdCode    = regexp.MustCompile("`([^`\n]+)`")
	mdLink    = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t]*#*$`)
	mdBullet  = regexp.MustCompile(`(?m)^([ \t]*)[*-][ \t]+`)
)

// toTelegramHTML renders markdown in the HTML subset accepted by the Bot API
func toTelegramHTML(md string) string {
	s := html.EscapeString(md)
	s = mdLink.ReplaceAllString(s, `<a href="$2">$1</a>`)
	s = mdHeading.ReplaceAllString(s, "<b>$1</b>")
	s = mdBold.ReplaceAllString(s, "<b>$1</b>")
	s = mdCode.ReplaceAllString(s, "<code>$1</code>")
	s = mdBullet.ReplaceAllString(s, "${1}• ")
	return s
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// toSlackMrkdwn renders markdown as Slack mrkdwn
func toSlackMrkdwn(md string) string {
	s := slackEscaper.Replace(md)
	s = mdLink.ReplaceAllString(s, "<$2|$1>")
	s = mdHeading.ReplaceAllString(s, "*$1*")
	s = mdBold.ReplaceAllString(s, "*$1*")
	s = mdBullet.ReplaceAllString(s, "${1}• ")
	return s
}

// toPlainText strips markdown markup, keeping link targets
func toPlainText(md string) string {
	s := mdLink.ReplaceAllString(md, "$1 ($2)")
	s = mdHeading.ReplaceAllString(s, "$1")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdCode.ReplaceAllString(s, "$1")
	return s
}

func asMarkdown(md string) string {
	return md
}
