// Package export renders a report's markdown narrative into a shareable
// self-contained HTML document. The engine only guarantees the report's
// shape; richer renderings (PDF) sit behind the same boundary.
package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	boldText = regexp.MustCompile(`\*\*(.*?)\*\*`)
	codeSpan = regexp.MustCompile("`([^`]+)`")
	bareLink = regexp.MustCompile(`https?://[^\s<` + "`" + `]+`)
)

const docTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: Georgia, serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a2e; }
h1 { color: navy; font-size: 1.5rem; }
h2 { color: navy; font-size: 1.2rem; margin-top: 1.6rem; }
pre { background: #f4f4f4; padding: 0.8rem; overflow-x: auto; border-radius: 4px; }
code { background: #f4f4f4; padding: 0 0.2rem; }
hr { border: 0; border-top: 1px solid #000; margin: 1.2rem 0; }
li { margin: 0.2rem 0; }
</style>
</head>
<body>
<h1>%s</h1>
%s
</body>
</html>
`

// Render converts markdown content to a standalone HTML page. It covers the
// subset the collaborator produces: headings, bullet lists, bold, inline
// code, fenced code blocks, horizontal rules and bare links.
func Render(title, markdown string) string {
	var body strings.Builder
	var inList, inCode bool

	closeList := func() {
		if inList {
			body.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)

		if inCode {
			if strings.HasPrefix(trimmed, "```") {
				body.WriteString("</pre>\n")
				inCode = false
				continue
			}
			body.WriteString(html.EscapeString(line))
			body.WriteString("\n")
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "```"):
			closeList()
			body.WriteString("<pre>")
			inCode = true
		case strings.HasPrefix(trimmed, "### "):
			closeList()
			fmt.Fprintf(&body, "<h2>%s</h2>\n", inline(strings.TrimPrefix(trimmed, "### ")))
		case strings.HasPrefix(trimmed, "## "):
			closeList()
			fmt.Fprintf(&body, "<h2>%s</h2>\n", inline(strings.TrimPrefix(trimmed, "## ")))
		case strings.HasPrefix(trimmed, "# "):
			closeList()
			fmt.Fprintf(&body, "<h2>%s</h2>\n", inline(strings.TrimPrefix(trimmed, "# ")))
		case strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "- "):
			if !inList {
				body.WriteString("<ul>\n")
				inList = true
			}
			fmt.Fprintf(&body, "<li>%s</li>\n", inline(trimmed[2:]))
		case trimmed == "---":
			closeList()
			body.WriteString("<hr>\n")
		case trimmed == "":
			closeList()
		default:
			closeList()
			fmt.Fprintf(&body, "<p>%s</p>\n", inline(trimmed))
		}
	}
	if inCode {
		body.WriteString("</pre>\n")
	}
	closeList()

	return fmt.Sprintf(docTemplate, html.EscapeString(title), html.EscapeString(title), body.String())
}

// inline escapes a line and then applies the inline markdown conversions, so
// only the markup we emit survives as HTML.
func inline(s string) string {
	s = html.EscapeString(s)
	s = boldText.ReplaceAllString(s, "<b>$1</b>")
	s = codeSpan.ReplaceAllString(s, "<code>$1</code>")
	s = bareLink.ReplaceAllStringFunc(s, func(u string) string {
		return fmt.Sprintf(`<a href="%s">%s</a>`, u, u)
	})
	return s
}
