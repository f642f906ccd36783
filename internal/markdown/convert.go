// Package markdown converts arbitrary HTML into readable Markdown.
//
// The conversion is a tolerant walk over the parsed node tree: supported tags
// map to Markdown constructs, unknown tags contribute a warning and pass
// their children through, and malformed markup degrades to best-effort text
// rather than failing.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Tags whose subtree carries no visible page content.
var skippedTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"head":     {},
	"template": {},
}

// Structural containers that pass children through without a warning.
var transparentTags = map[string]struct{}{
	"html": {},
	"body": {},
}

// Convert turns raw HTML into Markdown. It never fails: the worst case is a
// text-only rendition plus warnings for whatever could not be mapped.
func Convert(src string) (string, []string) {
	c := &converter{warned: make(map[string]struct{})}

	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		// html.Parse recovers from malformed markup, so this only fires on
		// reader-level failures; degrade to stripped text.
		c.warnings = append(c.warnings, fmt.Sprintf("document unparsable: %v", err))
		return tidy(stripTags(src)), c.warnings
	}

	return tidy(c.render(doc, 0)), c.warnings
}

type converter struct {
	warnings []string
	warned   map[string]struct{}
}

func (c *converter) warnUnknownTag(tag string) {
	if _, ok := c.warned[tag]; ok {
		return
	}
	c.warned[tag] = struct{}{}
	c.warnings = append(c.warnings, fmt.Sprintf("unsupported tag <%s>: markup skipped, content kept", tag))
}

// render emits the Markdown for one node in document order. listDepth tracks
// list nesting for indentation.
func (c *converter) render(n *html.Node, listDepth int) string {
	switch n.Type {
	case html.TextNode:
		return whitespaceRun.ReplaceAllString(n.Data, " ")
	case html.DocumentNode:
		return c.renderChildren(n, listDepth)
	case html.ElementNode:
		return c.renderElement(n, listDepth)
	default:
		// comments, doctype
		return ""
	}
}

func (c *converter) renderChildren(n *html.Node, listDepth int) string {
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(c.render(child, listDepth))
	}
	return b.String()
}

func (c *converter) renderElement(n *html.Node, listDepth int) string {
	tag := n.Data
	if _, ok := skippedTags[tag]; ok {
		return ""
	}
	if _, ok := transparentTags[tag]; ok {
		return c.renderChildren(n, listDepth)
	}

	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(tag[1] - '0')
		text := strings.TrimSpace(c.renderChildren(n, listDepth))
		if text == "" {
			return ""
		}
		return "\n\n" + strings.Repeat("#", level) + " " + text + "\n\n"
	case "p":
		text := strings.TrimSpace(c.renderChildren(n, listDepth))
		if text == "" {
			return ""
		}
		return "\n\n" + text + "\n\n"
	case "br":
		return "\n"
	case "strong", "b":
		text := strings.TrimSpace(c.renderChildren(n, listDepth))
		if text == "" {
			return ""
		}
		return "**" + text + "**"
	case "em", "i":
		text := strings.TrimSpace(c.renderChildren(n, listDepth))
		if text == "" {
			return ""
		}
		return "*" + text + "*"
	case "a":
		text := strings.TrimSpace(c.renderChildren(n, listDepth))
		href := attr(n, "href")
		if href == "" {
			return text
		}
		if text == "" {
			text = href
		}
		return "[" + text + "](" + href + ")"
	case "img":
		return "![" + attr(n, "alt") + "](" + attr(n, "src") + ")"
	case "ul":
		return c.renderList(n, listDepth, false)
	case "ol":
		return c.renderList(n, listDepth, true)
	case "blockquote":
		return c.renderBlockquote(n, listDepth)
	default:
		c.warnUnknownTag(tag)
		return c.renderChildren(n, listDepth)
	}
}

// renderList emits one line per item, "- " or "N. " prefixed, indented two
// spaces per nesting level. Ordered numbering is 1-based and resets per list.
func (c *converter) renderList(n *html.Node, depth int, ordered bool) string {
	indent := strings.Repeat("  ", depth)
	var lines []string
	index := 1
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode || child.Data != "li" {
			continue
		}
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", index)
			index++
		}
		text, nested := c.renderListItem(child, depth)
		line := indent + marker + text
		if nested != "" {
			line += "\n" + nested
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	body := strings.Join(lines, "\n")
	if depth == 0 {
		return "\n\n" + body + "\n\n"
	}
	return body
}

// renderListItem separates an item's inline content from nested lists so the
// latter land on their own indented lines.
func (c *converter) renderListItem(li *html.Node, depth int) (text, nested string) {
	var inline strings.Builder
	var nestedParts []string
	for child := li.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && (child.Data == "ul" || child.Data == "ol") {
			nestedParts = append(nestedParts, c.renderList(child, depth+1, child.Data == "ol"))
			continue
		}
		inline.WriteString(c.render(child, depth))
	}
	return strings.TrimSpace(inline.String()), strings.Join(nestedParts, "\n")
}

func (c *converter) renderBlockquote(n *html.Node, listDepth int) string {
	inner := tidy(c.renderChildren(n, listDepth))
	if inner == "" {
		return ""
	}
	lines := strings.Split(inner, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight("> "+line, " ")
	}
	return "\n\n" + strings.Join(lines, "\n") + "\n\n"
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// tidy trims trailing space per line and collapses runs of blank lines so
// blocks are separated by exactly one.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripTags removes angle-bracketed markup, leaving visible text. Used only
// when the document cannot be parsed at all.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
