// Copyright 2025 Lateral HQ
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type pageMetadata struct {
	title        string
	canonicalURL string
	siteName     string
	publishedAt  time.Time
}

// Date formats pages actually use in article metadata.
var publishedAtFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// collectMetadata walks the document head for the title, canonical link,
// site name and publication date. Open Graph values win over fallbacks.
func collectMetadata(doc *html.Node) pageMetadata {
	var meta pageMetadata
	var documentTitle string

	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.DataAtom {
		case atom.Title:
			if documentTitle == "" {
				documentTitle = strings.TrimSpace(textOf(n))
			}
		case atom.Link:
			if attr(n, "rel") == "canonical" && meta.canonicalURL == "" {
				meta.canonicalURL = attr(n, "href")
			}
		case atom.Meta:
			content := attr(n, "content")
			if content == "" {
				return true
			}
			switch attr(n, "property") {
			case "og:title":
				if meta.title == "" {
					meta.title = content
				}
			case "og:url":
				if meta.canonicalURL == "" {
					meta.canonicalURL = content
				}
			case "og:site_name":
				if meta.siteName == "" {
					meta.siteName = content
				}
			case "article:published_time":
				if meta.publishedAt.IsZero() {
					meta.publishedAt = parsePublishedAt(content)
				}
			}
			if attr(n, "name") == "date" && meta.publishedAt.IsZero() {
				meta.publishedAt = parsePublishedAt(content)
			}
		}
		return true
	})

	if meta.title == "" {
		meta.title = documentTitle
	}
	return meta
}

func parsePublishedAt(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, format := range publishedAtFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// renderMarkdown renders the document body as markdown, keeping links.
func renderMarkdown(doc *html.Node) string {
	var b strings.Builder
	renderBlocks(&b, findBody(doc), true)
	return collapseBlankLines(b.String())
}

// renderText renders the document body as plain text, dropping links.
func renderText(doc *html.Node) string {
	var b strings.Builder
	renderBlocks(&b, findBody(doc), false)
	return collapseBlankLines(b.String())
}

// skippedElements never contribute content: scripts, chrome and
// navigation.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Button:   true,
}

func renderBlocks(b *strings.Builder, n *html.Node, markdown bool) {
	if n == nil {
		return
	}
	if n.Type == html.ElementNode && skippedElements[n.DataAtom] {
		return
	}

	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			text := strings.TrimSpace(inlineText(n, markdown))
			if text != "" {
				if markdown {
					level := int(n.Data[1] - '0')
					b.WriteString(strings.Repeat("#", level) + " " + text + "\n\n")
				} else {
					b.WriteString(text + "\n\n")
				}
			}
			return
		case atom.P, atom.Blockquote, atom.Figcaption, atom.Pre:
			text := strings.TrimSpace(inlineText(n, markdown))
			if text != "" {
				if markdown && n.DataAtom == atom.Blockquote {
					b.WriteString("> " + text + "\n\n")
				} else {
					b.WriteString(text + "\n\n")
				}
			}
			return
		case atom.Li:
			text := strings.TrimSpace(inlineText(n, markdown))
			if text != "" {
				if markdown {
					b.WriteString("- " + text + "\n")
				} else {
					b.WriteString(text + "\n")
				}
			}
			return
		case atom.Ul, atom.Ol:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				renderBlocks(b, c, markdown)
			}
			b.WriteString("\n")
			return
		case atom.Table:
			renderTable(b, n, markdown)
			return
		case atom.Br:
			b.WriteString("\n")
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderBlocks(b, c, markdown)
	}
}

// renderTable flattens a table row by row. Markdown output uses pipes;
// plain text joins cells with spaces.
func renderTable(b *strings.Builder, table *html.Node, markdown bool) {
	walk(table, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string
			walk(n, func(cell *html.Node) bool {
				if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
					cells = append(cells, strings.TrimSpace(inlineText(cell, markdown)))
					return false
				}
				return true
			})
			if len(cells) > 0 {
				if markdown {
					b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
				} else {
					b.WriteString(strings.Join(cells, " ") + "\n")
				}
			}
			return false
		}
		return true
	})
	b.WriteString("\n")
}

// inlineText flattens an element's inline content to one line. With
// markdown enabled, anchors become [text](href) links.
func inlineText(n *html.Node, markdown bool) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type != html.ElementNode {
			return
		}
		if skippedElements[n.DataAtom] {
			return
		}
		if markdown && n.DataAtom == atom.A {
			href := attr(n, "href")
			var inner strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				inner.WriteString(inlineText(c, markdown))
			}
			text := strings.TrimSpace(inner.String())
			if text == "" {
				return
			}
			if href == "" || strings.HasPrefix(href, "#") {
				b.WriteString(text)
			} else {
				b.WriteString("[" + text + "](" + href + ")")
			}
			b.WriteString(" ")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// textOf returns the concatenated text content of a node.
func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		return true
	})
	return b.String()
}

// walk visits nodes depth-first. fn returning false prunes the subtree.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	if body == nil {
		return doc
	}
	return body
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// collapseBlankLines trims the output and squeezes runs of blank lines
// down to one.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, trimmed)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
