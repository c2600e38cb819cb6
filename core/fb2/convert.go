package fb2

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/encoding"
)

// part is the content of one generated section.
type part struct {
	href  string
	node  *xmlquery.Node   // section element, or the body itself
	lead  []*xmlquery.Node // body-level title and epigraphs before the first section
	notes bool
}

type converter struct {
	ids   map[string]string // element id to the href of the part holding it
	count int
	notes int
}

// split cuts a body into parts. The main body yields one part per top-level
// section. A notes body is kept whole.
func (c *converter) split(body *xmlquery.Node, notes bool) []part {
	if notes {
		c.notes++
		href := "notes.xhtml"
		if c.notes > 1 {
			href = fmt.Sprintf("notes-%d.xhtml", c.notes)
		}
		return []part{{href: href, node: body, notes: true}}
	}

	var parts []part
	var lead []*xmlquery.Node
	for n := body.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != xmlquery.ElementNode {
			continue
		}
		if n.Data != "section" {
			lead = append(lead, n)
			continue
		}
		parts = append(parts, part{href: c.nextHref(), node: n, lead: lead})
		lead = nil
	}
	if len(parts) == 0 {
		parts = append(parts, part{href: c.nextHref(), node: body})
	} else if len(lead) > 0 {
		last := &parts[len(parts)-1]
		last.lead = append(last.lead, lead...)
	}
	return parts
}

func (c *converter) nextHref() string {
	href := fmt.Sprintf("section-%d.xhtml", c.count)
	c.count++
	return href
}

func (c *converter) indexIDs(parts []part) {
	var walk func(n *xmlquery.Node, href string)
	walk = func(n *xmlquery.Node, href string) {
		if n.Type == xmlquery.ElementNode {
			if id := n.SelectAttr("id"); id != "" {
				if _, seen := c.ids[id]; !seen {
					c.ids[id] = href
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, href)
		}
	}
	for _, p := range parts {
		for _, n := range p.lead {
			walk(n, p.href)
		}
		walk(p.node, p.href)
	}
}

// document renders a part as a standalone XHTML document.
func (c *converter) document(p part, lang string) string {
	var w strings.Builder
	w.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	w.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"`)
	if lang != "" {
		fmt.Fprintf(&w, ` xml:lang="%s" lang="%s"`, encoding.EscapeXMLAttr(lang), encoding.EscapeXMLAttr(lang))
	}
	w.WriteString(">\n<head><title>")
	w.WriteString(encoding.EscapeXMLText(titleText(p.node)))
	w.WriteString("</title></head>\n<body>\n")
	for _, n := range p.lead {
		c.render(&w, n, p.href, 0)
	}
	if p.node.Data == "section" {
		c.render(&w, p.node, p.href, 0)
	} else {
		c.children(&w, p.node, p.href, 0)
	}
	w.WriteString("\n</body>\n</html>\n")
	return w.String()
}

var simple = map[string]string{
	"p":             "p",
	"emphasis":      "em",
	"strong":        "strong",
	"strikethrough": "del",
	"sub":           "sub",
	"sup":           "sup",
	"code":          "code",
	"table":         "table",
	"tr":            "tr",
	"td":            "td",
	"th":            "th",
}

var classed = map[string][2]string{
	"subtitle":    {"p", "subtitle"},
	"v":           {"p", "verse"},
	"text-author": {"p", "text-author"},
	"epigraph":    {"blockquote", "epigraph"},
	"cite":        {"blockquote", "cite"},
	"poem":        {"div", "poem"},
	"stanza":      {"div", "stanza"},
	"annotation":  {"div", "annotation"},
}

func (c *converter) render(w *strings.Builder, n *xmlquery.Node, href string, depth int) {
	switch n.Type {
	case xmlquery.TextNode, xmlquery.CharDataNode:
		w.WriteString(encoding.EscapeXMLText(n.Data))
		return
	case xmlquery.ElementNode:
	default:
		return
	}

	switch n.Data {
	case "section":
		c.open(w, n, "div", "section")
		c.children(w, n, href, depth+1)
		w.WriteString("</div>")
	case "title":
		tag := fmt.Sprintf("h%d", min(depth+1, 6))
		c.open(w, n, tag, "")
		first := true
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode && child.Data == "p" {
				if !first {
					w.WriteString("<br/>")
				}
				first = false
				c.children(w, child, href, depth)
				continue
			}
			if child.Type == xmlquery.ElementNode {
				c.render(w, child, href, depth)
			}
		}
		fmt.Fprintf(w, "</%s>", tag)
	case "empty-line":
		w.WriteString("<br/>")
	case "image":
		src := strings.TrimPrefix(xlinkHref(n), "#")
		fmt.Fprintf(w, `<img src="%s" alt=""/>`, encoding.EscapeXMLAttr(binaryHref(src)))
	case "a":
		target := c.link(xlinkHref(n), href)
		w.WriteString(`<a href="` + encoding.EscapeXMLAttr(target) + `"`)
		if n.SelectAttr("type") == "note" {
			w.WriteString(` class="noteref"`)
		}
		if id := n.SelectAttr("id"); id != "" {
			w.WriteString(` id="` + encoding.EscapeXMLAttr(id) + `"`)
		}
		w.WriteString(">")
		c.children(w, n, href, depth)
		w.WriteString("</a>")
	default:
		if tag, ok := simple[n.Data]; ok {
			c.open(w, n, tag, "")
			c.children(w, n, href, depth)
			fmt.Fprintf(w, "</%s>", tag)
			return
		}
		if tc, ok := classed[n.Data]; ok {
			c.open(w, n, tc[0], tc[1])
			c.children(w, n, href, depth)
			fmt.Fprintf(w, "</%s>", tc[0])
			return
		}
		c.children(w, n, href, depth)
	}
}

func (c *converter) children(w *strings.Builder, n *xmlquery.Node, href string, depth int) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.render(w, child, href, depth)
	}
}

func (c *converter) open(w *strings.Builder, n *xmlquery.Node, tag, class string) {
	w.WriteString("<" + tag)
	if id := n.SelectAttr("id"); id != "" {
		w.WriteString(` id="` + encoding.EscapeXMLAttr(id) + `"`)
	}
	if class != "" {
		w.WriteString(` class="` + class + `"`)
	}
	w.WriteString(">")
}

// link rewrites an internal "#id" reference to the generated file that holds
// the id. External links pass through.
func (c *converter) link(ref, from string) string {
	if !strings.HasPrefix(ref, "#") {
		return ref
	}
	id := ref[1:]
	file, ok := c.ids[id]
	if !ok || file == from {
		return ref
	}
	return file + ref
}

// tocItem builds the contents entry for a top-level section and its titled
// descendants.
func (c *converter) tocItem(n *xmlquery.Node, href string) (book.TOCItem, bool) {
	if n.Data != "section" {
		return book.TOCItem{}, false
	}
	item := book.TOCItem{Label: titleText(n), Href: href}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode || child.Data != "section" {
			continue
		}
		target := href
		if id := child.SelectAttr("id"); id != "" {
			target = href + "#" + id
		}
		sub, ok := c.tocItem(child, target)
		if !ok {
			continue
		}
		if sub.Label == "" {
			item.Subitems = append(item.Subitems, sub.Subitems...)
			continue
		}
		item.Subitems = append(item.Subitems, sub)
	}
	if item.Label == "" && len(item.Subitems) == 0 {
		return item, false
	}
	return item, true
}

func titleText(n *xmlquery.Node) string {
	var title *xmlquery.Node
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == "title" {
			title = child
			break
		}
	}
	if title == nil {
		return ""
	}
	var lines []string
	for child := title.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		if s := strings.Join(strings.Fields(child.InnerText()), " "); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return strings.Join(strings.Fields(title.InnerText()), " ")
	}
	return strings.Join(lines, " ")
}
