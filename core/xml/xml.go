// Package xml wraps xmlquery for the XML documents found inside books:
// container manifests, package documents, navigation documents and
// FictionBook files.
//
// Security Notes:
//   - The xmlquery library parses with Go's encoding/xml, which never fetches
//     external entities, so XXE is not a concern.
//   - Queries should use local-name() tests. Publishers are inconsistent about
//     namespace prefixes.
package xml

import (
	"bytes"
	stdxml "encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/FocuswithJustin/JuniperReader/core/geometry"
)

// NamespaceXML is the namespace bound to the reserved xml: prefix.
const NamespaceXML = "http://www.w3.org/XML/1998/namespace"

// Document is a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node is an XML element.
type Node struct {
	node *xmlquery.Node
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseString parses XML text.
func ParseString(s string) (*Document, error) {
	return ParseReader(strings.NewReader(s))
}

// ParseReader parses XML from r.
func ParseReader(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseLenient parses XHTML-like markup that is not strictly well formed:
// HTML entities such as &nbsp; are resolved, HTML void elements close
// themselves, and a declared charset other than UTF-8 is decoded.
func ParseLenient(data []byte) (*Document, error) {
	root, err := xmlquery.ParseWithOptions(bytes.NewReader(data), xmlquery.ParserOptions{
		Decoder: &xmlquery.DecoderOptions{
			Strict:        false,
			AutoClose:     stdxml.HTMLAutoClose,
			Entity:        stdxml.HTMLEntity,
			CharsetReader: charsetReader,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Root returns the document element.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query and returns matching nodes.
func (d *Document) XPath(expr string) ([]*Node, error) {
	return queryAll(d.root, expr)
}

// XPathFirst executes an XPath query and returns the first matching node, or
// nil when nothing matches.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	return queryFirst(d.root, expr)
}

// XPath executes an XPath query relative to n.
func (n *Node) XPath(expr string) ([]*Node, error) {
	return queryAll(n.node, expr)
}

// XPathFirst executes an XPath query relative to n.
func (n *Node) XPathFirst(expr string) (*Node, error) {
	return queryFirst(n.node, expr)
}

func queryAll(from *xmlquery.Node, expr string) ([]*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes := xmlquery.QuerySelectorAll(from, compiled)
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

func queryFirst(from *xmlquery.Node, expr string) (*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	n := xmlquery.QuerySelector(from, compiled)
	if n == nil {
		return nil, nil
	}
	return &Node{node: n}, nil
}

// Raw returns the underlying xmlquery node for callers that need to walk
// mixed content.
func (n *Node) Raw() *xmlquery.Node {
	if n == nil {
		return nil
	}
	return n.node
}

// Name returns the element's local name.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the trimmed text content of the node and its descendants.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return strings.TrimSpace(n.node.InnerText())
}

// InnerXML returns the serialized children of the node.
func (n *Node) InnerXML() string {
	if n == nil || n.node == nil {
		return ""
	}
	var buf bytes.Buffer
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		buf.WriteString(child.OutputXML(true))
	}
	return buf.String()
}

// OuterXML returns the serialized node.
func (n *Node) OuterXML() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.OutputXML(true)
}

// Children returns the child elements.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Attr returns the value of an attribute. A prefixed name such as
// "xml:lang" or "epub:type" matches on the local name and the prefix or its
// namespace URI. An unprefixed name only matches unprefixed attributes.
func (n *Node) Attr(name string) string {
	if n == nil || n.node == nil {
		return ""
	}
	prefix, local := "", name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		prefix, local = name[:i], name[i+1:]
	}
	for _, a := range n.node.Attr {
		if a.Name.Local != local {
			continue
		}
		switch {
		case prefix == "" && a.Name.Space == "":
			return a.Value
		case prefix != "" && (a.Name.Space == prefix || a.NamespaceURI == namespaceFor(prefix) || a.Name.Space == namespaceFor(prefix)):
			return a.Value
		}
	}
	return ""
}

func namespaceFor(prefix string) string {
	switch prefix {
	case "xml":
		return NamespaceXML
	case "epub":
		return "http://www.idpf.org/2007/ops"
	default:
		return "\x00"
	}
}

// Parent returns the parent element, or nil at the document element.
func (n *Node) Parent() geometry.Node {
	if n == nil || n.node == nil {
		return nil
	}
	p := n.node.Parent
	if p == nil || p.Type != xmlquery.ElementNode {
		return nil
	}
	return &Node{node: p}
}
