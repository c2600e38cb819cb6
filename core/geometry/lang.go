package geometry

// Node is an element in the selection's document tree.
type Node interface {
	// Attr returns the value of the named attribute, "" when absent.
	// Lang lookups use the names "lang" and "xml:lang".
	Attr(name string) string
	// Parent returns the parent element, or nil at the root.
	Parent() Node
}

// Lang returns the language of n, walking up the ancestors until an element
// declares lang or xml:lang. It returns "" if none does.
func Lang(n Node) string {
	for n != nil {
		if l := n.Attr("lang"); l != "" {
			return l
		}
		if l := n.Attr("xml:lang"); l != "" {
			return l
		}
		n = n.Parent()
	}
	return ""
}
