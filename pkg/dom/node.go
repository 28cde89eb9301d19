package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Walk calls fn for n and every descendant in document order. Returning false
// skips the children of the current node.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// ElementsByTag returns every element below root (root included) with tag a.
func ElementsByTag(root *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		return true
	})
	return out
}

func FirstByTag(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

// ByID returns the first element below root whose id attribute is id.
func ByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Contains reports whether n is ancestor or one of its descendants.
func Contains(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// TextContent concatenates the text of n and its descendants.
func TextContent(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// StyleProperty reads one declaration from the inline style attribute.
func StyleProperty(n *html.Node, name string) string {
	for _, decl := range parseStyle(Attr(n, "style")) {
		if decl[0] == name {
			return decl[1]
		}
	}
	return ""
}

// SetStyle sets inline style declarations given as name, value pairs, keeping
// the order of existing declarations.
func SetStyle(n *html.Node, pairs ...string) {
	decls := parseStyle(Attr(n, "style"))
	for i := 0; i+1 < len(pairs); i += 2 {
		name, val := pairs[i], pairs[i+1]
		replaced := false
		for j := range decls {
			if decls[j][0] == name {
				decls[j][1] = val
				replaced = true
				break
			}
		}
		if !replaced {
			decls = append(decls, [2]string{name, val})
		}
	}
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d[0]+": "+d[1])
	}
	SetAttr(n, "style", strings.Join(parts, "; "))
}

func parseStyle(s string) [][2]string {
	var out [][2]string
	for _, part := range strings.Split(s, ";") {
		name, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		out = append(out, [2]string{name, strings.TrimSpace(val)})
	}
	return out
}
