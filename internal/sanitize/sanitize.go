// Package sanitize rewrites untrusted email bodies into markup that is safe
// to render. Message bodies are attacker-controlled content shown to the
// user, so this is a hard security boundary: scripts, styles, iframes,
// forms, and event-bearing markup are removed unconditionally regardless of
// nesting, and only an explicit allow-list of elements and attributes
// survives.
package sanitize

import (
	stdhtml "html"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// BodyView is the display-ready rendering of a message body.
type BodyView struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// allowedTags are the structural and text-level elements that survive
// sanitization. Anything else is unwrapped: the element goes away, its
// children are kept and re-examined.
var allowedTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "blockquote": true, "br": true,
	"code": true, "div": true, "dl": true, "dt": true, "dd": true,
	"em": true, "figure": true, "figcaption": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"img": true, "i": true, "li": true, "ol": true, "p": true, "pre": true,
	"span": true, "strong": true, "table": true, "tbody": true, "td": true,
	"th": true, "thead": true, "tr": true, "ul": true,
}

// droppedTags are removed together with their entire subtree.
var droppedTags = map[string]bool{
	"script": true, "style": true, "link": true, "meta": true,
	"title": true, "iframe": true, "object": true, "embed": true,
	"form": true,
}

var allowedAttrs = map[string]map[string]bool{
	"a":   {"href": true, "title": true},
	"img": {"src": true, "alt": true, "width": true, "height": true, "loading": true},
	"td":  {"colspan": true, "rowspan": true},
	"th":  {"colspan": true, "rowspan": true},
}

var (
	zeroWidthRE       = regexp.MustCompile("[\u200b-\u200f\ufeff]+")
	zeroWidthEntityRE = regexp.MustCompile(`(?i)&(zwj|zwnj);|&#820[45];`)
	controlRE         = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	trailingSpaceRE   = regexp.MustCompile(`[ \t]+\n`)
	multiNewlineRE    = regexp.MustCompile(`\n{3,}`)
	blankLineRE       = regexp.MustCompile(`\n{2,}`)
	whitespaceRE      = regexp.MustCompile(`\s+`)
	tagRE             = regexp.MustCompile(`<[^>]+>`)
	leadingIntRE      = regexp.MustCompile(`^[+-]?[0-9]+`)
)

// Sanitize parses untrusted HTML and returns the allow-list-filtered markup.
// Returns the empty string when nothing renderable survives or the input
// cannot be parsed; callers fall back to escaped plain text.
func Sanitize(input string) string {
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return ""
	}
	body := findElement(doc, "body")
	if body == nil {
		return ""
	}
	clean(body)

	var buf strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	out := StripZeroWidth(buf.String())
	if strings.TrimSpace(out) == "" {
		return ""
	}
	return out
}

// clean walks n's children, removing dropped subtrees, unwrapping elements
// outside the allow-list, and filtering attributes on the survivors.
// Unwrapped children are re-examined in place, so disallowed nesting cannot
// smuggle anything through.
func clean(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		switch c.Type {
		case html.ElementNode:
			tag := strings.ToLower(c.Data)
			switch {
			case droppedTags[tag]:
				n.RemoveChild(c)
			case !allowedTags[tag]:
				first := c.FirstChild
				for c.FirstChild != nil {
					grand := c.FirstChild
					c.RemoveChild(grand)
					n.InsertBefore(grand, c)
				}
				n.RemoveChild(c)
				if first != nil {
					next = first
				}
			default:
				filterAttributes(c, tag)
				clean(c)
			}
		case html.TextNode:
			// keep
		default:
			n.RemoveChild(c)
		}
		c = next
	}
}

func filterAttributes(el *html.Node, tag string) {
	allowed := allowedAttrs[tag]
	kept := make([]html.Attribute, 0, len(el.Attr))
	var hrefKept, srcKept, loadingKept bool

	for _, attr := range el.Attr {
		name := strings.ToLower(attr.Key)
		if attr.Namespace != "" || !allowed[name] {
			continue
		}
		switch {
		case tag == "a" && name == "href":
			val := strings.TrimSpace(attr.Val)
			low := strings.ToLower(val)
			if val == "" || strings.HasPrefix(low, "javascript:") || strings.HasPrefix(low, "data:") {
				continue
			}
			kept = append(kept, html.Attribute{Key: "href", Val: val})
			hrefKept = true
		case tag == "img" && name == "src":
			val := strings.TrimSpace(attr.Val)
			if !isHTTPURL(val) && !isDataImage(val) {
				continue
			}
			kept = append(kept, html.Attribute{Key: "src", Val: val})
			srcKept = true
		case tag == "img" && (name == "width" || name == "height"):
			size, ok := parseDimension(attr.Val)
			if !ok {
				continue
			}
			kept = append(kept, html.Attribute{Key: name, Val: strconv.Itoa(size)})
		case tag == "img" && name == "loading":
			val := strings.ToLower(strings.TrimSpace(attr.Val))
			if val != "lazy" && val != "auto" {
				val = "lazy"
			}
			kept = append(kept, html.Attribute{Key: "loading", Val: val})
			loadingKept = true
		default:
			kept = append(kept, html.Attribute{Key: name, Val: attr.Val})
		}
	}

	// Surviving links open in a new context without referrer or opener
	// leakage; images default to lazy loading.
	if tag == "a" && hrefKept {
		kept = append(kept,
			html.Attribute{Key: "target", Val: "_blank"},
			html.Attribute{Key: "rel", Val: "noopener noreferrer"},
		)
	}
	if tag == "img" && srcKept && !loadingKept {
		kept = append(kept, html.Attribute{Key: "loading", Val: "lazy"})
	}

	el.Attr = kept
}

func isHTTPURL(val string) bool {
	low := strings.ToLower(val)
	return strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://")
}

func isDataImage(val string) bool {
	return strings.HasPrefix(strings.ToLower(val), "data:image/")
}

// parseDimension extracts a leading integer the way browsers do, so values
// like "100px" clamp to 100 rather than being dropped.
func parseDimension(val string) (int, bool) {
	match := leadingIntRE.FindString(strings.TrimSpace(val))
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ExtractText returns the text content of sanitized HTML with whitespace
// collapsed.
func ExtractText(input string) string {
	if input == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return strings.TrimSpace(whitespaceRE.ReplaceAllString(tagRE.ReplaceAllString(input, " "), " "))
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(sb.String(), " "))
}

// StripZeroWidth removes zero-width characters and their entity spellings.
func StripZeroWidth(s string) string {
	s = zeroWidthEntityRE.ReplaceAllString(s, "")
	return zeroWidthRE.ReplaceAllString(s, "")
}

// NormalizePlainText cleans plain text for display: zero-width and control
// characters out, CRLF to LF, non-breaking spaces to spaces, trailing
// whitespace trimmed, newline runs collapsed.
func NormalizePlainText(s string) string {
	if s == "" {
		return ""
	}
	s = StripZeroWidth(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = controlRE.ReplaceAllString(s, " ")
	s = trailingSpaceRE.ReplaceAllString(s, "\n")
	s = multiNewlineRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// RenderPlainText wraps plain text in escaped paragraph markup, split on
// blank-line boundaries, with line breaks preserved within paragraphs.
func RenderPlainText(text string) string {
	if text == "" {
		return ""
	}
	paragraphs := blankLineRE.Split(StripZeroWidth(text), -1)
	var sb strings.Builder
	for _, p := range paragraphs {
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(stdhtml.EscapeString(p), "\n", "<br />"))
		sb.WriteString("</p>")
	}
	return sb.String()
}

// FormatBody produces the display rendering of a message body: sanitized
// HTML when the body looks like HTML and anything safe survives, otherwise
// escaped plain-text paragraphs, otherwise the snippet, otherwise a
// placeholder.
func FormatBody(rawBody, snippet string) BodyView {
	trimmed := strings.TrimSpace(rawBody)
	if trimmed != "" {
		if tagRE.MatchString(trimmed) {
			if safe := Sanitize(trimmed); safe != "" {
				text := ExtractText(safe)
				if text == "" {
					text = NormalizePlainText(snippet)
				}
				return BodyView{HTML: safe, Text: text}
			}
		}
		if normalized := NormalizePlainText(trimmed); normalized != "" {
			return BodyView{HTML: RenderPlainText(normalized), Text: normalized}
		}
	}
	if normalizedSnippet := NormalizePlainText(snippet); normalizedSnippet != "" {
		return BodyView{HTML: RenderPlainText(normalizedSnippet), Text: normalizedSnippet}
	}
	return BodyView{HTML: "<p>No preview available.</p>", Text: ""}
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
