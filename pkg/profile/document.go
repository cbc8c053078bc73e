package profile

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Script is one <script> element of a profile page
type Script struct {
	ID      string
	Type    string
	Content string
}

// Document is a parsed profile page handed to every strategy
type Document struct {
	// URL is the canonical profile URL the page was fetched from
	URL string
	// AccountID is the id taken from URL
	AccountID string
	Scripts   []Script
}

// ParseDocument collects the script elements of an HTML page
func ParseDocument(r io.Reader, canonicalURL, accountID string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	doc := &Document{URL: canonicalURL, AccountID: accountID}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			s := Script{}
			for _, a := range n.Attr {
				switch a.Key {
				case "id":
					s.ID = a.Val
				case "type":
					s.Type = a.Val
				}
			}
			var buf strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					buf.WriteString(c.Data)
				}
			}
			s.Content = buf.String()
			doc.Scripts = append(doc.Scripts, s)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return doc, nil
}

// ScriptByID returns the script with the given element id
func (d *Document) ScriptByID(id string) (Script, bool) {
	for _, s := range d.Scripts {
		if s.ID == id {
			return s, true
		}
	}
	return Script{}, false
}

// decodeObject parses a JSON object keeping numbers exact
func decodeObject(data []byte) (map[string]interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// decodeEmbedded parses an embedded data block that may be plain,
// URL-encoded or base64 JSON
func decodeEmbedded(content string) (map[string]interface{}, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false
	}
	if obj, ok := decodeObject([]byte(content)); ok {
		return obj, true
	}
	if unescaped, err := url.QueryUnescape(content); err == nil && unescaped != content {
		if obj, ok := decodeObject([]byte(unescaped)); ok {
			return obj, true
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		raw, err := enc.DecodeString(content)
		if err != nil {
			continue
		}
		if obj, ok := decodeObject(raw); ok {
			return obj, true
		}
		if unescaped, err := url.QueryUnescape(string(raw)); err == nil {
			if obj, ok := decodeObject([]byte(unescaped)); ok {
				return obj, true
			}
		}
	}
	return nil, false
}

// extractObject returns the JSON object starting at the first '{' at or
// after start, matched by brace depth outside of string literals
func extractObject(s string, start int) (string, bool) {
	open := strings.IndexByte(s[start:], '{')
	if open < 0 {
		return "", false
	}
	open += start

	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[open : i+1], true
			}
		}
	}
	return "", false
}
