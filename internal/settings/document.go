// Package settings parses and patches the lightgun driver's XML settings file.
//
// The file is never round-tripped through an XML serializer: reads scan the
// raw text into an ordered node sequence, and writes are minimal byte-range
// edits, so comments, processing instructions, attribute order, and every
// untouched byte survive verbatim.
package settings

import (
	"os"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/gundeck/internal/errors"
)

// Scope identifies which player an entry belongs to. Player-two entries carry
// the P2 suffix on their stored key; the logical key has it stripped.
type Scope string

const (
	ScopePlayer1 Scope = "player1"
	ScopePlayer2 Scope = "player2"

	scopeSuffix = "P2"
)

// Entry is one <add key value/> setting with its associated comment.
type Entry struct {
	// Key is the logical key, suffix stripped for player-two entries.
	Key string `json:"key"`
	// StoredKey is the key attribute exactly as written in the file.
	StoredKey string `json:"-"`
	Value     string `json:"value"`
	Comment   string `json:"comment,omitempty"`
	Scope     Scope  `json:"-"`
}

// nodeKind distinguishes children of the appSettings container.
type nodeKind int

const (
	nodeEntry nodeKind = iota
	nodeComment
	nodeOther
)

// node is one scanned child of the container, in document order.
type node struct {
	kind    nodeKind
	raw     string
	key     string // entry nodes: stored key attribute, unescaped
	value   string // entry nodes: value attribute, unescaped
	comment string // comment nodes: trimmed inner text
}

// Document is a loaded settings file. It keeps the raw bytes; nothing is ever
// written back from this model.
type Document struct {
	Path  string
	Raw   []byte
	nodes []node
}

var (
	containerOpenRe  = regexp.MustCompile(`(?i)<appSettings[^>]*>`)
	containerCloseRe = regexp.MustCompile(`(?i)</appSettings\s*>`)
	addTagRe         = regexp.MustCompile(`(?i)<add\b[^>]*>`)
)

// Load reads path into a Document, creating a minimal stub first if the file
// is absent.
func Load(path string) (*Document, error) {
	if err := EnsureStub(path); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IOError(err, "failed to read settings file")
	}
	doc := &Document{Path: path, Raw: raw}
	doc.scan()
	return doc, nil
}

// scan tokenizes the appSettings container into an ordered node list.
func (d *Document) scan() {
	text := string(d.Raw)
	open := containerOpenRe.FindStringIndex(text)
	if open == nil {
		return
	}
	region := text[open[1]:]
	if close := containerCloseRe.FindStringIndex(region); close != nil {
		region = region[:close[0]]
	}

	for i := 0; i < len(region); {
		rest := region[i:]
		switch {
		case strings.HasPrefix(rest, "<!--"):
			end := strings.Index(rest, "-->")
			if end < 0 {
				return
			}
			inner := strings.TrimSpace(rest[len("<!--"):end])
			d.nodes = append(d.nodes, node{kind: nodeComment, raw: rest[:end+3], comment: inner})
			i += end + 3
		case hasTagPrefix(rest, "<add"):
			end := strings.IndexByte(rest, '>')
			if end < 0 {
				return
			}
			tag := rest[:end+1]
			n := node{kind: nodeEntry, raw: tag}
			if v, _, ok := attrValue(tag, "key"); ok {
				n.key = unescapeAttr(v)
			}
			if v, _, ok := attrValue(tag, "value"); ok {
				n.value = unescapeAttr(v)
			}
			if n.key == "" {
				n.kind = nodeOther
			}
			d.nodes = append(d.nodes, n)
			i += end + 1
		case strings.HasPrefix(rest, "<"):
			end := strings.IndexByte(rest, '>')
			if end < 0 {
				return
			}
			d.nodes = append(d.nodes, node{kind: nodeOther, raw: rest[:end+1]})
			i += end + 1
		default:
			// Text content between nodes; skip to the next markup.
			next := strings.IndexByte(rest, '<')
			if next < 0 {
				return
			}
			i += next
		}
	}
}

// Entries returns all settings in document order, each paired with its
// adjacent comment. The comment immediately following an entry wins; the
// preceding one is the fallback.
func (d *Document) Entries() []Entry {
	var out []Entry
	for i, n := range d.nodes {
		if n.kind != nodeEntry {
			continue
		}
		comment := ""
		if i+1 < len(d.nodes) && d.nodes[i+1].kind == nodeComment {
			comment = d.nodes[i+1].comment
		} else if i > 0 && d.nodes[i-1].kind == nodeComment {
			comment = d.nodes[i-1].comment
		}

		e := Entry{Key: n.key, StoredKey: n.key, Value: n.value, Comment: comment, Scope: ScopePlayer1}
		if strings.HasSuffix(n.key, scopeSuffix) {
			e.Key = strings.TrimSuffix(n.key, scopeSuffix)
			e.Scope = ScopePlayer2
		}
		out = append(out, e)
	}
	return out
}

// SplitPlayers splits entries into the two scopes, preserving document order.
func (d *Document) SplitPlayers() (player1, player2 []Entry) {
	for _, e := range d.Entries() {
		if e.Scope == ScopePlayer2 {
			player2 = append(player2, e)
		} else {
			player1 = append(player1, e)
		}
	}
	return player1, player2
}

// hasTagPrefix reports whether s starts a tag named by prefix (</add…> and
// <addify…> must not match).
func hasTagPrefix(s, prefix string) bool {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return false
	}
	if len(s) == len(prefix) {
		return false
	}
	switch s[len(prefix)] {
	case ' ', '\t', '\r', '\n', '/', '>':
		return true
	}
	return false
}

// attrSpan locates the named attribute's value inside a single tag's text.
// It returns the byte span of the value contents (quotes excluded), the quote
// character used, and the span of the whole name="value" token.
func attrSpan(tag, name string) (valStart, valEnd int, quote byte, tokStart, tokEnd int, ok bool) {
	i := 1 // skip '<'
	// Skip the tag name.
	for i < len(tag) && !isSpace(tag[i]) && tag[i] != '>' {
		i++
	}
	for i < len(tag) {
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		start := i
		for i < len(tag) && isNameByte(tag[i]) {
			i++
		}
		if i == start {
			i++
			continue
		}
		attr := tag[start:i]
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || tag[i] != '=' {
			continue // bare attribute
		}
		i++
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || (tag[i] != '"' && tag[i] != '\'') {
			continue
		}
		q := tag[i]
		i++
		vs := i
		for i < len(tag) && tag[i] != q {
			i++
		}
		if i >= len(tag) {
			return 0, 0, 0, 0, 0, false
		}
		if strings.EqualFold(attr, name) {
			return vs, i, q, start, i + 1, true
		}
		i++
	}
	return 0, 0, 0, 0, 0, false
}

// attrValue returns the named attribute's raw value and quote character.
func attrValue(tag, name string) (string, byte, bool) {
	vs, ve, q, _, _, ok := attrSpan(tag, name)
	if !ok {
		return "", 0, false
	}
	return tag[vs:ve], q, true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' ||
		b == '-' || b == '_' || b == ':' || b == '.'
}
