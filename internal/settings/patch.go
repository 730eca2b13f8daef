package settings

import (
	"os"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/locks"
	"git.home.luguber.info/inful/gundeck/internal/textedit"
)

// KV is one desired key/value pair for a patch.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Patcher applies layout-preserving patches to live settings files. All writes
// to one file are serialized through the shared keyed lock.
type Patcher struct {
	locks *locks.Keyed
}

// NewPatcher creates a Patcher using the given lock set.
func NewPatcher(l *locks.Keyed) *Patcher {
	if l == nil {
		l = locks.New()
	}
	return &Patcher{locks: l}
}

var (
	addIndentRe = regexp.MustCompile(`(?m)^([ \t]*)<add\b`)
)

// Patch updates the settings file at path so every desired key carries the
// desired value, touching nothing else:
//
//   - existing <add> tags get only their value attribute contents replaced,
//     keeping the original quote character; a tag without a value attribute
//     gains one immediately after its key attribute
//   - desired keys not present in the file are appended as new tags directly
//     before </appSettings>, using the indentation of existing entries and the
//     file's newline convention
//   - the file is rewritten only when the result differs byte-for-byte
//
// Player-two entries are stored under their logical key plus the P2 suffix.
func (p *Patcher) Patch(path string, player1, player2 []KV) error {
	return p.locks.WithPath(path, func() error {
		return patchFile(path, player1, player2)
	})
}

func patchFile(path string, player1, player2 []KV) error {
	desired, order := desiredMap(player1, player2)

	if err := EnsureStub(path); err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.IOError(err, "failed to read settings file")
	}
	original := string(raw)

	// Locate the insertion anchor before touching anything, so a malformed
	// file is rejected without any mutation.
	closing := containerCloseRe.FindStringIndex(original)
	if closing == nil {
		return errors.StructureError("could not locate </appSettings> in settings file").
			WithContext("path", path)
	}

	spans, found := patchSpans(original, desired)

	updated, err := textedit.Apply(raw, spans)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.SeverityError, "failed to apply settings edits")
	}

	var missing []string
	for _, k := range order {
		if !found[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		updated = insertMissing(updated, missing, desired)
	}

	if string(updated) == original {
		return nil
	}
	if err := os.WriteFile(path, updated, 0o664); err != nil {
		return errors.IOError(err, "failed to write settings file")
	}
	return nil
}

// desiredMap flattens both player lists into stored-key form, remembering
// insertion order for deterministic appends.
func desiredMap(player1, player2 []KV) (map[string]string, []string) {
	desired := make(map[string]string)
	var order []string
	add := func(key, value string) {
		if key == "" {
			return
		}
		if _, seen := desired[key]; !seen {
			order = append(order, key)
		}
		desired[key] = value
	}
	for _, kv := range player1 {
		add(kv.Key, kv.Value)
	}
	for _, kv := range player2 {
		add(kv.Key+scopeSuffix, kv.Value)
	}
	return desired, order
}

// patchSpans scans every <add> tag and produces value edits for tags whose key
// is in the desired map. Tags outside the map are left completely alone.
func patchSpans(text string, desired map[string]string) ([]textedit.Span, map[string]bool) {
	var spans []textedit.Span
	found := make(map[string]bool)

	for _, loc := range addTagRe.FindAllStringIndex(text, -1) {
		tag := text[loc[0]:loc[1]]
		key, _, ok := attrValue(tag, "key")
		if !ok {
			continue
		}
		key = unescapeAttr(key)
		want, wanted := desired[key]
		if !wanted {
			continue
		}
		found[key] = true
		escaped := escapeAttr(want)

		if vs, ve, _, _, _, ok := attrSpan(tag, "value"); ok {
			// Replace only the value contents, keeping the quote character.
			if tag[vs:ve] == escaped {
				continue
			}
			spans = append(spans, textedit.Span{
				Start:       loc[0] + vs,
				End:         loc[0] + ve,
				Replacement: []byte(escaped),
			})
			continue
		}
		// No value attribute: insert one right after the key attribute.
		if _, _, _, _, tokEnd, ok := attrSpan(tag, "key"); ok {
			insert := ` value="` + escaped + `"`
			spans = append(spans, textedit.Span{
				Start:       loc[0] + tokEnd,
				End:         loc[0] + tokEnd,
				Replacement: []byte(insert),
			})
		}
	}
	return spans, found
}

// insertMissing appends new entry tags immediately before the closing
// container marker, matching the file's indentation and newline style.
func insertMissing(raw []byte, missing []string, desired map[string]string) []byte {
	text := string(raw)
	closing := containerCloseRe.FindStringIndex(text)
	if closing == nil {
		// Checked before editing; edits never remove the marker.
		return raw
	}

	indent := "    "
	if m := addIndentRe.FindStringSubmatch(text); m != nil {
		indent = m[1]
	}
	newline := "\n"
	if strings.Contains(text, "\r\n") {
		newline = "\r\n"
	}

	lines := make([]string, 0, len(missing))
	for _, key := range missing {
		lines = append(lines, indent+`<add key="`+escapeAttr(key)+`" value="`+escapeAttr(desired[key])+`" />`)
	}
	insertion := newline + strings.Join(lines, newline) + newline

	out := make([]byte, 0, len(raw)+len(insertion))
	out = append(out, raw[:closing[0]]...)
	out = append(out, insertion...)
	out = append(out, raw[closing[0]:]...)
	return out
}
