package settings

import (
	"regexp"
	"strconv"
	"strings"
)

// Action maps a numeric button-action code to its human-readable label.
type Action struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var (
	actionsHeaderRe = regexp.MustCompile(`(?i)^\s*Assignable Actions\s*$`)
	actionRangeRe   = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)\s+(.+)$`)
	actionSingleRe  = regexp.MustCompile(`^(\d+)\s+(.+)$`)
)

// AssignableActions parses the lookup table out of the comment block headed by
// "Assignable Actions". Range lines like "8-17 keyboard 0-9" expand to one row
// per code, inclusive. Returns nil when no such block exists.
func (d *Document) AssignableActions() []Action {
	lines := d.actionsBlock()
	if lines == nil {
		return nil
	}

	var actions []Action
	for _, ln := range lines {
		if m := actionRangeRe.FindStringSubmatch(ln); m != nil {
			start, err1 := strconv.Atoi(m[1])
			end, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil || end < start {
				continue
			}
			for code := start; code <= end; code++ {
				actions = append(actions, Action{Code: strconv.Itoa(code), Label: m[3]})
			}
			continue
		}
		if m := actionSingleRe.FindStringSubmatch(ln); m != nil {
			actions = append(actions, Action{Code: m[1], Label: m[2]})
		}
	}
	return actions
}

// actionsBlock finds the first comment whose first non-blank line is the
// header and returns the remaining non-blank lines.
func (d *Document) actionsBlock() []string {
	for _, n := range d.nodes {
		if n.kind != nodeComment {
			continue
		}
		var lines []string
		for _, raw := range strings.Split(n.comment, "\n") {
			if trimmed := strings.TrimSpace(raw); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
		if len(lines) == 0 || !actionsHeaderRe.MatchString(lines[0]) {
			continue
		}
		return lines[1:]
	}
	return nil
}
