package council

import (
	"fmt"
	"regexp"
	"strings"
)

// Marker grammar:
//
//	--- [<Role> START] ---\n<text>\n--- [<Role> END] ---
//
// A role name must not contain any of markerLiterals or a newline.
//
// Text written into a report (prompt, verdict and stage outputs) is escaped
// line by line: a line that begins with "--- [" or the appendix heading,
// after any run of backslashes, gets one more leading backslash. Extraction
// strips it again, so only lines written by ComposeReport can act as markers.
var markerLiterals = []string{"--- [", "] ---", " START", " END"}

var escapedLinePrefixes = []string{"--- [", AppendixHeading}

func StartMarker(role Role) string { return "--- [" + string(role) + " START] ---" }
func EndMarker(role Role) string   { return "--- [" + string(role) + " END] ---" }

func checkMarkerSafe(role Role) error {
	s := string(role)
	if strings.TrimSpace(s) == "" || strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("%w: role %q cannot be used as an appendix key", ErrBadRegistry, s)
	}
	for _, lit := range markerLiterals {
		if strings.Contains(s, lit) {
			return fmt.Errorf("%w: role %q contains marker literal %q", ErrBadRegistry, s, lit)
		}
	}
	return nil
}

// Section is one appendix block.
type Section struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

var startRe = regexp.MustCompile(`(?m)^--- \[(.+?) START\] ---\n`)

func markerLike(line string) bool {
	rest := strings.TrimLeft(line, `\`)
	for _, p := range escapedLinePrefixes {
		if strings.HasPrefix(rest, p) {
			return true
		}
	}
	return false
}

// escapeMarkers makes text safe to embed in a report.
func escapeMarkers(text string) string {
	if !strings.Contains(text, "--- [") && !strings.Contains(text, AppendixHeading) {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if markerLike(l) {
			lines[i] = `\` + l
		}
	}
	return strings.Join(lines, "\n")
}

// unescapeMarkers reverses escapeMarkers.
func unescapeMarkers(text string) string {
	if !strings.Contains(text, `\`) {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, `\`) && markerLike(l) {
			lines[i] = l[1:]
		}
	}
	return strings.Join(lines, "\n")
}

// appendixBody limits parsing to the appendix when the report has one. Escaped
// prompt and verdict lines cannot form the heading, so the first match is the
// one ComposeReport wrote.
func appendixBody(report string) string {
	if i := strings.Index(report, "\n"+AppendixHeading+"\n"); i >= 0 {
		return report[i:]
	}
	return report
}

// ExtractSection returns the text between role's markers.
func ExtractSection(report string, role Role) (string, bool) {
	for _, sec := range ExtractAppendix(report) {
		if sec.Role == role {
			return sec.Text, true
		}
	}
	return "", false
}

// ExtractAppendix returns every well-formed section in report order. Sections
// are scanned left to right, so marker lines quoted inside a section's text
// are never mistaken for the start of another section.
func ExtractAppendix(report string) []Section {
	body := appendixBody(report)
	var out []Section
	seen := map[Role]bool{}
	pos := 0
	for pos < len(body) {
		loc := startRe.FindStringSubmatchIndex(body[pos:])
		if loc == nil {
			break
		}
		role := Role(body[pos+loc[2] : pos+loc[3]])
		textStart := pos + loc[1]
		text, n, ok := closeSection(body[textStart:], role)
		if !ok {
			pos = textStart
			continue
		}
		if !seen[role] {
			seen[role] = true
			out = append(out, Section{Role: role, Text: unescapeMarkers(text)})
		}
		pos = textStart + n
	}
	return out
}

// closeSection finds role's end marker in rest. The marker must end its line.
// It returns the section text and the number of bytes consumed.
func closeSection(rest string, role Role) (string, int, bool) {
	end := "\n" + EndMarker(role)
	off := 0
	for {
		j := strings.Index(rest[off:], end)
		if j < 0 {
			return "", 0, false
		}
		k := off + j + len(end)
		if k == len(rest) || rest[k] == '\n' {
			return rest[:off+j], k, true
		}
		off = k
	}
}
