package council

import "strings"

const (
	ReportTitle     = "# 🏛️ AI Council Final Decree"
	AppendixHeading = "## 🔬 Individual Analyses"
)

// ComposeReport renders the final document: title, the judge's text, then an
// appendix holding each stage output between role-keyed markers. Embedded
// text is escaped (see escapeMarkers) and ExtractSection returns stage texts
// byte for byte.
func ComposeReport(ev *Evidence, verdict string) string {
	var b strings.Builder
	b.WriteString(ReportTitle + "\n")
	b.WriteString("**Regarding**: " + escapeMarkers(ev.Prompt()) + "\n\n")
	b.WriteString(escapeMarkers(verdict))
	b.WriteString("\n\n---\n\n")
	b.WriteString(AppendixHeading + "\n")
	for _, en := range ev.Entries() {
		b.WriteString("\n")
		b.WriteString(StartMarker(en.Role) + "\n")
		b.WriteString(escapeMarkers(en.Text))
		b.WriteString("\n" + EndMarker(en.Role) + "\n")
	}
	return b.String()
}
