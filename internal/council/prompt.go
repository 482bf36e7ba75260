package council

import (
	"fmt"
	"strings"
)

var slotHeading = map[Slot]string{
	SlotResearch:   "Research",
	SlotAnalysis:   "Analysis",
	SlotPhilosophy: "Alternative Perspective",
}

// StagePrompt builds the prompt for a non-judge stage from the original
// request and every output recorded so far.
func StagePrompt(role Role, ev *Evidence) (string, error) {
	prompt := ev.Prompt()
	prior := priorBlock(ev)
	switch role {
	case RoleResearcher:
		return fmt.Sprintf("Perform a web search to gather raw data, facts, and diverse sources about: %q. "+
			"Synthesize the top 5-7 key points into a bulleted list.", prompt), nil
	case RoleAnalyst:
		return fmt.Sprintf("Based on this research data:\n\n%s\n\n"+
			"Provide a concise, practical analysis of the original topic: %q. "+
			"Identify the main arguments and implications.", prior, prompt), nil
	case RolePhilosopher:
		return fmt.Sprintf("Here is research and an analysis on %q:\n\n%s\n\n"+
			"Now, provide a contrarian or alternative perspective. Discuss the long-term consequences, "+
			"ethical considerations, or hidden assumptions.", prompt, prior), nil
	default:
		return "", fmt.Errorf("%w: no stage prompt for %q", ErrBadRegistry, role)
	}
}

func priorBlock(ev *Evidence) string {
	entries := ev.Entries()
	parts := make([]string, 0, len(entries))
	for _, en := range entries {
		parts = append(parts, slotHeading[en.Slot]+":\n"+en.Text)
	}
	return strings.Join(parts, "\n\n")
}

var judgeLabel = map[Role]string{
	RoleResearcher:  "Findings (Raw Data)",
	RoleAnalyst:     "Interpretation (Practical View)",
	RolePhilosopher: "Perspective (Alternative/Ethical View)",
}

// Headings the judge must produce.
const (
	VerdictHeading   = "## ⚖️ Final Verdict"
	ReasoningHeading = "## 🏛️ The Council's Reasoning"
)

// BuildFinalPrompt embeds the original prompt and all stage outputs under
// numbered headings and fixes the judge's two-section output format.
func BuildFinalPrompt(ev *Evidence, judge Member) string {
	var b strings.Builder
	role := judge.Role
	if role == "" {
		role = RoleJudge
	}
	fmt.Fprintf(&b, "You are %s. You have been presented with evidence from a council of AI experts regarding the user's request: %q\n\n", role, ev.Prompt())
	b.WriteString("Here is the evidence you must consider:\n\n---\n")

	entries := ev.Entries()
	names := make([]string, 0, len(entries))
	for i, en := range entries {
		fmt.Fprintf(&b, "### %d. %s's %s\n%s\n---\n", i+1, en.Role, judgeLabel[en.Role], en.Text)
		names = append(names, string(en.Role))
	}

	b.WriteString("\nBased on all the evidence presented, structure your response *exactly* as follows, using the headings provided:\n\n")
	b.WriteString(VerdictHeading + "\n")
	b.WriteString("**[Your single, definitive, bolded sentence answering the user's request]**\n\n")
	b.WriteString(ReasoningHeading + "\n")
	fmt.Fprintf(&b, "[Your explanation of HOW you arrived at the verdict, referencing the specific findings from %s to support your conclusion.]\n", joinNames(names))
	return b.String()
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return "the council"
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}
