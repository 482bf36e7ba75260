package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"council/internal/council"
)

// renderer prints session events as they arrive.
type renderer struct {
	w       io.Writer
	members map[string]council.Member
	failed  string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, members: map[string]council.Member{}}
}

func (r *renderer) session(id string) {
	fmt.Fprintf(r.w, "%s %s\n", color.New(color.Faint).Sprint("session"), id)
}

// render prints ev and returns the report when ev is synthesis_complete.
func (r *renderer) render(ev council.RawEvent) (string, error) {
	switch ev.Type {
	case council.EventPhase:
		var d council.PhaseData
		if err := ev.Decode(&d); err != nil {
			return "", err
		}
		fmt.Fprintf(r.w, "%s %s\n", color.CyanString("»"), d.Message)
	case council.EventMembersSelected:
		var d council.MembersSelectedData
		if err := ev.Decode(&d); err != nil {
			return "", err
		}
		for _, m := range d.Members {
			r.members[m.ID] = m
			fmt.Fprintf(r.w, "  %s %s %s\n", m.Avatar, color.New(color.Bold).Sprint(m.Role), color.New(color.Faint).Sprintf("(%s)", m.ID))
		}
	case council.EventMemberStatus:
		var d council.MemberStatusData
		if err := ev.Decode(&d); err != nil {
			return "", err
		}
		name := d.MemberID
		if m, ok := r.members[d.MemberID]; ok {
			name = string(m.Role)
		}
		if d.Status == council.StatusComplete {
			fmt.Fprintf(r.w, "%s %s\n", color.GreenString("✓"), name)
		} else {
			fmt.Fprintf(r.w, "%s %s is %s...\n", color.YellowString("…"), name, d.Status)
		}
	case council.EventSynthesisComplete:
		var d council.SynthesisCompleteData
		if err := ev.Decode(&d); err != nil {
			return "", err
		}
		return d.Synthesis, nil
	case council.EventError:
		var d council.ErrorData
		if err := ev.Decode(&d); err != nil {
			return "", err
		}
		r.failed = d.Message
		fmt.Fprintf(r.w, "%s %s\n", color.RedString("✗"), d.Message)
	}
	return "", nil
}
