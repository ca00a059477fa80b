package submission

import (
	"fmt"
	"strings"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
	"github.com/haegyung/xsfire-camp/internal/command"
)

// OneShot handles exactly one listing-response event from the backend,
// formats it as an assistant-message chunk, then signals EndTurn
// (spec.md §4.5.3). Skills additionally carries the parsed filter
// options so formatting can apply scope/enabled/keyword filters
// client-side.
type OneShot struct {
	SessionID    string
	SubmissionID backend.SubmissionID
	Kind         OneShotKind
	SkillsFilter command.SkillsOptions
	Completed    bool
}

// NewOneShot constructs a OneShot submission.
func NewOneShot(sessionID string, id backend.SubmissionID, kind OneShotKind, filter command.SkillsOptions) *OneShot {
	return &OneShot{SessionID: sessionID, SubmissionID: id, Kind: kind, SkillsFilter: filter}
}

// Handle formats the expected listing-response event and ends the turn.
// Any other event is ignored (dropped per spec.md §4.5.1's catch-all,
// which explicitly calls out "listing responses that belong to
// OneShot/CustomPrompts" as otherwise-dropped).
func (o *OneShot) Handle(e event.Event) Effects {
	if o.Completed {
		return Effects{}
	}
	var eff Effects

	switch {
	case o.Kind == OneShotMcpTools && e.Kind == event.KindListMcpToolsResponse:
		eff.emit(chunk(o.SessionID, acpwire.UpdateAssistantMessageChunk, formatMcpTools(e.McpTools)))
		o.Completed = true
		eff.Stop = &Stop{Reason: acpwire.StopEndTurn}

	case o.Kind == OneShotSkills && e.Kind == event.KindListSkillsResponse:
		eff.emit(chunk(o.SessionID, acpwire.UpdateAssistantMessageChunk, formatSkills(e.Skills, o.SkillsFilter)))
		o.Completed = true
		eff.Stop = &Stop{Reason: acpwire.StopEndTurn}
	}
	return eff
}

func formatMcpTools(tools []event.McpToolInfo) string {
	if len(tools) == 0 {
		return "No MCP tools are registered."
	}
	var b strings.Builder
	b.WriteString("Available MCP tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s/%s: %s\n", t.Server, t.Tool, t.Desc)
	}
	return b.String()
}

func formatSkills(skills []event.SkillInfo, filter command.SkillsOptions) string {
	var filtered []event.SkillInfo
	for _, s := range skills {
		if filter.Enabled && !s.Enabled {
			continue
		}
		if filter.Disabled && s.Enabled {
			continue
		}
		if filter.Scope != "" && s.Scope != filter.Scope {
			continue
		}
		if filter.Keyword != "" && !strings.Contains(strings.ToLower(s.Name+" "+s.Summary), filter.Keyword) {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return "No skills match."
	}
	var b strings.Builder
	b.WriteString("Skills:\n")
	for _, s := range filtered {
		status := "enabled"
		if !s.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(&b, "- %s [%s, %s]: %s\n", s.Name, s.Scope, status, s.Summary)
	}
	return b.String()
}
