package actor

import (
	"fmt"
	"strings"
)

// renderMonitor dispatches /monitor's three rendering modes (spec.md
// §6.2, §4.8).
func (a *Actor) renderMonitor(mode string) string {
	switch strings.TrimSpace(mode) {
	case "detail":
		return a.renderMonitorPanel(true)
	case "retro":
		return renderMonitorRetrospective()
	default:
		return a.renderMonitorPanel(false)
	}
}

func (a *Actor) renderMonitorPanel(detail bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status strip: orchestration=%s | monitor=%s | context=%s@%d%%\n",
		a.Config.TaskOrchestration, a.CtxMonitor.Mode, a.CtxMonitor.Mode, a.CtxMonitor.TriggerPercent)

	c := a.FlowVector.Render()
	fmt.Fprintf(&b, "Compass: heading=%s magnitude=%.2f (x=%.0f y=%.0f)\n", c.Heading, c.Magnitude, c.X, c.Y)

	actions := a.FlowVector.RecentActionsView(detail)
	b.WriteString("Recent actions:\n")
	for _, act := range actions {
		fmt.Fprintf(&b, "- [%c] %s\n", act.Phase, act.Label)
	}
	return b.String()
}

func (a *Actor) renderVector() string {
	c := a.FlowVector.Render()
	path := make([]byte, len(a.FlowVector.Path))
	for i, p := range a.FlowVector.Path {
		path[i] = byte(p)
	}
	return fmt.Sprintf("Compass: heading=%s magnitude=%.2f\nPath: %s", c.Heading, c.Magnitude, string(path))
}

// progressBar10 renders a fixed 10-cell mini bar, grounded on
// original_source/thread.rs's render_monitor_retrospective inner
// closure. It is scoped to the retrospective view only; the
// general-purpose bar used elsewhere is flowvector.ProgressBar.
func progressBar10(latestPercent int) string {
	const width = 10
	p := latestPercent
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	filled := p * width / 100
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// renderLane formats one lane's progress checkpoints, grounded on
// original_source/thread.rs's render_lane closure.
func renderLane(label byte, checkpoints []int) string {
	entries := make([]string, 0, len(checkpoints))
	for _, v := range checkpoints {
		entries = append(entries, fmt.Sprintf("%d%%", v))
	}
	latest := 0
	if len(entries) == 0 {
		entries = append(entries, "0%")
	} else {
		latest = checkpoints[len(checkpoints)-1]
	}
	return fmt.Sprintf("Lane %c progress: %s %s", label, strings.Join(entries, " -> "), progressBar10(latest))
}

// renderMonitorRetrospective renders a static canned report modeled on
// the report from original_source/thread.rs: content stays canned
// (SPEC_FULL.md §6.4's Open Question resolution), but it exercises the
// same progressBar10/renderLane helpers a dynamic report would use.
//
// TODO: replace the fixed lane data below with a real cross-task
// retrospective generator once task history is persisted somewhere this
// actor can read it back from.
func renderMonitorRetrospective() string {
	lines := []string{
		"Retrospective status report",
		"Parallel orchestration is decomposing each priority and advancing them concurrently, in priority order.",
		"",
		"1. payload templates by type: finalize spec + define example input/output",
		"Parallel lanes: A spec finalization | B example input/output definition",
		renderLane('A', []int{41, 56, 69}),
		renderLane('B', []int{28, 44, 61}),
		"Retrospective: reaching agreement on type boundaries took longer than expected, but once examples centered on edge cases progress picked up.",
		"Lesson: once the spec is locked in first, example definitions follow more predictably.",
		"Next: one spec approval, three confirmed example sets, template version tagging.",
		"Risk/blocker: undefined per-type exception cases risk re-churning the examples.",
		"",
		"2. multi-worker locking / duplicate prevention: define lock policy + add minimal integration test",
		"Parallel lanes: A lock policy definition | B minimal integration test",
		renderLane('A', []int{33, 47, 62}),
		renderLane('B', []int{22, 38, 55}),
		"Retrospective: agreeing on lock scope/expiry took a while, but clarifying duplicate-prevention criteria narrowed the test surface.",
		"Lesson: documenting a lock policy needs retry/timeout defined alongside it, or the test criteria keep shifting.",
		"Next: first-pass policy doc, one integration test at minimal passing bar.",
		"Risk/blocker: without a finalized retry policy, the test plan may miss infinite-wait scenarios.",
		"",
		"3. add one concurrency scenario to end-to-end validation",
		"Parallel lanes: A scenario design | B end-to-end addition",
		renderLane('A', []int{18, 34, 52}),
		renderLane('B', []int{12, 29, 46}),
		"Retrospective: as scenario conditions solidify, uncertainty in the additional implementation is shrinking.",
		"Lesson: concurrency scenarios need both a success criterion and an allowed-failure criterion written down together.",
		"Next: approve the scenario, add one end-to-end test, confirm stability.",
		"Risk/blocker: until the runner lock policy is final, the end-to-end criteria remain provisional.",
		"",
		"Happy to tick the per-lane progress numbers up more granularly on the next update, if useful.",
	}
	return strings.Join(lines, "\n")
}
