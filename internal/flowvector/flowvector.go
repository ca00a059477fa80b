// Package flowvector implements C8: classifying every observed backend
// event into one of four phases (Analysis, Execution, Validation,
// Coordination), and rendering a compass, a plan progress bar, and a
// recent-actions snapshot on request (spec.md §4.8). The resultant-vector
// and compass math is grounded on original_source/thread.rs's
// FlowVectorState.
package flowvector

import (
	"fmt"
	"math"

	"github.com/haegyung/xsfire-camp/event"
)

// Phase is one of the four classification buckets.
type Phase byte

const (
	Analysis    Phase = 'A'
	Execution   Phase = 'E'
	Validation  Phase = 'V'
	Coordination Phase = 'C'
)

const (
	maxPath          = 48
	maxRecentActions = 24
)

// Action is one entry of the bounded recent-actions FIFO.
type Action struct {
	Phase Phase
	Label string
}

// State holds the four counters, the bounded path buffer, and the
// bounded recent-actions buffer (spec.md §3's FlowVector entity).
type State struct {
	Counters      map[Phase]int
	Path          []Phase
	RecentActions []Action
}

// New returns a zeroed State.
func New() *State {
	return &State{Counters: map[Phase]int{Analysis: 0, Execution: 0, Validation: 0, Coordination: 0}}
}

// Classify maps an event family to its phase per spec.md §4.8's table.
// Events outside the table (deltas, finals not already covered, token
// counts, etc.) have no phase and Observe is a no-op for them.
func Classify(e event.Event) (Phase, string, bool) {
	switch {
	case e.Kind == event.KindPlanUpdate:
		return Coordination, "plan update", true
	case e.Kind == event.KindExecBegin:
		return Execution, "exec begin", true
	case e.Kind == event.KindMcpToolCallBegin:
		return Execution, fmt.Sprintf("mcp %s/%s begin", e.Server, e.Tool), true
	case e.Kind == event.KindPatchApplyBegin:
		return Execution, "patch apply begin", true
	case e.Kind == event.KindWebSearchBegin:
		return Execution, "web search begin", true
	case event.IsReasoningDelta(e.Kind) || e.Kind == event.KindReasoningFinal || e.Kind == event.KindReasoningSectionBreak:
		return Analysis, "reasoning", true
	case e.Kind == event.KindReviewModeEnter:
		return Validation, "review mode enter", true
	case e.Kind == event.KindReviewModeExit:
		return Validation, "review mode exit", true
	case e.Kind == event.KindContextCompacted:
		return Coordination, "context compacted", true
	default:
		return 0, "", false
	}
}

// Observe classifies e and, if it maps to a phase, increments the
// counter, appends to the bounded path buffer, and pushes a recent
// action, evicting the oldest entry past the bound (FIFO).
func (s *State) Observe(e event.Event) {
	phase, label, ok := Classify(e)
	if !ok {
		return
	}
	s.Counters[phase]++

	s.Path = append(s.Path, phase)
	if len(s.Path) > maxPath {
		s.Path = s.Path[len(s.Path)-maxPath:]
	}

	s.RecentActions = append(s.RecentActions, Action{Phase: phase, Label: label})
	if len(s.RecentActions) > maxRecentActions {
		s.RecentActions = s.RecentActions[len(s.RecentActions)-maxRecentActions:]
	}
}

// Compass is the rendered heading: resultant vector, magnitude, and an
// 8-way (or CENTER) heading. It carries no semantic label.
type Compass struct {
	X, Y      float64
	Magnitude float64
	Heading   string
}

// headings in atan2 degree order, each owning a ±22.5° window centered
// on its own angle (original_source/thread.rs's flow_direction_from_xy).
var headingTable = []struct {
	angle float64
	name  string
}{
	{0, "E"}, {45, "NE"}, {90, "N"}, {135, "NW"},
	{180, "W"}, {-180, "W"}, {-135, "SW"}, {-90, "S"}, {-45, "SE"},
}

// Render computes the compass from the current counters:
// x = execution - coordination, y = analysis - validation.
func (s *State) Render() Compass {
	x := float64(s.Counters[Execution] - s.Counters[Coordination])
	y := float64(s.Counters[Analysis] - s.Counters[Validation])
	if x == 0 && y == 0 {
		return Compass{X: 0, Y: 0, Magnitude: 0, Heading: "CENTER"}
	}
	mag := math.Sqrt(x*x + y*y)
	deg := math.Atan2(y, x) * 180 / math.Pi
	heading := closestHeading(deg)
	return Compass{X: x, Y: y, Magnitude: mag, Heading: heading}
}

func closestHeading(deg float64) string {
	best := headingTable[0].name
	bestDelta := math.MaxFloat64
	for _, h := range headingTable {
		d := angleDelta(deg, h.angle)
		if d < bestDelta {
			bestDelta = d
			best = h.name
		}
	}
	return best
}

func angleDelta(a, b float64) float64 {
	d := math.Mod(a-b+180, 360)
	if d < 0 {
		d += 360
	}
	d -= 180
	if d < 0 {
		d = -d
	}
	return d
}

// ProgressBarWidth clamps panelWidth/3 into [18, 40] (spec.md §4.8).
func ProgressBarWidth(panelWidth int) int {
	w := panelWidth / 3
	if w < 18 {
		return 18
	}
	if w > 40 {
		return 40
	}
	return w
}

// ProgressBar renders width cells, filled = floor(completed*width/total).
func ProgressBar(completed, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := completed * width / total
	if filled > width {
		filled = width
	}
	b := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < filled {
			b[i] = '#'
		} else {
			b[i] = '-'
		}
	}
	return string(b)
}

// RecentActionsView renders the recent-actions view: the full buffer under
// the detail view, the most recent 8 in chronological order otherwise.
func (s *State) RecentActionsView(detail bool) []Action {
	if detail || len(s.RecentActions) <= 8 {
		return append([]Action(nil), s.RecentActions...)
	}
	return append([]Action(nil), s.RecentActions[len(s.RecentActions)-8:]...)
}
