package actor

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/event"
	"github.com/haegyung/xsfire-camp/internal/canonical"
	"github.com/haegyung/xsfire-camp/internal/command"
	"github.com/haegyung/xsfire-camp/internal/ctxmonitor"
	"github.com/haegyung/xsfire-camp/internal/flowvector"
	"github.com/haegyung/xsfire-camp/internal/obslog"
	"github.com/haegyung/xsfire-camp/internal/skills"
	"github.com/haegyung/xsfire-camp/internal/submission"
	"github.com/haegyung/xsfire-camp/session"

	"go.uber.org/zap"
)

// Facade is the client-visible notification sink the actor emits every
// outbound update through (spec.md §4.6, "client facade" in §9's design
// notes). internal/handler supplies the concrete implementation that
// writes over the wire transport.
type Facade interface {
	Emit(acpwire.Update)
	Capabilities() acpwire.ClientCapabilities
}

// Config mirrors the session's mutable configuration (spec.md §3).
type Config struct {
	Model             string
	ReasoningEffort   string
	ApprovalPreset    string
	Personality       string
	TaskOrchestration string
	Density           string // compact | full
}

// CustomPrompt is one workspace-discovered custom-prompt table entry
// (spec.md §4.4).
type CustomPrompt struct {
	Name    string
	Content string
}

// entry wraps one of the four C5 submission variants so the map in
// Actor can hold them uniformly.
type entry struct {
	id         backend.SubmissionID
	background bool

	prompt        *submission.Prompt
	task          *submission.Task
	oneShot       *submission.OneShot
	customPrompts *submission.CustomPrompts

	done       chan PromptResult     // foreground Prompt/Task/OneShot
	customDone chan submission.Result // CustomPrompts
}

func (en *entry) completed() bool {
	switch {
	case en.prompt != nil:
		return en.prompt.Completed
	case en.task != nil:
		return en.task.Completed
	case en.oneShot != nil:
		return en.oneShot.Completed
	case en.customPrompts != nil:
		return en.customPrompts.Completed
	}
	return true
}

// Actor is the C6 Thread Actor.
type Actor struct {
	SessionID string
	Driver    backend.Driver
	Facade    Facade
	Log       *canonical.Handle
	Skills    *skills.Catalog

	Config Config

	Submissions   map[backend.SubmissionID]*entry
	Inbound       chan Command
	CustomPrompts []CustomPrompt

	FlowVector *flowvector.State
	CtxMonitor *ctxmonitor.State

	lastConfigOptions []acpwire.ConfigOption
	setupStep         int

	trustedProjects map[string]bool

	logger *obslog.Logger
}

// New constructs an Actor ready to Run.
func New(sessionID string, drv backend.Driver, facade Facade, log *canonical.Handle, cfg Config, logger *obslog.Logger) *Actor {
	if logger == nil {
		logger = obslog.Default()
	}
	if cfg.ApprovalPreset == "" {
		cfg.ApprovalPreset = session.ApprovalReadOnly
	}
	if cfg.TaskOrchestration == "" {
		cfg.TaskOrchestration = session.OrchestrationSequential
	}
	if cfg.Density == "" {
		cfg.Density = densityFromEnv()
	}
	return &Actor{
		SessionID:       sessionID,
		Driver:          drv,
		Facade:          facade,
		Log:             log,
		Config:          cfg,
		Submissions:     make(map[backend.SubmissionID]*entry),
		Inbound:         make(chan Command, 8),
		FlowVector:      flowvector.New(),
		CtxMonitor:      ctxmonitor.New("", 0),
		trustedProjects: make(map[string]bool),
		logger:          logger,
	}
}

func densityFromEnv() string {
	if os.Getenv("XSFIRE_CONFIG_OPTIONS_DENSITY") == "full" {
		return "full"
	}
	return "compact"
}

// Run is the single-threaded cooperative loop (spec.md §4.6.1): biased
// select on the inbound command channel, then the backend event stream.
// Each iteration handles one item and then prunes inactive submissions.
// The loop terminates when the inbound channel closes or the backend
// stream closes.
func (a *Actor) Run(ctx context.Context) {
	for {
		// Re-read on every iteration so a RewireCmd's new driver takes effect.
		events := a.Driver.Events()
		select {
		case cmd, ok := <-a.Inbound:
			if !ok {
				return
			}
			a.handleCommand(ctx, cmd)
		default:
			select {
			case cmd, ok := <-a.Inbound:
				if !ok {
					return
				}
				a.handleCommand(ctx, cmd)
			case e, ok := <-events:
				if !ok {
					return
				}
				a.handleEvent(ctx, e)
			}
		}
		a.pruneInactive()
	}
}

func (a *Actor) pruneInactive() {
	for id, en := range a.Submissions {
		if en.completed() {
			delete(a.Submissions, id)
		}
	}
}

// handleEvent implements §4.6.3's event routing.
func (a *Actor) handleEvent(ctx context.Context, e event.Event) {
	a.FlowVector.Observe(e)
	if e.Kind == event.KindTokenCount && e.Usage != nil {
		a.CtxMonitor.Observe(a.Log, backend.SubmissionID(e.SubmissionID), e.Usage.TotalTokens, e.Usage.ContextWindow)
	}
	if e.Kind == event.KindStreamError {
		a.logger.Warn("actor: backend stream error", zap.String("submission_id", string(e.SubmissionID)), zap.String("message", e.ErrMessage))
	}

	id := backend.SubmissionID(e.SubmissionID)
	en, ok := a.Submissions[id]
	if !ok {
		a.logger.Warn("actor: event for unknown submission", zap.String("submission_id", string(id)), zap.String("kind", string(e.Kind)))
		return
	}
	a.dispatch(ctx, en, e)

	if e.Kind == event.KindTurnComplete {
		if pending, ok := a.CtxMonitor.ConsumeIfMatching(id); ok {
			a.triggerAutoCompact(ctx, pending)
		}
		if a.CtxMonitor.IsInFlight(id) {
			a.CtxMonitor.ClearInFlight()
			a.Log.Log("auto_compact_completed", map[string]any{"submission_id": string(id)})
		}
	}
	if (e.Kind == event.KindTurnAborted || e.Kind == event.KindError) && a.CtxMonitor.IsInFlight(id) {
		a.CtxMonitor.ClearInFlight()
	}
}

func (a *Actor) dispatch(ctx context.Context, en *entry, e event.Event) {
	switch {
	case en.prompt != nil:
		a.applyPromptEffects(en, en.prompt.Handle(e))
	case en.task != nil:
		a.applyPromptEffects(en, en.task.Prompt.Handle(e))
	case en.oneShot != nil:
		a.applyPromptEffects(en, en.oneShot.Handle(e))
	case en.customPrompts != nil:
		if res := en.customPrompts.Handle(e); res != nil && en.customDone != nil {
			en.customDone <- *res
			close(en.customDone)
		}
	}
}

func (a *Actor) applyPromptEffects(en *entry, eff submission.Effects) {
	a.applyEffects(eff)
	if eff.Stop != nil && en.done != nil {
		en.done <- PromptResult{StopReason: eff.Stop.Reason, Err: eff.Stop.Err}
		close(en.done)
	}
}

func (a *Actor) applyEffects(eff submission.Effects) {
	for _, u := range eff.Updates {
		a.mirrorUpdate(u)
		a.Facade.Emit(u)
	}
	for _, op := range eff.Ops {
		if _, err := a.Driver.Submit(context.Background(), a.SessionID, op); err != nil {
			a.logger.Error("actor: resolve op submit failed", zap.Error(err))
		}
	}
}

// mirrorUpdate writes every client-visible Update the actor emits to the
// canonical log before it reaches the facade, so a session replay can
// reconstruct the wire traffic C1 is supposed to mirror (spec.md §4.1,
// §8 scenario 5). Plan and tool-call updates get their own acp.* kinds;
// a tool-call update carrying permission_options metadata is logged as
// acp.request_permission instead of acp.tool_call, so the record's
// tool_call_id lines up with the acp.request_permission_response logged
// when the client's choice comes back (handleResolvePermission).
func (a *Actor) mirrorUpdate(u acpwire.Update) {
	switch u.Kind {
	case acpwire.UpdatePlan:
		a.Log.Log("acp.plan", map[string]any{
			"session_id":  u.SessionID,
			"plan":        u.Plan,
			"explanation": u.Explanation,
		})

	case acpwire.UpdateToolCall, acpwire.UpdateToolCallUpdate:
		if u.ToolCall == nil {
			return
		}
		if opts, ok := u.ToolCall.Meta["permission_options"]; ok {
			a.Log.Log("acp.request_permission", map[string]any{
				"session_id":   u.SessionID,
				"tool_call_id": u.ToolCall.ToolCallID,
				"title":        u.ToolCall.Title,
				"options":      opts,
			})
			return
		}
		a.Log.Log("acp.tool_call", map[string]any{
			"session_id":   u.SessionID,
			"tool_call_id": u.ToolCall.ToolCallID,
			"update_kind":  string(u.Kind),
			"kind":         u.ToolCall.Kind,
			"title":        u.ToolCall.Title,
			"status":       u.ToolCall.Status,
		})
	}
}

func (a *Actor) triggerAutoCompact(ctx context.Context, pending ctxmonitor.PendingAutoCompact) {
	id, err := a.Driver.Submit(ctx, a.SessionID, backend.Operation{Kind: backend.OpCompact})
	if err != nil {
		a.logger.Error("actor: auto-compact submit failed", zap.Error(err))
		return
	}
	a.CtxMonitor.BeginAutoCompact(id)
	task := submission.NewBackgroundTask(a.SessionID, id, "compact")
	a.Submissions[id] = &entry{id: id, background: true, task: task}
	a.Log.Log("auto_compact_triggered", map[string]any{
		"submission_id": string(id),
		"used_percent":  pending.UsedPercent,
	})
}

// handleCommand implements §4.6.2.
func (a *Actor) handleCommand(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case LoadCmd:
		c.Resp <- LoadResult{ConfigOptions: a.configOptions()}
		close(c.Resp)

	case GetConfigOptionsCmd:
		c.Resp <- a.configOptions()
		close(c.Resp)

	case PromptCmd:
		a.handlePrompt(ctx, c)

	case SetModeCmd:
		a.handleSetMode(c)

	case SetModelCmd:
		a.Config.Model = c.Model
		a.Config.ReasoningEffort = c.Effort
		a.submitOverride(ctx)
		c.Resp <- SetResult{}
		close(c.Resp)
		a.maybeEmitConfigOptions()

	case SetConfigOptionCmd:
		a.handleSetConfigOption(c)

	case CancelCmd:
		_, _ = a.Driver.Submit(ctx, a.SessionID, backend.Operation{Kind: backend.OpInterrupt})
		c.Resp <- struct{}{}
		close(c.Resp)

	case ReplayHistoryCmd:
		a.handleReplayHistory(c)

	case RewireCmd:
		a.Driver = c.Driver
		a.SessionID = c.SessionID
		c.Resp <- struct{}{}
		close(c.Resp)

	case ResolvePermissionCmd:
		a.handleResolvePermission(ctx, c)
	}
}

// handleResolvePermission submits the backend resolution for a pending
// permission request and mirrors the response to the canonical log,
// correlated by toolCallId with the acp.request_permission record
// emitted when the request first went out (spec.md §4.1, §8 scenario 5).
func (a *Actor) handleResolvePermission(ctx context.Context, c ResolvePermissionCmd) {
	var op backend.Operation
	switch c.Kind {
	case "patch":
		op = submission.ResolvePatchApproval(c.CallID, c.OptionID, c.Cancelled)
	case "elicitation":
		op = submission.ResolveElicitation(c.CallID, c.OptionID, c.Cancelled)
	default:
		op = submission.ResolveExecApproval("", c.CallID, c.OptionID, c.Cancelled)
	}
	if _, err := a.Driver.Submit(ctx, a.SessionID, op); err != nil {
		a.logger.Error("actor: resolve permission submit failed", zap.Error(err))
	}
	a.Log.Log("acp.request_permission_response", map[string]any{
		"session_id":   a.SessionID,
		"tool_call_id": c.CallID,
		"option_id":    c.OptionID,
		"cancelled":    c.Cancelled,
	})
	c.Resp <- struct{}{}
	close(c.Resp)
}

func (a *Actor) handleSetMode(c SetModeCmd) {
	a.Config.ApprovalPreset = c.Preset
	a.submitOverride(context.Background())
	if session.WritesFiles(c.Preset) {
		a.trustedProjects[a.SessionID] = true
	}
	c.Resp <- SetResult{}
	close(c.Resp)
	a.maybeEmitConfigOptions()
	a.maybeEmitSetupPlan()
}

func (a *Actor) handleSetConfigOption(c SetConfigOptionCmd) {
	switch c.ID {
	case "model":
		a.Config.Model = c.Value
	case "approval_preset":
		a.Config.ApprovalPreset = c.Value
	case "personality":
		a.Config.Personality = c.Value
	case "reasoning_effort":
		a.Config.ReasoningEffort = c.Value
	case "task_orchestration":
		a.Config.TaskOrchestration = c.Value
	default:
		c.Resp <- SetResult{Err: acpwire.NewError(acpwire.ErrInvalidParams, fmt.Sprintf("unknown config option %q", c.ID))}
		close(c.Resp)
		return
	}
	a.submitOverride(context.Background())
	c.Resp <- SetResult{}
	close(c.Resp)
	a.maybeEmitConfigOptions()
}

func (a *Actor) submitOverride(ctx context.Context) {
	model := a.Config.Model
	effort := a.Config.ReasoningEffort
	preset := a.Config.ApprovalPreset
	personality := a.Config.Personality
	_, err := a.Driver.Submit(ctx, a.SessionID, backend.Operation{
		Kind: backend.OpOverrideTurnContext,
		Turn: &backend.TurnContextOverride{
			Model:           &model,
			ReasoningEffort: &effort,
			ApprovalPreset:  &preset,
			Personality:     &personality,
		},
	})
	if err != nil {
		a.logger.Error("actor: override turn context failed", zap.Error(err))
	}
}

// maybeEmitConfigOptions emits a config-options update unless it
// compares equal to the last emitted list (spec.md §4.6.5's dedup, §8's
// testable property).
func (a *Actor) maybeEmitConfigOptions() {
	next := a.configOptions()
	if configOptionsEqual(a.lastConfigOptions, next) {
		return
	}
	a.lastConfigOptions = next
	a.Facade.Emit(acpwire.Update{SessionID: a.SessionID, Kind: acpwire.UpdateConfigOptionUpdate, ConfigOptions: next})
}

func configOptionsEqual(a, b []acpwire.ConfigOption) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Label != y.Label || x.Kind != y.Kind || x.Value != y.Value {
			return false
		}
		if len(x.Choices) != len(y.Choices) {
			return false
		}
		for j := range x.Choices {
			if x.Choices[j] != y.Choices[j] {
				return false
			}
		}
	}
	return true
}

func (a *Actor) maybeEmitSetupPlan() {
	a.setupStep++
	a.Facade.Emit(acpwire.Update{
		SessionID: a.SessionID,
		Kind:      acpwire.UpdatePlan,
		Plan: []acpwire.PlanEntryUpdate{
			{Step: "Choose an approval preset", Status: "completed", Priority: "medium"},
		},
	})
}

// configOptions computes the client-visible config-options projection
// on demand (spec.md §4.6.5).
func (a *Actor) configOptions() []acpwire.ConfigOption {
	opts := []acpwire.ConfigOption{
		{ID: "approval_preset", Label: "Approval Preset", Kind: "select", Value: a.Config.ApprovalPreset,
			Choices: []string{session.ApprovalReadOnly, session.ApprovalWriteAuto, session.ApprovalFullAccess}},
		{ID: "model", Label: "Model", Kind: "select", Value: a.Config.Model},
	}
	if modelHasMultipleEfforts(a.Config.Model) {
		opts = append(opts, acpwire.ConfigOption{ID: "reasoning_effort", Label: "Model Reasoning Effort", Kind: "select", Value: a.Config.ReasoningEffort})
	}
	opts = append(opts, acpwire.ConfigOption{ID: "personality", Label: "Personality", Kind: "select", Value: a.Config.Personality})

	if a.Config.Density == "full" {
		opts = append(opts,
			acpwire.ConfigOption{ID: "context_opt_mode", Label: "Context Optimization", Kind: "select", Value: string(a.CtxMonitor.Mode)},
			acpwire.ConfigOption{ID: "context_opt_trigger", Label: "Context Trigger Threshold", Kind: "select", Value: strconv.Itoa(a.CtxMonitor.TriggerPercent)},
			acpwire.ConfigOption{ID: "task_orchestration", Label: "Task Orchestration", Kind: "select", Value: a.Config.TaskOrchestration},
			acpwire.ConfigOption{ID: "task_monitoring", Label: "Task Monitoring", Kind: "toggle"},
			acpwire.ConfigOption{ID: "progress_vector_checks", Label: "Progress Vector Checks", Kind: "toggle"},
		)
		if columns() < 140 {
			opts = append(opts, acpwire.ConfigOption{ID: "advanced_panel", Label: "Advanced Panel", Kind: "select", Choices: []string{"context", "tasks", "beta"}})
		}
	}
	return opts
}

func modelHasMultipleEfforts(model string) bool {
	switch model {
	case "codex-high", "o-reasoning":
		return true
	default:
		return false
	}
}

func columns() int {
	if v := os.Getenv("COLUMNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 200
}

// Catalog returns the fixed built-in command list augmented by any
// discovered custom prompts (spec.md §4.6.4).
func (a *Actor) Catalog() []acpwire.CommandSpec {
	specs := []acpwire.CommandSpec{
		{Name: command.Setup, Description: "Run the setup wizard"},
		{Name: command.Status, Description: "Show current model/effort/personality/approval/monitor state"},
		{Name: command.Model, Description: "Pointer to Config Options"},
		{Name: command.Personality, Description: "Pointer to Config Options"},
		{Name: command.Approvals, Description: "Pointer to Config Options"},
		{Name: command.Permissions, Description: "Pointer to Config Options"},
		{Name: command.Experimental, Description: "Pointer to Config Options"},
		{Name: command.MCP, Description: "List MCP tools"},
		{Name: command.Skills, Description: "List or reload skills", InputHint: "[--reload] [--enabled|--disabled] [--scope <s>] [<keyword>]"},
		{Name: command.Diff, Description: "Show git diff"},
		{Name: command.Compact, Description: "Compact the conversation"},
		{Name: command.Undo, Description: "Undo the last change"},
		{Name: command.Review, Description: "Review uncommitted changes or custom instructions", InputHint: "[text]"},
		{Name: command.ReviewBranch, Description: "Review a branch", InputHint: "<branch>"},
		{Name: command.ReviewCommit, Description: "Review a commit", InputHint: "<sha>"},
		{Name: command.Init, Description: "Create an AGENTS.md file"},
		{Name: command.Sessions, Description: "Report that no local session list is available"},
		{Name: command.Load, Description: "Show instructions to open a session", InputHint: "<id-or-index>"},
		{Name: command.Monitor, Description: "Show the monitor panel", InputHint: "[detail|retro]"},
		{Name: command.Vector, Description: "Show the flow compass and path"},
		{Name: command.New, Description: "Initiate from the client"},
		{Name: command.NewWindow, Description: "Initiate from the client"},
		{Name: command.Resume, Description: "Initiate from the client"},
		{Name: command.Fork, Description: "Initiate from the client"},
		{Name: command.Agent, Description: "Initiate from the client"},
		{Name: command.Mention, Description: "Pointer to client-side affordance"},
		{Name: command.Feedback, Description: "Pointer to client-side affordance"},
		{Name: command.Logout, Description: "Log out"},
	}
	for _, cp := range a.CustomPrompts {
		specs = append(specs, acpwire.CommandSpec{Name: cp.Name, Description: "Custom prompt"})
	}
	return specs
}
