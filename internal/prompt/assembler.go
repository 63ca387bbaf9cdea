package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firtigh/firtigh/internal/groups"
	"github.com/firtigh/firtigh/internal/tools"
)

// ErrCompletionUnavailable reports that the model could not produce a reply
// for an otherwise valid request. Callers match it with errors.Is and give
// the user a fallback answer instead of surfacing the raw failure.
var ErrCompletionUnavailable = errors.New("completion unavailable")

// Classifier decides whether a message deserves the full context treatment.
type Classifier interface {
	NeedsFullContext(text string) bool
}

// ContextSource provides the per-group state the assembler renders into the
// prompt. *groups.Manager satisfies it.
type ContextSource interface {
	History(ctx context.Context, groupID int64) []groups.Message
	Profile(ctx context.Context, groupID, userID int64) *groups.UserProfile
	Memory(ctx context.Context, groupID int64) map[string][]groups.Snippet
}

// CapabilitySelector narrows a message down to the model capabilities it
// should be answered with.
type CapabilitySelector interface {
	Select(text string, mandatory []tools.Capability) []tools.Capability
}

// CapabilityFilter drops capabilities that have exhausted their daily
// allowance. *tools.Quota satisfies it.
type CapabilityFilter interface {
	Filter(ctx context.Context, caps []tools.Capability) []tools.Capability
}

// CompletionRequest is the fully assembled payload handed to the model.
type CompletionRequest struct {
	Instruction  string
	Context      string
	Message      string
	Capabilities []tools.Capability
}

// CompletionResult carries the model reply and the token counts billed for
// producing it.
type CompletionResult struct {
	Text         string
	PromptTokens int
	OutputTokens int
	Model        string
}

// Completer produces a completion for an assembled request.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// UsageRecorder accounts the tokens a completed request consumed, attributed
// to the group it served.
type UsageRecorder interface {
	Record(ctx context.Context, groupID int64, model string, promptTokens, outputTokens int) error
}

// AssemblerConfig bounds and seeds the assembly.
type AssemblerConfig struct {
	HistoryBudget int
	Instruction   string
	Mandatory     []tools.Capability
}

// Assembler turns an incoming message into a model request: classify,
// gather context, compress, select capabilities, complete, and account the
// spent tokens.
type Assembler struct {
	classifier Classifier
	source     ContextSource
	selector   CapabilitySelector
	filter     CapabilityFilter
	completer  Completer
	recorder   UsageRecorder
	cfg        AssemblerConfig
	logger     *slog.Logger
}

// NewAssembler wires an assembler from its collaborators. The filter and
// recorder may be nil when quotas or accounting are disabled.
func NewAssembler(
	classifier Classifier,
	source ContextSource,
	selector CapabilitySelector,
	filter CapabilityFilter,
	completer Completer,
	recorder UsageRecorder,
	cfg AssemblerConfig,
	logger *slog.Logger,
) *Assembler {
	if cfg.HistoryBudget <= 0 {
		cfg.HistoryBudget = DefaultHistoryBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		classifier: classifier,
		source:     source,
		selector:   selector,
		filter:     filter,
		completer:  completer,
		recorder:   recorder,
		cfg:        cfg,
		logger:     logger.With("component", "prompt"),
	}
}

// SetInstruction replaces the assembler's persona instruction. Intended
// for startup, once the bot's identity is known; not safe to call while
// requests are in flight.
func (a *Assembler) SetInstruction(instruction string) {
	a.cfg.Instruction = instruction
}

// Respond answers msg on behalf of the bot. Trivial greetings skip the
// context sections entirely; everything else gets truncated history, the
// sender's compressed profile, and the group memory. Completion failures
// return ErrCompletionUnavailable and leave the usage ledger untouched.
func (a *Assembler) Respond(ctx context.Context, msg groups.Message) (string, error) {
	req := CompletionRequest{
		Instruction: a.cfg.Instruction,
		Message:     RenderMessage(msg),
	}

	if a.classifier.NeedsFullContext(msg.Text) {
		req.Context = a.buildContext(ctx, msg)
	}

	caps := a.selector.Select(msg.Text, a.cfg.Mandatory)
	if a.filter != nil {
		caps = a.filter.Filter(ctx, caps)
	}
	req.Capabilities = caps

	result, err := a.completer.Complete(ctx, req)
	if err != nil {
		a.logger.ErrorContext(ctx, "Completion failed",
			"group_id", msg.GroupID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrCompletionUnavailable, err)
	}

	if a.recorder != nil {
		if err := a.recorder.Record(ctx, msg.GroupID, result.Model, result.PromptTokens, result.OutputTokens); err != nil {
			a.logger.WarnContext(ctx, "Failed to record token usage",
				"model", result.Model, "error", err)
		}
	}

	return result.Text, nil
}

func (a *Assembler) buildContext(ctx context.Context, msg groups.Message) string {
	var sections []string

	history := TruncateHistory(a.source.History(ctx, msg.GroupID), a.cfg.HistoryBudget)
	if len(history) > 0 {
		sections = append(sections, "گفتگوهای اخیر گروه:\n"+RenderHistory(history))
	}

	if profile := CompressProfile(a.source.Profile(ctx, msg.GroupID, msg.UserID)); profile != "" {
		sections = append(sections, fmt.Sprintf("شناخت از %s: %s", msg.Sender, profile))
	}

	if memory := CompressMemory(a.source.Memory(ctx, msg.GroupID)); memory != "" {
		sections = append(sections, "حافظه گروه:\n"+memory)
	}

	return strings.Join(sections, "\n\n")
}
