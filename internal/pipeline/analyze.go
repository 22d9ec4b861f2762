package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vortex.app/relay/common/llm"
	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/model"
)

const (
	// DefaultPatchBudget caps how many bytes of patch text go into one prompt.
	DefaultPatchBudget = 48 * 1024

	analyzeMaxTokens   = 1024
	analyzeTemperature = 0.3
)

const analyzeSystemPrompt = "You are a senior software engineer reviewing a code change. " +
	"Give detailed feedback on potential improvements, bugs, security issues, or code smells."

var reviewSchema = llm.GenerateSchema[model.ReviewAnalysis]()

// Analyzer asks the inference model to review one change.
type Analyzer struct {
	llm         llm.Client
	patchBudget int
	timeout     time.Duration
}

func NewAnalyzer(client llm.Client, patchBudget int, timeout time.Duration) *Analyzer {
	if patchBudget <= 0 {
		patchBudget = DefaultPatchBudget
	}
	return &Analyzer{llm: client, patchBudget: patchBudget, timeout: callTimeout(timeout)}
}

func (a *Analyzer) Handle(ctx context.Context, evt domain.Event) ([]domain.Event, error) {
	ctx = eventContext(ctx, evt, "relay.pipeline.analyze")

	d, ok := evt.Detail.(domain.DiffReadyDetail)
	if !ok {
		return nil, &domain.ValidationError{DetailType: evt.DetailType, Err: fmt.Errorf("analyze does not handle %T", evt.Detail)}
	}
	ctx = withFileCount(ctx, len(d.Files))

	if len(d.Files) == 0 {
		slog.InfoContext(ctx, "no files to analyze")
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.llm.Complete(callCtx, llm.Request{
		SystemPrompt: analyzeSystemPrompt,
		UserPrompt:   BuildPrompt(d, a.patchBudget),
		SchemaName:   "review_analysis",
		Schema:       reviewSchema,
		MaxTokens:    analyzeMaxTokens,
		Temperature:  llm.Temp(analyzeTemperature),
	})
	if err != nil {
		slog.ErrorContext(ctx, "analysis failed", "error", err)
		status := llm.StatusCode(err)
		upstream := domain.NewUpstreamError("inference model", status, err)
		upstream.Permanent = status != 0 && !llm.IsRetryable(ctx, err)
		return nil, upstream
	}

	analysis, err := analysisPayload(resp)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "analysis complete",
		"model", a.llm.Model(),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens)

	out, err := evt.Child(domain.EventAnalysisComplete, domain.AnalysisCompleteDetail{
		Change:    d.Change,
		FileCount: len(d.Files),
		Model:     a.llm.Model(),
		Analysis:  analysis,
	})
	if err != nil {
		return nil, err
	}
	return []domain.Event{out}, nil
}

// analysisPayload keeps structured output as-is and wraps free text the
// model returned instead.
func analysisPayload(resp *llm.Response) (json.RawMessage, error) {
	if parsed, err := llm.Decode[model.ReviewAnalysis](resp); err == nil {
		return json.Marshal(parsed)
	}
	return json.Marshal(map[string]string{"text": strings.TrimSpace(resp.Content)})
}

// BuildPrompt lists every changed file with its line counts and appends
// patches in file order until the budget is spent.
func BuildPrompt(d domain.DiffReadyDetail, patchBudget int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A code update has been submitted to %s (%s). Please review the following changes:\n", d.Repo, d.Subject())
	for _, f := range d.Files {
		fmt.Fprintf(&b, "- %s (+%d/-%d)\n", f.Filename, f.Additions, f.Deletions)
	}

	remaining := patchBudget
	omitted := 0
	for _, f := range d.Files {
		if f.Patch == nil || *f.Patch == "" {
			continue
		}
		if len(*f.Patch) > remaining {
			omitted++
			continue
		}
		remaining -= len(*f.Patch)
		fmt.Fprintf(&b, "\n--- %s\n%s\n", f.Filename, *f.Patch)
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "\n(%d patches omitted for size)\n", omitted)
	}
	return b.String()
}
