package lyceum

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Stage names, in pipeline order.
const (
	StageProfessor         = "professor"
	StageAcademicAdvisor   = "academic_advisor"
	StageResearchLibrarian = "research_librarian"
	StageTeachingAssistant = "teaching_assistant"
)

// defaultToolRounds is the per-stage tool-round budget before the loop
// forces a final synthesis turn.
const defaultToolRounds = 5

// Dependency truncation caps (runes). Later stages read earlier outputs as
// summaries; caps keep prompt growth bounded across the pipeline.
const (
	advisorKnowledgeBaseCap = 3000
	librarianRoadmapCap     = 2000
	assistantKnowledgeCap   = 2000
	assistantRoadmapCap     = 2000
)

const (
	depNotAvailable   = "Not yet available"
	truncationMarker  = "..."
	defaultStageTitle = "Learning Package"
)

// ContextDep declares that a stage's prompts read a prior stage's text,
// truncated to Cap runes with a trailing continuation marker when cut.
type ContextDep struct {
	Placeholder string // template placeholder, e.g. "knowledge_base"
	Stage       string // stage whose text field is read
	Cap         int    // rune cap
}

// StageDescriptor declares one pipeline stage: its prompt pair, the prior
// outputs it reads, the tool capabilities it is authorized for, and its
// tool-round budget.
type StageDescriptor struct {
	Name         string
	Title        string // document title suffix for explicit creation
	SystemPrompt string
	HumanPrompt  string
	Deps         []ContextDep
	Capabilities []Capability
	Budget       int
}

// Stages is the fixed pipeline, front to back. The supervisor only ever
// routes through it in this order; alternate orderings are not supported.
var Stages = []StageDescriptor{
	{
		Name:         StageProfessor,
		Title:        "Knowledge Base",
		SystemPrompt: professorSystemPrompt,
		HumanPrompt:  professorHumanPrompt,
		Capabilities: []Capability{CapabilityDocumentWrite},
		Budget:       defaultToolRounds,
	},
	{
		Name:         StageAcademicAdvisor,
		Title:        "Learning Roadmap",
		SystemPrompt: academicAdvisorSystemPrompt,
		HumanPrompt:  academicAdvisorHumanPrompt,
		Deps: []ContextDep{
			{Placeholder: "knowledge_base", Stage: StageProfessor, Cap: advisorKnowledgeBaseCap},
		},
		Capabilities: []Capability{CapabilityDocumentWrite},
		Budget:       defaultToolRounds,
	},
	{
		Name:         StageResearchLibrarian,
		Title:        "Learning Resources",
		SystemPrompt: researchLibrarianSystemPrompt,
		HumanPrompt:  researchLibrarianHumanPrompt,
		Deps: []ContextDep{
			{Placeholder: "roadmap", Stage: StageAcademicAdvisor, Cap: librarianRoadmapCap},
		},
		Capabilities: []Capability{CapabilityDocumentWrite, CapabilitySearch},
		Budget:       defaultToolRounds,
	},
	{
		Name:         StageTeachingAssistant,
		Title:        "Practice Materials",
		SystemPrompt: teachingAssistantSystemPrompt,
		HumanPrompt:  teachingAssistantHumanPrompt,
		Deps: []ContextDep{
			{Placeholder: "knowledge_base", Stage: StageProfessor, Cap: assistantKnowledgeCap},
			{Placeholder: "roadmap", Stage: StageAcademicAdvisor, Cap: assistantRoadmapCap},
		},
		Capabilities: []Capability{CapabilityDocumentWrite, CapabilitySearch},
		Budget:       defaultToolRounds,
	},
}

// stageByName returns the descriptor for a stage name.
func stageByName(name string) (StageDescriptor, bool) {
	for _, s := range Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageDescriptor{}, false
}

// assembleMessages builds the stage's two-message prompt from run state.
// Dependency texts are truncated to their caps; a dependency whose stage
// has not completed reads as a fixed placeholder.
func assembleMessages(desc StageDescriptor, state RunState) []ChatMessage {
	vars := map[string]string{"topic": state.Topic}
	for _, dep := range desc.Deps {
		text := state.StageText(dep.Stage)
		if text == "" && !state.Completed(dep.Stage) {
			text = depNotAvailable
		}
		vars[dep.Placeholder] = truncateWithMarker(text, dep.Cap)
	}
	return []ChatMessage{
		SystemMessage(fillPrompt(desc.SystemPrompt, vars)),
		UserMessage(fillPrompt(desc.HumanPrompt, vars)),
	}
}

// truncateWithMarker cuts s to cap runes, appending the continuation
// marker when anything was cut.
func truncateWithMarker(s string, cap int) string {
	if cap > 0 && len([]rune(s)) > cap {
		return truncateStr(s, cap) + truncationMarker
	}
	return s
}

// StepTrace records one tool invocation inside a stage's loop.
type StepTrace struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"` // "tool"
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	IsError  bool          `json:"is_error,omitempty"`
	Usage    Usage         `json:"usage"`
	Duration time.Duration `json:"duration"`
}

// StageOutput is everything one stage execution produced.
type StageOutput struct {
	Stage        string        `json:"stage"`
	Text         string        `json:"text"`
	ArtifactLink string        `json:"artifact_link,omitempty"`
	Usage        Usage         `json:"usage"`
	Steps        []StepTrace   `json:"steps,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// stageExecutor runs a single stage: prompt assembly, the tool-calling
// loop, artifact extraction, and the explicit document fallback.
type stageExecutor struct {
	provider     Provider
	registry     *Registry
	processors   *ProcessorChain
	extractor    *ArtifactExtractor
	toolRounds   int // overrides descriptor budgets when > 0
	modelTimeout time.Duration
	toolTimeout  time.Duration
	tracer       Tracer
	logger       *slog.Logger
}

// execute runs one stage against state. A returned error means the model
// transport failed and the stage must not be merged; everything else,
// including tool failures and a missing artifact link, is a completed
// stage.
func (e *stageExecutor) execute(ctx context.Context, desc StageDescriptor, state RunState, ch chan<- StreamEvent) (StageOutput, error) {
	start := time.Now()

	var span Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "stage.execute",
			StringAttr("stage.name", desc.Name),
			StringAttr("run.topic", state.Topic))
		defer span.End()
	}
	e.logger.Info("stage started", "stage", desc.Name, "topic", state.Topic)

	view := e.registry.ByCapability(desc.Capabilities...)
	budget := desc.Budget
	if e.toolRounds > 0 {
		budget = e.toolRounds
	}
	res, err := runLoop(ctx, loopConfig{
		name:         desc.Name,
		provider:     e.provider,
		tools:        view.Definitions(),
		processors:   e.processors,
		maxRounds:    budget,
		dispatch:     makeDispatch(view, e.toolTimeout),
		modelTimeout: e.modelTimeout,
		tracer:       e.tracer,
		logger:       e.logger,
	}, assembleMessages(desc, state), ch)

	out := StageOutput{
		Stage:    desc.Name,
		Text:     res.output,
		Usage:    res.usage,
		Steps:    res.steps,
		Duration: time.Since(start),
	}

	if span != nil {
		span.SetAttr(
			IntAttr("tokens.input", res.usage.InputTokens),
			IntAttr("tokens.output", res.usage.OutputTokens))
		if err != nil {
			span.Error(err)
		}
	}
	if err != nil {
		e.logger.Error("stage failed", "stage", desc.Name, "error", err)
		return out, err
	}

	if link, ok := e.extractor.Extract(res.output); ok {
		out.ArtifactLink = link
	} else {
		invoked, succeeded := docToolActivity(view, res.steps)
		switch {
		case !invoked:
			if name, ok := view.FirstDefinition(CapabilityDocumentWrite); ok {
				out.ArtifactLink = e.createDocumentExplicitly(ctx, view, name, desc, state.Topic, res.output)
			}
		case !succeeded:
			// Creation was already attempted; retrying risks duplicate
			// documents, so the stage completes without a link.
			e.logger.Warn("document creation failed during loop, not retrying", "stage", desc.Name)
		default:
			e.logger.Info("document created but no link in stage text", "stage", desc.Name)
		}
	}

	e.logger.Info("stage completed", "stage", desc.Name,
		"status", statusStr(err),
		"link", out.ArtifactLink,
		"tokens.input", res.usage.InputTokens,
		"tokens.output", res.usage.OutputTokens)
	return out, nil
}

// createDocumentExplicitly invokes the stage's document tool directly with
// the stage text. One attempt only; failures are logged and swallowed so
// the stage still completes.
func (e *stageExecutor) createDocumentExplicitly(ctx context.Context, view *Registry, toolName string, desc StageDescriptor, topic, text string) string {
	e.logger.Warn("no document tool invoked, creating document explicitly", "stage", desc.Name)

	title := desc.Title
	if title == "" {
		title = defaultStageTitle
	}
	args, err := json.Marshal(map[string]string{
		"title":   topic + " - " + title,
		"content": text,
	})
	if err != nil {
		return ""
	}

	if e.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.toolTimeout)
		defer cancel()
	}
	result, execErr := view.Execute(ctx, toolName, args)
	if execErr != nil || result.Error != "" {
		e.logger.Warn("explicit document creation failed", "stage", desc.Name,
			"error", firstNonEmpty(errString(execErr), result.Error))
		return ""
	}
	link, ok := e.extractor.Extract(result.Content)
	if !ok {
		return ""
	}
	e.logger.Info("document created explicitly", "stage", desc.Name, "link", link)
	return link
}

// docToolActivity reports whether any document-capability tool was invoked
// during the loop and whether any such invocation succeeded.
func docToolActivity(reg *Registry, steps []StepTrace) (invoked, succeeded bool) {
	for _, s := range steps {
		if !reg.Capable(s.Name, CapabilityDocumentWrite) {
			continue
		}
		invoked = true
		if !s.IsError {
			succeeded = true
		}
	}
	return invoked, succeeded
}

func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
