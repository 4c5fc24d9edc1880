package lyceum

// Turn is one entry in a run's conversation history: a stage's final text.
type Turn struct {
	Stage   string `json:"stage"`
	Content string `json:"content"`
}

// RunState is the full state of one learning-package run. It lives in
// memory for the duration of the run; nothing here is persisted.
//
// Each stage owns exactly one text field. A stage appears in
// CompletedStages only after its output has been merged, so an empty text
// field is distinguishable from a stage that legitimately produced empty
// content.
type RunState struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	CreatedAt int64  `json:"created_at"`

	KnowledgeBase     string `json:"knowledge_base"`
	Roadmap           string `json:"roadmap"`
	Resources         string `json:"resources"`
	PracticeMaterials string `json:"practice_materials"`

	// ArtifactLinks maps stage name to the document link extracted from
	// that stage's output.
	ArtifactLinks map[string]string `json:"artifact_links"`
	// CompletedStages lists merged stages in completion order.
	CompletedStages []string `json:"completed_stages"`
	// History accumulates each stage's final text as one turn.
	History []Turn `json:"conversation_history"`
	// NextStage is the supervisor's current routing decision.
	NextStage string `json:"next_stage"`
	// Usage aggregates token counts across all stages.
	Usage Usage `json:"usage"`
}

// NewRunState creates the initial state for a topic. The supervisor always
// routes professor first.
func NewRunState(topic string) RunState {
	return RunState{
		ID:            NewID(),
		Topic:         topic,
		CreatedAt:     NowUnix(),
		ArtifactLinks: map[string]string{},
		NextStage:     StageProfessor,
	}
}

// Clone returns a deep copy. Merge operations never mutate their input.
func (s RunState) Clone() RunState {
	next := s
	next.ArtifactLinks = make(map[string]string, len(s.ArtifactLinks))
	for k, v := range s.ArtifactLinks {
		next.ArtifactLinks[k] = v
	}
	next.CompletedStages = append([]string(nil), s.CompletedStages...)
	next.History = append([]Turn(nil), s.History...)
	return next
}

// Completed reports whether the named stage has been merged.
func (s RunState) Completed(stage string) bool {
	for _, c := range s.CompletedStages {
		if c == stage {
			return true
		}
	}
	return false
}

// StageText returns the text field owned by the named stage.
func (s RunState) StageText(stage string) string {
	switch stage {
	case StageProfessor:
		return s.KnowledgeBase
	case StageAcademicAdvisor:
		return s.Roadmap
	case StageResearchLibrarian:
		return s.Resources
	case StageTeachingAssistant:
		return s.PracticeMaterials
	}
	return ""
}

func (s *RunState) setStageText(stage, text string) {
	switch stage {
	case StageProfessor:
		s.KnowledgeBase = text
	case StageAcademicAdvisor:
		s.Roadmap = text
	case StageResearchLibrarian:
		s.Resources = text
	case StageTeachingAssistant:
		s.PracticeMaterials = text
	}
}

// MergeStage folds one completed stage's output into prior state and
// returns the result. The union is monotonic: the stage's own text field,
// its artifact link entry, the completed set, the history, and usage
// change; everything else is preserved and nothing is ever removed.
// Merging the same stage twice keeps CompletedStages set-unique.
func MergeStage(prior RunState, stage string, out StageOutput) RunState {
	next := prior.Clone()
	next.setStageText(stage, out.Text)
	if out.ArtifactLink != "" {
		next.ArtifactLinks[stage] = out.ArtifactLink
	}
	if !next.Completed(stage) {
		next.CompletedStages = append(next.CompletedStages, stage)
	}
	next.History = append(next.History, Turn{Stage: stage, Content: out.Text})
	next.Usage.InputTokens += out.Usage.InputTokens
	next.Usage.OutputTokens += out.Usage.OutputTokens
	return next
}

// MarkStageFailed records an explicit unavailability notice in the failed
// stage's text field without marking the stage completed, so a resumed run
// is re-offered the stage. Consumers of a partial state see the notice
// instead of silently empty content.
func MarkStageFailed(prior RunState, stage string) RunState {
	next := prior.Clone()
	next.setStageText(stage, "["+stageFieldLabel(stage)+" unavailable: stage "+stage+" did not complete]")
	return next
}

// stageFieldLabel names the text field a stage owns, for failure notices.
func stageFieldLabel(stage string) string {
	switch stage {
	case StageProfessor:
		return "knowledge base"
	case StageAcademicAdvisor:
		return "roadmap"
	case StageResearchLibrarian:
		return "resources"
	case StageTeachingAssistant:
		return "practice materials"
	}
	return stage
}
