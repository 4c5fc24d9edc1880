package lyceum

import "testing"

func TestNextStagePipelineOrder(t *testing.T) {
	tests := []struct {
		name      string
		completed []string
		want      string
	}{
		{"nothing done", nil, StageProfessor},
		{"empty slice", []string{}, StageProfessor},
		{"after professor", []string{StageProfessor}, StageAcademicAdvisor},
		{"after advisor", []string{StageProfessor, StageAcademicAdvisor}, StageResearchLibrarian},
		{"after librarian", []string{StageProfessor, StageAcademicAdvisor, StageResearchLibrarian}, StageTeachingAssistant},
		{"all done", []string{StageProfessor, StageAcademicAdvisor, StageResearchLibrarian, StageTeachingAssistant}, Terminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextStage(tt.completed); got != tt.want {
				t.Errorf("NextStage(%v) = %q, want %q", tt.completed, got, tt.want)
			}
		})
	}
}

func TestNextStageFirstGap(t *testing.T) {
	// A hole in the middle of the pipeline is always re-offered first,
	// regardless of later stages having run.
	got := NextStage([]string{StageProfessor, StageResearchLibrarian})
	if got != StageAcademicAdvisor {
		t.Errorf("NextStage = %q, want %q", got, StageAcademicAdvisor)
	}
}

func TestNextStageCompletionOrderIrrelevant(t *testing.T) {
	shuffled := []string{StageTeachingAssistant, StageProfessor, StageResearchLibrarian, StageAcademicAdvisor}
	if got := NextStage(shuffled); got != Terminal {
		t.Errorf("NextStage(shuffled) = %q, want %q", got, Terminal)
	}

	// Later stages done out of order do not advance the routing past a gap.
	if got := NextStage([]string{StageTeachingAssistant}); got != StageProfessor {
		t.Errorf("NextStage = %q, want %q", got, StageProfessor)
	}
}

func TestNextStageIgnoresUnknownEntries(t *testing.T) {
	if got := NextStage([]string{"bogus"}); got != StageProfessor {
		t.Errorf("NextStage = %q, want %q", got, StageProfessor)
	}
	if got := NextStage([]string{StageProfessor, "bogus"}); got != StageAcademicAdvisor {
		t.Errorf("NextStage = %q, want %q", got, StageAcademicAdvisor)
	}
}

func TestNextStageDeterministic(t *testing.T) {
	completed := []string{StageProfessor, StageAcademicAdvisor}
	first := NextStage(completed)
	for i := 0; i < 10; i++ {
		if got := NextStage(completed); got != first {
			t.Fatalf("NextStage varied: %q then %q", first, got)
		}
	}
}
