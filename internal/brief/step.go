package brief

import "fmt"

// Status is the coarse lifecycle of the job.
type Status string

// Job status values reported by GET /status.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Step is the fine-grained position of the job in the four-stage pipeline.
// Steps are strictly ordered; progress is a function of the step.
type Step string

// Pipeline steps in order.
const (
	StepIdle                 Step = "idle"
	StepSERP                 Step = "serp"
	StepSERPComplete         Step = "serp_complete"
	StepUGC                  Step = "ugc"
	StepUGCComplete          Step = "ugc_complete"
	StepSERPAnalysis         Step = "serp_analysis"
	StepSERPAnalysisComplete Step = "serp_analysis_complete"
	StepCombine              Step = "combine"
	StepComplete             Step = "complete"
)

var stepOrder = []Step{
	StepIdle,
	StepSERP,
	StepSERPComplete,
	StepUGC,
	StepUGCComplete,
	StepSERPAnalysis,
	StepSERPAnalysisComplete,
	StepCombine,
	StepComplete,
}

var stepProgress = map[Step]int{
	StepIdle:                 0,
	StepSERP:                 0,
	StepSERPComplete:         25,
	StepUGC:                  25,
	StepUGCComplete:          50,
	StepSERPAnalysis:         50,
	StepSERPAnalysisComplete: 75,
	StepCombine:              75,
	StepComplete:             100,
}

// Progress returns the percentage paired with the step.
func (s Step) Progress() int {
	return stepProgress[s]
}

// Index returns the ordinal of the step, or -1 when unknown.
func (s Step) Index() int {
	for i, candidate := range stepOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// AtLeast reports whether s is at or beyond other in pipeline order.
func (s Step) AtLeast(other Step) bool {
	return s.Index() >= other.Index() && other.Index() >= 0
}

// Valid reports whether s is one of the known steps.
func (s Step) Valid() bool {
	return s.Index() >= 0
}

// Stage identifies one of the four pipeline stages.
type Stage int

// Pipeline stages.
const (
	StageSERPCollect  Stage = 1
	StageUGCResearch  Stage = 2
	StageSERPAnalysis Stage = 3
	StageCombine      Stage = 4
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageSERPCollect, StageUGCResearch, StageSERPAnalysis, StageCombine}

// ParseStage converts a 1-based number into a Stage.
func ParseStage(n int) (Stage, error) {
	if n < int(StageSERPCollect) || n > int(StageCombine) {
		return 0, fmt.Errorf("unknown stage %d", n)
	}
	return Stage(n), nil
}

// Requires returns the step the job must be at before the stage may start.
// Stage 1 has no predecessor and returns StepIdle.
func (s Stage) Requires() Step {
	switch s {
	case StageUGCResearch:
		return StepSERPComplete
	case StageSERPAnalysis:
		return StepUGCComplete
	case StageCombine:
		return StepSERPAnalysisComplete
	default:
		return StepIdle
	}
}

// Running returns the in-flight step for the stage.
func (s Stage) Running() Step {
	switch s {
	case StageSERPCollect:
		return StepSERP
	case StageUGCResearch:
		return StepUGC
	case StageSERPAnalysis:
		return StepSERPAnalysis
	case StageCombine:
		return StepCombine
	default:
		return StepIdle
	}
}

// Completes returns the step recorded when the stage succeeds.
func (s Stage) Completes() Step {
	switch s {
	case StageSERPCollect:
		return StepSERPComplete
	case StageUGCResearch:
		return StepUGCComplete
	case StageSERPAnalysis:
		return StepSERPAnalysisComplete
	case StageCombine:
		return StepComplete
	default:
		return StepIdle
	}
}

// Name is a short label used in logs and metrics.
func (s Stage) Name() string {
	switch s {
	case StageSERPCollect:
		return "serp_collect"
	case StageUGCResearch:
		return "ugc_research"
	case StageSERPAnalysis:
		return "serp_analysis"
	case StageCombine:
		return "combine"
	default:
		return "unknown"
	}
}

func (s Stage) String() string {
	return fmt.Sprintf("step%d", int(s))
}
