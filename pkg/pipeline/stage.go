package pipeline

import "fmt"

// Stage names the best-effort steps that follow a successful generation.
type Stage string

const (
	StageUsage         Stage = "usage"
	StageCost          Stage = "cost"
	StageLog           Stage = "log"
	StageEvaluate      Stage = "evaluate"
	StageAddEvaluation Stage = "add_evaluation"
)

// StageOutcome records what happened to one stage. Err holds a failure that
// was swallowed so the response could still be returned.
type StageOutcome struct {
	Stage   Stage
	Skipped bool
	Err     error
}

// attempt runs fn, converting a panic into an error. It never propagates.
func attempt[T any](stage Stage, fn func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s stage panicked: %v", stage, r)
		}
	}()
	return fn()
}
