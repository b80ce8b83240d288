package monitoring

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrUnknownStep is returned for step names a tracker was not created with.
var ErrUnknownStep = errors.New("unknown progress step")

// ProgressStep is one weighted stage of a long-running task.
type ProgressStep struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight"`
}

// StepReport describes the state of one step.
type StepReport struct {
	Started   bool          `json:"started"`
	Completed bool          `json:"completed"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ProgressReport is a point-in-time view of a ProgressTracker.
type ProgressReport struct {
	TaskID          string                `json:"task_id"`
	ProgressPercent float64               `json:"progress_percent"`
	CurrentStep     string                `json:"current_step,omitempty"`
	CompletedSteps  int                   `json:"completed_steps"`
	TotalSteps      int                   `json:"total_steps"`
	Elapsed         time.Duration         `json:"elapsed"`
	Steps           map[string]StepReport `json:"steps"`
}

type stepState struct {
	step      ProgressStep
	started   time.Time
	ended     time.Time
	completed bool
	err       string
}

// ProgressTracker follows a task through weighted steps. Progress counts
// only steps completed without error.
type ProgressTracker struct {
	taskID string
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	order       []string
	steps       map[string]*stepState
	totalWeight float64
	current     string
	start       time.Time
	onProgress  func(pct float64)
}

// NewProgressTracker creates a tracker for taskID. Steps with a
// non-positive weight count with weight 1; repeated names are ignored.
func NewProgressTracker(taskID string, steps []ProgressStep, logger *slog.Logger) *ProgressTracker {
	t := &ProgressTracker{
		taskID: taskID,
		logger: logger.With("task_id", taskID),
		now:    time.Now,
		steps:  make(map[string]*stepState, len(steps)),
	}
	for _, step := range steps {
		if step.Weight <= 0 {
			step.Weight = 1
		}
		if _, dup := t.steps[step.Name]; dup {
			continue
		}
		t.order = append(t.order, step.Name)
		t.totalWeight += step.Weight
		t.steps[step.Name] = &stepState{step: step}
	}
	t.start = t.now()
	return t
}

// OnProgress registers fn to receive the progress percentage after every
// completed step, e.g. to forward it to task.ReportProgress.
func (t *ProgressTracker) OnProgress(fn func(pct float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onProgress = fn
}

// StartStep marks name as the current step.
func (t *ProgressTracker) StartStep(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.steps[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStep, name)
	}
	st.started = t.now()
	t.current = name
	t.logger.Info("starting step", "step", name)
	return nil
}

// CompleteStep marks name as finished. A non-nil err records the step as
// failed; failed steps do not count towards progress.
func (t *ProgressTracker) CompleteStep(name string, err error) error {
	t.mu.Lock()
	st, ok := t.steps[name]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownStep, name)
	}

	st.completed = true
	st.ended = t.now()
	if err != nil {
		st.err = err.Error()
		t.logger.Error("step failed", "step", name, "error", err)
	} else {
		st.err = ""
		t.logger.Info("completed step", "step", name)
	}
	pct := t.percentLocked()
	onProgress := t.onProgress
	t.mu.Unlock()

	if onProgress != nil {
		onProgress(pct)
	}
	return nil
}

// Progress returns the current report.
func (t *ProgressTracker) Progress() ProgressReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := ProgressReport{
		TaskID:          t.taskID,
		ProgressPercent: t.percentLocked(),
		CurrentStep:     t.current,
		TotalSteps:      len(t.order),
		Elapsed:         t.now().Sub(t.start),
		Steps:           make(map[string]StepReport, len(t.order)),
	}
	for _, name := range t.order {
		st := t.steps[name]
		if st.completed {
			report.CompletedSteps++
		}
		var duration time.Duration
		if !st.started.IsZero() && !st.ended.IsZero() {
			duration = st.ended.Sub(st.started)
		}
		report.Steps[name] = StepReport{
			Started:   !st.started.IsZero(),
			Completed: st.completed,
			Error:     st.err,
			Duration:  duration,
		}
	}
	return report
}

// Done reports whether every step has completed, successfully or not.
func (t *ProgressTracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, st := range t.steps {
		if !st.completed {
			return false
		}
	}
	return true
}

// Failed reports whether any step completed with an error.
func (t *ProgressTracker) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, st := range t.steps {
		if st.err != "" {
			return true
		}
	}
	return false
}

func (t *ProgressTracker) percentLocked() float64 {
	if t.totalWeight == 0 {
		return 0
	}
	var done float64
	for _, name := range t.order {
		if st := t.steps[name]; st.completed && st.err == "" {
			done += st.step.Weight
		}
	}
	return done / t.totalWeight * 100
}
