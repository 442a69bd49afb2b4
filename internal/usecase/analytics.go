package usecase

import (
	"FeedbackFlow/internal/domain"
	"FeedbackFlow/internal/triage"
)

// runState holds the in-memory counters of one processing pass.
type runState struct {
	id       string
	owner    string
	total    int
	tasks    []domain.Task
	ai       int
	fallback int
	skipped  int
	failed   int
}

func newRunState(id, owner string, total int) *runState {
	return &runState{id: id, owner: owner, total: total, tasks: make([]domain.Task, 0, total)}
}

func (r *runState) record(task domain.Task, provenance triage.Provenance) {
	r.tasks = append(r.tasks, task)
	if provenance == triage.ProvenanceFallback {
		r.fallback++
		return
	}
	r.ai++
}

func (r *runState) progress(current int) *domain.Progress {
	return &domain.Progress{
		Current:   current,
		Total:     r.total,
		Succeeded: len(r.tasks),
		Failed:    r.failed,
		Skipped:   r.skipped,
	}
}

func (r *runState) analytics() domain.Analytics {
	a := domain.Analytics{
		TotalProcessed:       r.total,
		TasksCreated:         len(r.tasks),
		Successful:           len(r.tasks),
		Failed:               r.failed,
		AIClassified:         r.ai,
		FallbackClassified:   r.fallback,
		SkippedNonActionable: r.skipped,
		ByPriority:           map[domain.Priority]int{},
		ByCategory:           map[domain.Category]int{},
	}
	for _, task := range r.tasks {
		a.ByPriority[task.Priority]++
		if task.Category != "" {
			a.ByCategory[task.Category]++
		}
	}
	if classified := r.ai + r.fallback; classified > 0 {
		a.AISuccessRate = float64(r.ai) / float64(classified)
	}
	return a
}
