package monitor

import (
	"github.com/yourmoment/yourmoment/pkg/queue"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// defaultTab is the article index tab used when a process has no tab filter.
const defaultTab = "alle"

func completed() *queue.ExecutionResult {
	return &queue.ExecutionResult{Status: models.JobStatusCompleted}
}

func failed(err error) *queue.ExecutionResult {
	return &queue.ExecutionResult{Status: models.JobStatusFailed, Error: err}
}

// filtersFor maps a process's article filters onto scraper query filters.
func filtersFor(proc *models.MonitoringProcess) (tab string, category, task *int, search, sort string) {
	tab = defaultTab
	if proc.TabFilter != nil && *proc.TabFilter != "" {
		tab = *proc.TabFilter
	}
	category = proc.CategoryFilter
	task = proc.TaskFilter
	if proc.SearchFilter != nil {
		search = *proc.SearchFilter
	}
	if proc.SortOption != nil {
		sort = *proc.SortOption
	}
	return tab, category, task, search, sort
}
