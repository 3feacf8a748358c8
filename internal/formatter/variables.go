package formatter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

// VariableContext contains all data needed for template variable resolution.
type VariableContext struct {
	Account string

	TotalCount     int
	PendingCount   int
	RunningCount   int
	CompletedCount int
	FailedCount    int

	// Latest is the newest job, or nil when there are none.
	Latest *domain.Job
}

// ActiveCount is the number of jobs that are pending or running.
func (c VariableContext) ActiveCount() int {
	return c.PendingCount + c.RunningCount
}

// SetCount records the count for one status. Unknown statuses are ignored.
func (c *VariableContext) SetCount(status domain.JobStatus, n int) {
	switch status {
	case domain.StatusPending:
		c.PendingCount = n
	case domain.StatusRunning:
		c.RunningCount = n
	case domain.StatusCompleted:
		c.CompletedCount = n
	case domain.StatusFailed:
		c.FailedCount = n
	}
}

// VariableResolver resolves template variables to their values.
type VariableResolver interface {
	Resolve(varName string, ctx VariableContext) (string, error)
}

type variableResolver struct{}

// NewVariableResolver creates a new variable resolver instance.
func NewVariableResolver() VariableResolver {
	return variableResolver{}
}

var resolvers = map[string]func(VariableContext) string{
	"account":         func(c VariableContext) string { return c.Account },
	"total-count":     func(c VariableContext) string { return strconv.Itoa(c.TotalCount) },
	"pending-count":   func(c VariableContext) string { return strconv.Itoa(c.PendingCount) },
	"running-count":   func(c VariableContext) string { return strconv.Itoa(c.RunningCount) },
	"completed-count": func(c VariableContext) string { return strconv.Itoa(c.CompletedCount) },
	"failed-count":    func(c VariableContext) string { return strconv.Itoa(c.FailedCount) },
	"active-count":    func(c VariableContext) string { return strconv.Itoa(c.ActiveCount()) },
	"has-failed":      func(c VariableContext) string { return strconv.FormatBool(c.FailedCount > 0) },
	"has-active":      func(c VariableContext) string { return strconv.FormatBool(c.ActiveCount() > 0) },
	"latest-title": func(c VariableContext) string {
		if c.Latest == nil {
			return ""
		}
		return c.Latest.Title
	},
	"latest-status": func(c VariableContext) string {
		if c.Latest == nil {
			return ""
		}
		return string(c.Latest.Status)
	},
	"latest-platform": func(c VariableContext) string {
		if c.Latest == nil {
			return ""
		}
		return string(c.Latest.Platform)
	},
}

func (variableResolver) Resolve(varName string, ctx VariableContext) (string, error) {
	fn, ok := resolvers[varName]
	if !ok {
		return "", fmt.Errorf("unknown variable: %s (available: %s)", varName, strings.Join(Variables(), ", "))
	}
	return fn(ctx), nil
}

// Variables lists the known variable names in sorted order.
func Variables() []string {
	names := make([]string, 0, len(resolvers))
	for name := range resolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
