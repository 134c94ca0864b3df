package executor

import (
	"strings"
	"text/template"

	"github.com/clodputer/clodputer/internal/logger"
	"github.com/clodputer/clodputer/internal/notify"
	"github.com/clodputer/clodputer/internal/taskconfig"
)

// actionContext is the data available to an action's log message template.
type actionContext struct {
	TaskName        string
	Status          string
	Error           string
	DurationSeconds float64
}

// runActions executes a task's on_success or on_failure steps: each
// renders its log message against the outcome and appends it as an
// extra field on a dedicated log line, then optionally raises a desktop
// notification.
func runActions(log *logger.Logger, actions []taskconfig.Action, data actionContext) {
	for _, a := range actions {
		message := data.TaskName
		if a.Log != "" {
			if rendered, err := renderActionLog(a.Log, data); err == nil {
				message = rendered
			} else {
				message = a.Log
			}
			log.Emit(logger.TaskActionLog, func(e *logger.Event) {
				e.TaskName = data.TaskName
				e.Extra = map[string]any{"message": message}
			})
		}
		if a.Notify {
			notify.Send("Clodputer: "+data.TaskName, message)
		}
	}
}

func renderActionLog(tmplText string, data actionContext) (string, error) {
	tmpl, err := template.New("action").Parse(tmplText)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
