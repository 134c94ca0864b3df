// Package notify raises a best-effort desktop notification for a task's
// on_success/on_failure actions. Failures (no notifier installed, no
// display session) are swallowed: a notification is a convenience, never
// load-bearing for task outcomes.
package notify

import (
	"os/exec"
	"runtime"
)

// Send raises a desktop notification with the given title and message.
// The platform notifier is selected at call time rather than cached, so
// tests can stub exec.Command indirectly by never calling this on CI.
func Send(title, message string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := "display notification " + quoteAppleScript(message) + " with title " + quoteAppleScript(title)
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", title, message)
	default:
		return
	}
	_ = cmd.Run() //nolint:errcheck // best-effort, per package doc
}

// quoteAppleScript wraps s in double quotes, escaping any embedded quote
// so a task message can't break out of the osascript string literal.
func quoteAppleScript(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	out = append(out, '"')
	return string(out)
}
