// Package croninstall manages Clodputer's sentinel-delimited managed
// block inside the user's crontab, generating one entry per cron-triggered
// task. Reads and writes go through a CrontabIO so tests don't need a
// real system crontab.
package croninstall

import (
	"fmt"
	"os"
	"strings"

	"github.com/clodputer/clodputer/internal/statedir"
	"github.com/clodputer/clodputer/internal/taskconfig"
)

const (
	beginSentinel = "# >>> clodputer managed >>>"
	endSentinel   = "# <<< clodputer managed <<<"
)

// CrontabIO abstracts reading and writing the system scheduler file, so
// install/uninstall can be exercised without a real crontab.
type CrontabIO interface {
	Read() (string, error)
	Write(content string) error
}

// Entry is one task to install as a cron-triggered invocation.
type Entry struct {
	TaskName   string
	Expression string
	Timezone   string
}

// EntriesFromConfigs filters cfgs down to enabled cron-triggered tasks.
func EntriesFromConfigs(cfgs []*taskconfig.Config) []Entry {
	var entries []Entry
	for _, c := range cfgs {
		if !c.IsEnabled() || c.Trigger.Type != taskconfig.TriggerCron {
			continue
		}
		entries = append(entries, Entry{TaskName: c.Name, Expression: c.Trigger.Expression, Timezone: c.Trigger.Timezone})
	}
	return entries
}

// Install regenerates the managed block from entries and atomically
// replaces the crontab's content. clodputerBin is the path to this
// binary, embedded in each generated line; root is the state directory
// each invocation is pointed at via CLODPUTER_STATE_DIR.
//
// Before writing, it backs up the crontab's current content (the whole
// file, managed block included) to the state directory, so Uninstall can
// restore the pre-install scheduler state rather than merely stripping
// the managed block.
func Install(io CrontabIO, root, clodputerBin string, entries []Entry) error {
	rendered, err := renderBlock(root, clodputerBin, entries)
	if err != nil {
		return err
	}
	current, err := io.Read()
	if err != nil {
		return err
	}
	if err := statedir.WriteFileAtomic(statedir.CrontabBackupPath(root), []byte(current), 0600); err != nil {
		return fmt.Errorf("backing up current crontab: %w", err)
	}
	next, err := replaceBlock(current, rendered)
	if err != nil {
		return err
	}
	return io.Write(next)
}

// Preview returns the would-be new crontab content without writing it,
// for `install --dry-run`.
func Preview(io CrontabIO, root, clodputerBin string, entries []Entry) (string, error) {
	rendered, err := renderBlock(root, clodputerBin, entries)
	if err != nil {
		return "", err
	}
	current, err := io.Read()
	if err != nil {
		return "", err
	}
	return replaceBlock(current, rendered)
}

// Uninstall restores the crontab from the backup Install wrote before its
// last write, if one exists, then removes the backup file. If no backup
// is present (Install was never run, or a prior Uninstall already
// consumed it), it falls back to stripping the managed block by
// sentinel, leaving any content the user added outside it untouched.
func Uninstall(io CrontabIO, root string) error {
	backupPath := statedir.CrontabBackupPath(root)
	backup, err := os.ReadFile(backupPath) //nolint:gosec // state-dir controlled path
	if err == nil {
		if err := io.Write(string(backup)); err != nil {
			return err
		}
		return os.Remove(backupPath)
	}
	if !os.IsNotExist(err) {
		return err
	}

	current, err := io.Read()
	if err != nil {
		return err
	}
	next, found := stripBlock(current)
	if !found {
		return nil
	}
	return io.Write(next)
}

func renderBlock(root, clodputerBin string, entries []Entry) (string, error) {
	var sb strings.Builder
	sb.WriteString(beginSentinel + "\n")
	sb.WriteString("# Managed by clodputer. Do not edit by hand; changes will be overwritten by\n")
	sb.WriteString("# the next `clodputer install`.\n")
	for _, e := range entries {
		line, err := crontabLine(e.Expression)
		if err != nil {
			return "", fmt.Errorf("task %s: %w", e.TaskName, err)
		}
		envPrefix := fmt.Sprintf("%s=%s ", statedir.EnvStateDir, root)
		if e.Timezone != "" {
			envPrefix += fmt.Sprintf("TZ=%s ", e.Timezone)
		}
		sb.WriteString(fmt.Sprintf(
			"%s %s%s run %s >> %s 2>&1\n",
			line, envPrefix, clodputerBin, e.TaskName, statedir.CronLogPath(root),
		))
	}
	sb.WriteString(endSentinel + "\n")
	return sb.String(), nil
}

// replaceBlock substitutes the managed block inside content (appending it
// at the end if none exists yet).
func replaceBlock(content, block string) (string, error) {
	start, end, err := findBlock(content)
	if err != nil {
		return "", err
	}
	if start == -1 {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		return content + block, nil
	}
	return content[:start] + block + content[end:], nil
}

func stripBlock(content string) (string, bool) {
	start, end, err := findBlock(content)
	if err != nil || start == -1 {
		return content, false
	}
	return content[:start] + content[end:], true
}

// findBlock returns the byte offsets of the sentinel-delimited block
// (start inclusive, end exclusive, end right after the trailing newline
// of the end sentinel line), or start == -1 if no block is present.
func findBlock(content string) (start, end int, err error) {
	startIdx := strings.Index(content, beginSentinel)
	if startIdx == -1 {
		return -1, -1, nil
	}
	endIdx := strings.Index(content[startIdx:], endSentinel)
	if endIdx == -1 {
		return -1, -1, fmt.Errorf("found %q without matching %q", beginSentinel, endSentinel)
	}
	endIdx += startIdx + len(endSentinel)
	if endIdx < len(content) && content[endIdx] == '\n' {
		endIdx++
	}
	return startIdx, endIdx, nil
}
