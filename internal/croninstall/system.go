package croninstall

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
)

// SystemCrontab is the CrontabIO backed by the real `crontab` binary,
// shelling out via os/exec the same way any guarded subprocess launcher
// would, except the child here is always `crontab`.
type SystemCrontab struct{}

// Read returns the current user's crontab content. An empty/no-crontab
// response from `crontab -l` (exit 1 with "no crontab for" on stderr) is
// not an error: it just means there's nothing to preserve yet.
func (SystemCrontab) Read() (string, error) {
	cmd := exec.Command("crontab", "-l")
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		if strings.Contains(strings.ToLower(errBuf.String()), "no crontab") {
			return "", nil
		}
		return "", errors.New(errBuf.String())
	}
	return out.String(), nil
}

// Write replaces the current user's crontab wholesale via `crontab -`.
func (SystemCrontab) Write(content string) error {
	cmd := exec.Command("crontab", "-")
	cmd.Stdin = strings.NewReader(content)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return errors.New(errBuf.String())
	}
	return nil
}
