//go:build unix

package diagnostics

import "os"

func isExecutable(info os.FileInfo) bool {
	return info.Mode()&0111 != 0
}
