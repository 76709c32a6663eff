//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package hostinfo

import (
	"os"
	"runtime"
)

// Read falls back to what the runtime knows on platforms without uname(2).
func Read() (Info, error) {
	node, err := os.Hostname()
	if err != nil {
		return Info{}, err
	}
	return Info{System: runtime.GOOS, Node: node, Machine: runtime.GOARCH}, nil
}
