package transfer

import (
	"strings"
)

// ValidateRemotePath rejects a remote path containing a ".." traversal
// segment. Relative paths resolve against the remote shell's working
// directory same as any other SFTP path; traversal segments are the one
// shape worth refusing outright.
func ValidateRemotePath(p string) bool {
	if p == "" {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
