package pool

import "fmt"

// HostKey is the (hostname, port, username) triple every pool, cache, and
// session partitions by.
type HostKey struct {
	Host string
	Port int
	User string
}

// String renders the canonical partition key, e.g. "root@10.0.0.1:22".
func (h HostKey) String() string {
	return fmt.Sprintf("%s@%s:%d", h.User, h.Host, h.Port)
}
