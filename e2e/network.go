//go:build e2e

package e2e

import (
	"fmt"
	"net/netip"
	"sync"
)

// NetworkAllocator hands out disjoint /24 docker subnets so parallel tests never share an address range
type NetworkAllocator struct {
	mu   sync.Mutex
	next int
}

var GlobalNetworkAllocator = &NetworkAllocator{next: 64}

func (a *NetworkAllocator) Allocate() (subnet string, gateway string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.next
	a.next++
	return fmt.Sprintf("172.30.%d.0/24", n), fmt.Sprintf("172.30.%d.1", n)
}

// GetIP returns the host address at offset idx inside subnet
func GetIP(subnet string, idx int) string {
	prefix := netip.MustParsePrefix(subnet)
	addr := prefix.Addr()
	for range idx {
		addr = addr.Next()
	}
	return addr.String()
}
