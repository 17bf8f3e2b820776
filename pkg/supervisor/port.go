package supervisor

import (
	"fmt"
	"net"
)

// selectPort probes requested (if non-zero); if it's occupied, or none
// was requested, it asks the OS for any free port instead.
func selectPort(requested int, ip string) (int, error) {
	if ip == "" {
		ip = "127.0.0.1"
	}

	if requested != 0 {
		if portFree(ip, requested) {
			return requested, nil
		}
	}
	return freePort(ip)
}

func portFree(ip string, port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

func freePort(ip string) (int, error) {
	ln, err := net.Listen("tcp", ip+":0")
	if err != nil {
		return 0, fmt.Errorf("supervisor: allocate free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
