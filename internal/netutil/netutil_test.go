package netutil

import (
	"net"
	"testing"
)

// getFreePort asks the kernel for a free open port that is then used for testing.
func getFreePort(t *testing.T) int {
	t.Helper()
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("could not resolve tcp addr: %v", err)
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		t.Fatalf("could not listen on tcp: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestIsPortAvailable(t *testing.T) {
	// Get a known free port
	freePort := getFreePort(t)

	// Test that a free port is reported as available
	if !IsPortAvailable(freePort) {
		t.Errorf("expected port %d to be available, but it was not", freePort)
	}

	// Test that a used port is reported as unavailable
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("could not resolve tcp addr: %v", err)
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		t.Fatalf("could not listen on tcp: %v", err)
	}
	defer l.Close()
	usedPort := l.Addr().(*net.TCPAddr).Port

	if IsPortAvailable(usedPort) {
		t.Errorf("expected port %d to be unavailable, but it was available", usedPort)
	}
}

func TestFindVNCDisplay(t *testing.T) {
	display, err := FindVNCDisplay()
	if err != nil {
		t.Fatalf("FindVNCDisplay() returned an error: %v", err)
	}

	if display < 0 || display >= maxVNCDisplays {
		t.Errorf("expected display to be in range [0, %d), but got %d", maxVNCDisplays, display)
	}

	if !IsPortAvailable(VNCBasePort + display) {
		t.Errorf("FindVNCDisplay() returned display %d, but its port is not available", display)
	}
}
