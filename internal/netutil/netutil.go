package netutil

import (
	"fmt"
	"net"
	"time"
)

const (
	// VNCBasePort is the TCP port of VNC display :0
	VNCBasePort = 5900
	// maxVNCDisplays bounds the displays probed for a free one
	maxVNCDisplays = 100
)

// FindVNCDisplay finds a VNC display number whose port is free on localhost.
// Probing starts at a time-derived offset so parallel runs rarely collide.
var FindVNCDisplay = func() (int, error) {
	start := int(time.Now().UnixNano() % maxVNCDisplays)
	for i := 0; i < maxVNCDisplays; i++ {
		display := (start + i) % maxVNCDisplays
		if IsPortAvailable(VNCBasePort + display) {
			return display, nil
		}
	}
	return 0, fmt.Errorf("could not find a free VNC display after %d attempts", maxVNCDisplays)
}

// IsPortAvailable checks if a TCP port is available to be listened on.
func IsPortAvailable(port int) bool {
	address := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}
