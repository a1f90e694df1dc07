//go:build !unix

package topology

import (
	"context"
	"errors"
	"net"
	"os"
)

const (
	ListenerFD = 3
	SlotEnv    = "INTAKE_WORKER_SLOT"
)

var errUnsupported = errors.New("worker processes require a unix platform")

type ProcessSpawner struct{}

func NewProcessSpawner(*os.File, ...string) (*ProcessSpawner, error) {
	return nil, errUnsupported
}

func (p *ProcessSpawner) Spawn(context.Context, int) (Worker, error) {
	return nil, errUnsupported
}

func ListenerFile(net.Listener) (*os.File, error) {
	return nil, errUnsupported
}

func InheritedListener() (net.Listener, error) {
	return nil, errUnsupported
}

func Slot() int {
	return -1
}
