//go:build unix

package topology

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

const (
	// ListenerFD is the descriptor a worker finds the shared listener on.
	ListenerFD = 3
	// SlotEnv carries the pool slot into the worker process.
	SlotEnv = "INTAKE_WORKER_SLOT"
)

// ProcessSpawner re-executes a binary for every slot and hands it the shared
// listening socket as descriptor 3.
type ProcessSpawner struct {
	Path     string
	Args     []string
	Env      []string
	Listener *os.File
	Stdout   io.Writer
	Stderr   io.Writer
}

// NewProcessSpawner prepares a spawner that runs the current executable with args.
func NewProcessSpawner(listener *os.File, args ...string) (*ProcessSpawner, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &ProcessSpawner{
		Path:     path,
		Args:     args,
		Listener: listener,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}, nil
}

func (p *ProcessSpawner) Spawn(_ context.Context, slot int) (Worker, error) {
	if p.Listener == nil {
		return nil, errors.New("spawn worker: no listener")
	}
	cmd := exec.Command(p.Path, p.Args...)
	cmd.Env = append(append(os.Environ(), p.Env...), SlotEnv+"="+strconv.Itoa(slot))
	cmd.ExtraFiles = []*os.File{p.Listener}
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	// Terminal signals reach only the coordinator, which stops workers itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}
	return &processWorker{cmd: cmd}, nil
}

type processWorker struct {
	cmd *exec.Cmd
}

func (w *processWorker) PID() int {
	return w.cmd.Process.Pid
}

func (w *processWorker) Wait() error {
	return w.cmd.Wait()
}

func (w *processWorker) Stop() error {
	return w.cmd.Process.Signal(syscall.SIGTERM)
}

func (w *processWorker) Kill() error {
	return w.cmd.Process.Kill()
}

// ListenerFile duplicates the descriptor behind a TCP listener so it can be
// passed to child processes.
func ListenerFile(ln net.Listener) (*os.File, error) {
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, fmt.Errorf("listener %T cannot be shared", ln)
	}
	return tcp.File()
}

// InheritedListener rebuilds the listener a ProcessSpawner passed in.
func InheritedListener() (net.Listener, error) {
	f := os.NewFile(ListenerFD, "intake-listener")
	if f == nil {
		return nil, errors.New("no inherited listener")
	}
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("inherited listener: %w", err)
	}
	return ln, nil
}

// Slot returns the pool slot of this worker process, or -1 outside a pool.
func Slot() int {
	n, err := strconv.Atoi(os.Getenv(SlotEnv))
	if err != nil {
		return -1
	}
	return n
}
