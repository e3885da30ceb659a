package start

import (
	"net"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"

	"github.com/alpacahq/aesdsocket/utils/log"
)

const (
	daemonEnv = "AESDSOCKET_DAEMON_CHILD"
	// first entry of ExtraFiles
	inheritedListenerFD = 3
)

func isDaemonChild() bool {
	return os.Getenv(daemonEnv) == "1"
}

func inheritedListener() (net.Listener, error) {
	f := os.NewFile(inheritedListenerFD, "listener")
	if f == nil {
		return nil, errors.New("no inherited listener")
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to use inherited listener")
	}
	return ln, nil
}

// daemonize re-executes the binary in a new session, hands it the bound
// listener and returns so the caller can exit 0.
func daemonize(ln net.Listener) error {
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return errors.Errorf("cannot hand over listener of type %T", ln)
	}
	defer ln.Close()

	f, err := tl.File()
	if err != nil {
		return errors.Wrap(err, "failed to duplicate listener")
	}
	defer f.Close()

	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "failed to locate executable")
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "failed to open "+os.DevNull)
	}
	defer devNull.Close()

	child := exec.Command(exe, os.Args[1:]...)
	child.Env = append(os.Environ(), daemonEnv+"=1")
	child.Stdin, child.Stdout, child.Stderr = devNull, devNull, devNull
	child.ExtraFiles = []*os.File{f}
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return errors.Wrap(err, "failed to start daemon")
	}
	log.Info("running in background as pid %d", child.Process.Pid)
	return child.Process.Release()
}
