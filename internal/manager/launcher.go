package manager

import "github.com/loykin/procdash/internal/process"

// Handle is the manager's exclusive reference to one spawned process. Two
// handles are the same process instance iff they compare equal, so
// implementations must be pointer types.
type Handle interface {
	PID() int
	// Kill requests forceful termination; it does not wait.
	Kill() error
	// Done is closed once the OS has confirmed the exit.
	Done() <-chan struct{}
	// ExitErr is the exit status error, meaningful after Done is closed.
	ExitErr() error
}

// Launcher spawns processes for the manager.
type Launcher interface {
	Launch(spec process.Spec) (Handle, error)
}

// ExecLauncher spawns real OS processes through internal/process.
type ExecLauncher struct{}

func (ExecLauncher) Launch(spec process.Spec) (Handle, error) {
	p, err := process.Start(spec)
	if err != nil {
		return nil, err
	}
	return p, nil
}
