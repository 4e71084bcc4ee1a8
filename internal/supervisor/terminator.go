package supervisor

import "os"

// Terminator is the platform capability used by stop. Interrupt asks the
// process (and its group) to shut down cooperatively; Kill ends it
// unconditionally. Waiting is handled by the controller.
type Terminator interface {
	Interrupt(p *os.Process) error
	Kill(p *os.Process) error
}

// DefaultTerminator returns the terminator for the host platform.
func DefaultTerminator() Terminator {
	return platformTerminator{}
}
