package job

import "fmt"

// State is one state of the worker job state machine (spec §4.8).
type State int

const (
	None State = iota
	Waiting
	Running
	Done
	Error
	Aborted

	// Transient request states. Each returns to Running once the
	// client supplies the requested input.
	RequestFtpPassword
	RequestSshPassword
	RequestWebdavPassword
	RequestCryptPassword
	RequestVolume
)

func (s State) String() string {
	switch s {
	case None:
		return "None"
	case Waiting:
		return "Waiting"
	case Running:
		return "Running"
	case Done:
		return "Done"
	case Error:
		return "Error"
	case Aborted:
		return "Aborted"
	case RequestFtpPassword:
		return "RequestFtpPassword"
	case RequestSshPassword:
		return "RequestSshPassword"
	case RequestWebdavPassword:
		return "RequestWebdavPassword"
	case RequestCryptPassword:
		return "RequestCryptPassword"
	case RequestVolume:
		return "RequestVolume"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s ends the job instance. A terminal job
// record may be reused only after JOB_DELETE followed by JOB_NEW.
func (s State) IsTerminal() bool {
	return s == Done || s == Error || s == Aborted
}

// IsRequest reports whether s is one of the transient request states.
func (s State) IsRequest() bool {
	switch s {
	case RequestFtpPassword, RequestSshPassword, RequestWebdavPassword, RequestCryptPassword, RequestVolume:
		return true
	default:
		return false
	}
}

// transitions enumerates every state's legal successors.
var transitions = map[State][]State{
	None:                  {Waiting},
	Waiting:               {Running, Aborted},
	Running:               {Done, Error, Aborted, RequestFtpPassword, RequestSshPassword, RequestWebdavPassword, RequestCryptPassword, RequestVolume},
	RequestFtpPassword:    {Running, Aborted},
	RequestSshPassword:    {Running, Aborted},
	RequestWebdavPassword: {Running, Aborted},
	RequestCryptPassword:  {Running, Aborted},
	RequestVolume:         {Running, Aborted},
	Done:                  {None},
	Error:                 {None},
	Aborted:               {None},
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned by Job.Transition for an illegal move.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("job: invalid transition %s -> %s", e.From, e.To)
}
