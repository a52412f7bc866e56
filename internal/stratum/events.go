package stratum

import (
	"math/big"

	"github.com/nmdata575/cryptominer-pro/internal/job"
)

// Event is what the session delivers to the coordinator. Exactly one
// concrete type per variant.
type Event interface {
	isEvent()
}

// JobNotification carries a decoded mining.notify job. The job's
// ShareTarget reflects the session difficulty at receipt time.
type JobNotification struct {
	Job *job.Job
}

// DifficultyChanged reports a mining.set_difficulty update. The new target
// applies to slices issued after this event; in-flight slices keep theirs.
type DifficultyChanged struct {
	Difficulty float64
	Target     *big.Int
}

// ShareResult resolves an earlier Submit. Lost marks submissions that got no
// response, either because they timed out or because the connection dropped,
// and were reconciled away.
type ShareResult struct {
	SubmitID uint64
	Accepted bool
	Lost     bool
	Kind     ErrorKind
	Reason   string
}

// SessionUp reports that the session (re-)entered the Mining state with
// fresh subscription parameters. All outstanding worker slices are invalid
// from this point.
type SessionUp struct {
	Extranonce1     []byte
	Extranonce2Size int
}

// ServerMessage carries any server notification the session does not
// consume itself.
type ServerMessage struct {
	Method string
	Params []interface{}
}

// Disconnected reports that the session ended: the connection dropped or
// could not be established. The session reconnects
// on its own unless the error is fatal (auth, resource).
type Disconnected struct {
	Err   error
	Fatal bool
}

func (JobNotification) isEvent()   {}
func (DifficultyChanged) isEvent() {}
func (ShareResult) isEvent()       {}
func (SessionUp) isEvent()         {}
func (ServerMessage) isEvent()     {}
func (Disconnected) isEvent()      {}
