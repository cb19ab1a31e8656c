// internal/motor/errors.go
package motor

import (
	"errors"
	"fmt"

	"github.com/tamzrod/eldrive/internal/fieldbus"
)

// CodeNotOperational is published when bring-up finished with the link gate
// closed.
const CodeNotOperational uint16 = 30

var (
	// ErrScanActive rejects manual pointing while a scan owns the axis.
	ErrScanActive = errors.New("motor: a scan is active")

	// ErrOffsetPending means an earlier offset command has not been applied yet.
	ErrOffsetPending = errors.New("motor: offset command already pending")

	ErrAlreadyRunning = errors.New("motor: already running")
	ErrStopped        = errors.New("motor: stopped")
)

// NotOperationalError means the segment reached OP but CommsOK stayed false,
// e.g. the amplifier has no distributed clock or latched a slave error.
type NotOperationalError struct {
	Link fieldbus.LinkState
}

func (e *NotOperationalError) Error() string {
	return fmt.Sprintf("motor: bus %s but not operational (dc=%t slave_error=%t)",
		e.Link.Status, e.Link.HasDC, e.Link.SlaveError)
}

func (e *NotOperationalError) Code() uint16 { return CodeNotOperational }
