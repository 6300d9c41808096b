package obs

import (
	"fmt"

	"github.com/google/uuid"
)

// NewRunID generates a unique identifier for a single simulation run.
func NewRunID() string { return "run_" + uuid.NewString() }

// NewWindowRunID generates a unique identifier for one walk-forward window
// sub-run (train or test), so individual window logs can be correlated.
func NewWindowRunID(windowID int, phase string) string {
	return fmt.Sprintf("wf_%d_%s_%s", windowID, phase, uuid.NewString()[:8])
}
