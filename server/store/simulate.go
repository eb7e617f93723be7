package store

import (
	"fmt"
	"math/rand/v2"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

// DefaultCenter is where simulated alerts are placed (Hyderabad).
var DefaultCenter = [2]float64{17.3850, 78.4867}

// DefaultSpread is the maximum offset in degrees applied to each axis.
const DefaultSpread = 0.05

// SimulatedAlert is a synthetic SOS used to exercise the pipeline end to end.
type SimulatedAlert struct {
	Phone   string
	Lat     float64
	Lng     float64
	TestRun string
}

// NewSimulatedAlert builds a TEST-nnnn alert jittered around center.
func NewSimulatedAlert(r *rand.Rand, center [2]float64, spread float64) SimulatedAlert {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return SimulatedAlert{
		Phone:   fmt.Sprintf("TEST-%04d", r.IntN(10000)),
		Lat:     center[0] + (r.Float64()*2-1)*spread,
		Lng:     center[1] + (r.Float64()*2-1)*spread,
		TestRun: uuid.NewString(),
	}
}

// Fields is the document written for the alert. The timestamp is assigned by
// the server.
func (s SimulatedAlert) Fields() map[string]any {
	return map[string]any{
		"phone":     s.Phone,
		"lat":       s.Lat,
		"lng":       s.Lng,
		"status":    "OPEN",
		"timestamp": firestore.ServerTimestamp,
		"is_test":   true,
		"test_run":  s.TestRun,
	}
}
