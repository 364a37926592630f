package hostsim

import "github.com/ethereum/go-ethereum/metrics"

// Dispatch accounting, shared by all harness instances in the process.
var (
	callCounter    = metrics.NewRegisteredCounter("hostsim/calls", nil)
	mockHitCounter = metrics.NewRegisteredCounter("hostsim/mock/hits", nil)
	revertCounter  = metrics.NewRegisteredCounter("hostsim/reverts", nil)
)
