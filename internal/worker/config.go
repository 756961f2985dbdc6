package worker

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bizobs/journeysim/pkg/adapters/process"
	"github.com/bizobs/journeysim/pkg/domain"
)

// Config is the explicit identity a worker is constructed with. It is read
// from the environment exactly once at startup; nothing in the worker
// consults process-wide globals after that.
type Config struct {
	ServiceName string
	Context     domain.BusinessContext
	Port        int

	// ErrorRate is the probability [0,1] that a processed step fails when
	// error simulation is enabled in the payload.
	ErrorRate float64

	// SubstepScale converts declared substep durations (seconds of
	// simulated work) into real sleep time. Demo scale keeps it tiny.
	SubstepScale float64
}

// Env keys beyond the identity set injected by the spawner.
const (
	EnvErrorRate    = "JOURNEYSIM_ERROR_RATE"
	EnvSubstepScale = "JOURNEYSIM_SUBSTEP_SCALE"
)

// FromEnv builds a worker config from the environment the spawner set up.
func FromEnv() (Config, error) {
	cfg := Config{
		ServiceName: os.Getenv(process.EnvServiceName),
		Context: domain.BusinessContext{
			Company:  os.Getenv(process.EnvCompany),
			Domain:   os.Getenv(process.EnvDomain),
			Industry: os.Getenv(process.EnvIndustry),
		},
		ErrorRate:    0.1,
		SubstepScale: 0.001,
	}
	if cfg.ServiceName == "" {
		return Config{}, fmt.Errorf("%s is not set", process.EnvServiceName)
	}

	portStr := os.Getenv(process.EnvPort)
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return Config{}, fmt.Errorf("invalid %s %q", process.EnvPort, portStr)
	}
	cfg.Port = port

	if v := os.Getenv(EnvErrorRate); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate >= 0 && rate <= 1 {
			cfg.ErrorRate = rate
		}
	}
	if v := os.Getenv(EnvSubstepScale); v != "" {
		if scale, err := strconv.ParseFloat(v, 64); err == nil && scale >= 0 {
			cfg.SubstepScale = scale
		}
	}
	return cfg, nil
}
