package telemetry

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig holds Pyroscope continuous profiling configuration
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string

	ProfileCPU        bool
	ProfileAlloc      bool
	ProfileInuse      bool
	ProfileGoroutines bool
	ProfileMutex      bool
	ProfileBlock      bool

	MutexProfileFraction int
	BlockProfileRate     int
}

// Profiler owns a running Pyroscope session
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	mu       sync.Mutex
	stopped  bool
}

// NewProfiler starts continuous profiling. With profiling disabled it
// returns a profiler whose Stop does nothing.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	p := &Profiler{logger: logger}
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled")
		return p, nil
	}
	if cfg.ServerAddress == "" {
		return nil, errors.New("profiler server address is required when profiling is enabled")
	}
	if cfg.ApplicationName == "" {
		return nil, errors.New("profiler application name is required when profiling is enabled")
	}

	if cfg.ProfileMutex {
		runtime.SetMutexProfileFraction(positiveOr(cfg.MutexProfileFraction, 5))
	}
	if cfg.ProfileBlock {
		runtime.SetBlockProfileRate(positiveOr(cfg.BlockProfileRate, 5))
	}

	tags := map[string]string{}
	if host := os.Getenv("HOSTNAME"); host != "" {
		tags["hostname"] = host
	}

	session, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            logger.Named("pyroscope").Sugar(),
		Tags:              tags,
		ProfileTypes:      profileTypes(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	p.profiler = session
	logger.Info("Pyroscope profiler started",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
	)
	return p, nil
}

func profileTypes(cfg ProfilerConfig) []pyroscope.ProfileType {
	var types []pyroscope.ProfileType
	if cfg.ProfileCPU {
		types = append(types, pyroscope.ProfileCPU)
	}
	if cfg.ProfileAlloc {
		types = append(types, pyroscope.ProfileAllocObjects, pyroscope.ProfileAllocSpace)
	}
	if cfg.ProfileInuse {
		types = append(types, pyroscope.ProfileInuseObjects, pyroscope.ProfileInuseSpace)
	}
	if cfg.ProfileGoroutines {
		types = append(types, pyroscope.ProfileGoroutines)
	}
	if cfg.ProfileMutex {
		types = append(types, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration)
	}
	if cfg.ProfileBlock {
		types = append(types, pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration)
	}
	return types
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// IsEnabled reports whether a session is running
func (p *Profiler) IsEnabled() bool {
	return p.profiler != nil
}

// Stop flushes and ends the session. Safe to call more than once.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.profiler == nil {
		p.stopped = true
		return nil
	}
	p.stopped = true
	if err := p.profiler.Stop(); err != nil {
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	p.logger.Info("Pyroscope profiler stopped")
	return nil
}
