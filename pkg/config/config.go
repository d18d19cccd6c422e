// Package config loads kernel tunables from YAML.
//
// Every field has a default matching the reference board configuration, so
// a missing or partial file is fine:
//
//	kernel:
//	  max_procs: 64
//	  time_slice: 10
//	  timer_interval: 100ms
//	log:
//	  level: debug
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults, matching the reference QEMU virt configuration.
const (
	DefaultMaxProcs        = 64
	DefaultTimerInterval   = 100 * time.Millisecond
	DefaultKernelStackSize = 16 * 1024
	DefaultUserStackSize   = 1024 * 1024
	DefaultPriority        = 10
)

// DefaultTimeSlice is the number of ticks in one second of CPU time.
const DefaultTimeSlice = int(time.Second / DefaultTimerInterval)

// Config is the top-level configuration.
type Config struct {
	Kernel Kernel `yaml:"kernel"`
	Log    Log    `yaml:"log"`
}

// Kernel holds process-subsystem tunables.
type Kernel struct {
	// MaxProcs is the process table capacity, including init.
	MaxProcs int `yaml:"max_procs" validate:"min=2,max=4096"`
	// TimeSlice is the number of timer ticks a process runs before forced
	// preemption.
	TimeSlice int `yaml:"time_slice" validate:"min=1"`
	// TimerInterval is the period of the timer interrupt.
	TimerInterval time.Duration `yaml:"timer_interval" validate:"gt=0"`
	// KernelStackSize is allocated from the heap per process.
	KernelStackSize int `yaml:"kernel_stack_size" validate:"min=1024"`
	// UserStackSize is reserved per process for its initial trap frame sp.
	UserStackSize int `yaml:"user_stack_size" validate:"min=0"`
	// HeapSize bounds the kernel heap in bytes; zero means unbounded.
	HeapSize int `yaml:"heap_size" validate:"min=0"`
	// DefaultPriority is assigned to new processes. Lower is higher.
	DefaultPriority int `yaml:"default_priority" validate:"min=0,max=39"`
}

// Log configures kernel logging.
type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Kernel: Kernel{
			MaxProcs:        DefaultMaxProcs,
			TimeSlice:       DefaultTimeSlice,
			TimerInterval:   DefaultTimerInterval,
			KernelStackSize: DefaultKernelStackSize,
			UserStackSize:   DefaultUserStackSize,
			DefaultPriority: DefaultPriority,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
