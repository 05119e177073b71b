package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-otsota/flash"
	"github.com/moffa90/go-otsota/ota"
)

type Partition struct {
	Label  string `yaml:"label"`
	Offset int64  `yaml:"offset"`
	Size   int64  `yaml:"size"`
}

type Flash struct {
	Image         string      `yaml:"image"` // backing file of the simulated flash
	Size          int64       `yaml:"size"`
	PageSize      int64       `yaml:"pageSize"`
	SyncOnProgram bool        `yaml:"syncOnProgram"`
	Partitions    []Partition `yaml:"partitions"`
	Staging       string      `yaml:"staging"`
}

type Boot struct {
	StateDir string `yaml:"stateDir"` // empty keeps swap state in memory
}

type Transfer struct {
	BufferSize         int           `yaml:"bufferSize"`
	RebootDelay        time.Duration `yaml:"rebootDelay"`
	ObjectName         string        `yaml:"objectName"`
	StrictOffsets      bool          `yaml:"strictOffsets"`
	RejectActiveCreate bool          `yaml:"rejectActiveCreate"`
	IdleTimeout        time.Duration `yaml:"idleTimeout"`
}

type WebSocket struct {
	ReadBufferSize  int `yaml:"readBufferSize"`
	WriteBufferSize int `yaml:"writeBufferSize"`
}

// Device is the configuration of the simulated device.
type Device struct {
	Listen    string    `yaml:"listen"`
	Path      string    `yaml:"path"`
	LogLevel  string    `yaml:"logLevel"`
	Flash     Flash     `yaml:"flash"`
	Boot      Boot      `yaml:"boot"`
	Transfer  Transfer  `yaml:"transfer"`
	WebSocket WebSocket `yaml:"websocket"`
}

var (
	ErrConfigFileUnreadable      = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable  = errors.New("config file is unmarshallable")
	ErrListenMissing             = errors.New("listen is missing in config")
	ErrFlashImageMissing         = errors.New("flash.image is missing in config")
	ErrFlashSizeInvalid          = errors.New("flash.size is missing or invalid in config")
	ErrFlashPageSizeInvalid      = errors.New("flash.pageSize must divide flash.size")
	ErrPartitionsInvalid         = errors.New("flash.partitions do not fit the device")
	ErrStagingMissing            = errors.New("flash.staging does not name a partition")
	ErrTransferBufferSizeInvalid = errors.New("transfer.bufferSize must be positive and fit the staging partition")
	ErrTransferDurationInvalid   = errors.New("transfer durations must not be negative")
	ErrLogLevelInvalid           = errors.New("logLevel must be one of debug, info, warn, error")
)

// Default returns the configuration of a device with two 256 KiB slots.
func Default() *Device {
	return &Device{
		Listen:   "127.0.0.1:8080",
		Path:     "/ots",
		LogLevel: "info",
		Flash: Flash{
			Image:    "flash.img",
			Size:     0x80000,
			PageSize: 4096,
			Partitions: []Partition{
				{Label: "slot0_partition", Offset: 0x00000, Size: 0x40000},
				{Label: flash.DefaultStagingLabel, Offset: 0x40000, Size: 0x40000},
			},
			Staging: flash.DefaultStagingLabel,
		},
		Transfer: Transfer{
			BufferSize:  1024,
			RebootDelay: 2 * time.Second,
			ObjectName:  "firmware.bin",
		},
		WebSocket: WebSocket{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
	}
}

// LoadConfig reads a YAML configuration file. Values missing from the file
// keep their defaults.
func LoadConfig(configFile string) (*Device, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFileUnreadable, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFileUnmarshallable, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Device) Validate() error {
	if c.Listen == "" {
		return ErrListenMissing
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrLogLevelInvalid
	}

	if c.Flash.Image == "" {
		return ErrFlashImageMissing
	}
	if c.Flash.Size <= 0 {
		return ErrFlashSizeInvalid
	}
	if c.Flash.PageSize < 0 || (c.Flash.PageSize > 0 && c.Flash.Size%c.Flash.PageSize != 0) {
		return ErrFlashPageSizeInvalid
	}
	if err := c.Layout().Validate(c.Flash.Size); err != nil {
		return fmt.Errorf("%w: %v", ErrPartitionsInvalid, err)
	}

	staging, err := c.Staging()
	if err != nil {
		return err
	}
	if c.Flash.PageSize > 0 && staging.Offset%c.Flash.PageSize != 0 {
		return fmt.Errorf("%w: staging partition %s is not page aligned", ErrPartitionsInvalid, staging)
	}
	if c.Transfer.BufferSize <= 0 || int64(c.Transfer.BufferSize) > staging.Size {
		return ErrTransferBufferSizeInvalid
	}
	if c.Transfer.RebootDelay < 0 || c.Transfer.IdleTimeout < 0 {
		return ErrTransferDurationInvalid
	}
	return nil
}

// Layout returns the configured partitions.
func (c *Device) Layout() flash.Layout {
	layout := make(flash.Layout, 0, len(c.Flash.Partitions))
	for _, p := range c.Flash.Partitions {
		layout = append(layout, flash.Partition{Label: p.Label, Offset: p.Offset, Size: p.Size})
	}
	return layout
}

// Staging returns the partition images are received into.
func (c *Device) Staging() (flash.Partition, error) {
	p, err := c.Layout().Lookup(c.Flash.Staging)
	if err != nil {
		return flash.Partition{}, fmt.Errorf("%w: %v", ErrStagingMissing, err)
	}
	return p, nil
}

// Options returns the state machine options for the transfer section.
func (t Transfer) Options() []ota.Option {
	return []ota.Option{
		ota.WithBufferSize(t.BufferSize),
		ota.WithRebootDelay(t.RebootDelay),
		ota.WithObjectName(t.ObjectName),
		ota.WithStrictOffsets(t.StrictOffsets),
		ota.WithRejectActiveCreate(t.RejectActiveCreate),
		ota.WithIdleTimeout(t.IdleTimeout),
	}
}
