package relayer

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/GenerationSoftware/ERC5164/protocol"
)

// Transport kinds a relay node can be configured with.
const (
	TransportTicket    = "ticket"
	TransportMessenger = "messenger"
	TransportTunnel    = "tunnel"
)

type Configuration struct {
	OriginChainID        uint64           `toml:"origin_chain_id"`
	DestChainID          uint64           `toml:"dest_chain_id"`
	Transport            string           `toml:"transport"`
	DispatcherAddress    string           `toml:"dispatcher_address"`
	ExecutorAddress      string           `toml:"executor_address"`
	MessengerAddress     string           `toml:"messenger_address"`
	TunnelRelayerAddress string           `toml:"tunnel_relayer_address"`
	RedisURL             string           `toml:"redis_url"`
	ShutdownTimeout      string           `toml:"shutdown_timeout"`
	Monitoring           MonitoringConfig `toml:"Monitoring"`
}

// MonitoringConfig provides monitoring configuration for the relayer.
type MonitoringConfig struct {
	// Enabled enables the monitoring system.
	Enabled bool `toml:"Enabled"`
	// Type is the type of monitoring system to use (otel, noop).
	Type string `toml:"Type"`
}

// LoadConfiguration reads and validates a TOML configuration file.
func LoadConfiguration(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Configuration
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func (c *Configuration) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.OriginChainID, validation.Required),
		validation.Field(&c.DestChainID, validation.Required),
		validation.Field(&c.Transport, validation.Required,
			validation.In(TransportTicket, TransportMessenger, TransportTunnel)),
		validation.Field(&c.DispatcherAddress, validation.Required, validation.By(validAddress)),
		validation.Field(&c.ExecutorAddress, validation.Required, validation.By(validAddress)),
		validation.Field(&c.MessengerAddress,
			validation.Required.When(c.Transport == TransportMessenger),
			validation.By(validAddressOrEmpty)),
		validation.Field(&c.TunnelRelayerAddress,
			validation.Required.When(c.Transport == TransportTunnel),
			validation.By(validAddressOrEmpty)),
	)
	if err != nil {
		return err
	}

	if c.OriginChainID == c.DestChainID {
		return fmt.Errorf("origin_chain_id and dest_chain_id must differ")
	}
	if err := c.Monitoring.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate performs validation on the monitoring configuration.
func (m *MonitoringConfig) Validate() error {
	if m.Enabled && m.Type == "" {
		return fmt.Errorf("monitoring type is required when monitoring is enabled")
	}
	if m.Enabled && m.Type != "otel" && m.Type != "noop" {
		return fmt.Errorf("unknown monitoring type: %s", m.Type)
	}
	return nil
}

func (c *Configuration) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

func validAddress(value any) error {
	s, _ := value.(string)
	addr, err := protocol.NewUnknownAddressFromHex(s)
	if err != nil {
		return err
	}
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	return nil
}

func validAddressOrEmpty(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	return validAddress(value)
}
