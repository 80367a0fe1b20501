package device

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/credentials"
)

// TransportKind selects which session engine a Device uses.
type TransportKind string

const (
	TransportKLAP TransportKind = "klap"
	TransportAES  TransportKind = "aes"
)

// defaultPort is used when Config.Port is left at its zero value.
const defaultPort = 80

// Config is a single device's recognized configuration, per spec §6's
// flattened option set.
type Config struct {
	Host            string
	Port            int
	Transport       TransportKind
	TimeoutMS       int
	Credentials     credentials.Credentials
	CredentialsHash credentials.Hash
	Logger          common.Logger
	Now             common.NowFunc
}

// applyDefaults fills in the zero-value defaults the spec names: port 80
// when unset. Transport and timeout are required and not defaulted.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Logger == nil {
		c.Logger = common.NopLogger()
	}
	if c.Now == nil {
		c.Now = common.DefaultNowFunc
	}
}

// Validate checks the fields applyDefaults doesn't supply on its own.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", common.ErrInvalidArgument)
	}
	if c.Transport != TransportKLAP && c.Transport != TransportAES {
		return fmt.Errorf("%w: transport must be %q or %q, got %q", common.ErrInvalidArgument, TransportKLAP, TransportAES, c.Transport)
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("%w: timeout is required and must be > 0", common.ErrInvalidArgument)
	}
	return nil
}

// FromFlat builds a Config from a flattened, loosely-typed option map —
// the shape a caller assembling options from JSON/YAML/CLI flags actually
// has on hand — coercing each field with spf13/cast rather than requiring
// the caller to have already produced exact Go types.
func FromFlat(flat map[string]interface{}) Config {
	cfg := Config{
		Host:      cast.ToString(flat["host"]),
		Port:      cast.ToInt(flat["port"]),
		Transport: TransportKind(cast.ToString(flat["transport"])),
		TimeoutMS: cast.ToInt(flat["timeout"]),
	}

	if raw, ok := flat["credentials"]; ok {
		creds := cast.ToStringMapString(raw)
		cfg.Credentials = credentials.Credentials{
			Username: creds["username"],
			Password: creds["password"],
		}
	}
	if raw, ok := flat["credentialsHash"]; ok {
		cfg.CredentialsHash = credentials.Hash(cast.ToString(raw))
	}

	return cfg
}
