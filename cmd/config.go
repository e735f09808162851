package cmd

import (
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"github.com/moratsam/rlnc/codec"
	"github.com/moratsam/rlnc/gf"
	"github.com/moratsam/rlnc/packet"
	proc_unit "github.com/moratsam/rlnc/pu"
	cl "github.com/moratsam/rlnc/pu/opencl"
	vl "github.com/moratsam/rlnc/pu/vanilla"
	u "github.com/moratsam/rlnc/util"
)

var ErrConfig = xerrors.New("invalid configuration")

const envPrefix = "RLNC"

type Config struct {
	GenerationSize int    `mapstructure:"generation-size"`
	PacketSize     int    `mapstructure:"packet-size"`
	Redundancy     int    `mapstructure:"redundancy"`
	Systematic     bool   `mapstructure:"systematic"`
	Proc           string `mapstructure:"proc"`
	Workers        int    `mapstructure:"workers"`
	Field          string `mapstructure:"field"`
	LogLevel       string `mapstructure:"log-level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("generation-size", 8)
	v.SetDefault("packet-size", 1024)
	v.SetDefault("redundancy", 2)
	v.SetDefault("systematic", false)
	v.SetDefault("proc", "sequential")
	v.SetDefault("workers", 4)
	v.SetDefault("field", "rlnc")
	v.SetDefault("log-level", "info")
}

// newViper returns a viper with the defaults set and RLNC_* environment
// variables bound, RLNC_GENERATION_SIZE for generation-size and so on.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the optional config file at path into v, then decodes
// and validates the merged settings.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, u.WrapErr("read config", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, u.WrapErr("decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.GenerationSize < 1 || c.GenerationSize > packet.MaxGenerationSize:
		return xerrors.Errorf("generation-size %d not in [1, %d]: %w", c.GenerationSize, packet.MaxGenerationSize, ErrConfig)
	case c.PacketSize < 1 || c.PacketSize > 0xFFFF:
		return xerrors.Errorf("packet-size %d not in [1, 65535]: %w", c.PacketSize, ErrConfig)
	case c.Redundancy < 0 || c.Redundancy > 0xFFFF:
		return xerrors.Errorf("redundancy %d not in [0, 65535]: %w", c.Redundancy, ErrConfig)
	case c.Proc != "sequential" && c.Proc != "streamer" && c.Proc != "opencl":
		return xerrors.Errorf("proc %q: %w", c.Proc, ErrConfig)
	case c.Workers < 1:
		return xerrors.Errorf("workers %d: %w", c.Workers, ErrConfig)
	}
	if _, ok := gf.ByName(c.Field); !ok {
		return xerrors.Errorf("field %q: %w", c.Field, ErrConfig)
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return xerrors.Errorf("log-level %q: %w", c.LogLevel, ErrConfig)
	}
	return nil
}

func (c *Config) Params() codec.Params {
	field, _ := gf.ByName(c.Field)
	return codec.Params{
		GenerationSize: c.GenerationSize,
		PacketSize:     c.PacketSize,
		Redundancy:     c.Redundancy,
		Field:          field,
	}
}

func (c *Config) puFactory() codec.PUFactory {
	systematic := c.Systematic
	if c.Proc == "opencl" {
		return func(p codec.Params) (proc_unit.PU, error) {
			return cl.NewOpenCLPU(p.GenerationSize, p.PacketSize, cl.WithField(p.Field), cl.Systematic(systematic))
		}
	}
	return func(p codec.Params) (proc_unit.PU, error) {
		return vl.NewVanillaPU(p.GenerationSize, p.PacketSize, vl.WithField(p.Field), vl.Systematic(systematic)), nil
	}
}

// Codec builds the codec selected by proc. The opencl processor shares one
// device between the workers of a streamer.
func (c *Config) Codec() (codec.Codec, error) {
	switch c.Proc {
	case "streamer", "opencl":
		return codec.NewStreamerCodec(c.Params(), c.puFactory(), c.Workers)
	default:
		return codec.NewCodec(c.Params(), c.puFactory())
	}
}

func setLogLevel(level string) error {
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return u.WrapErr("log level", err)
	}
	logging.SetAllLoggers(lvl)
	return nil
}
