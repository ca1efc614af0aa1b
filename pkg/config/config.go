// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
)

const (
	generatedCLIFlagUsage = "generated"
	envPrefix             = "RTC_STACK_"
)

var (
	ErrNoTracks       = errors.New("at least one track must be configured")
	ErrInvalidTrack   = errors.New("track kind and format do not match")
	ErrInvalidWorkers = errors.New("workers must be positive")
)

type Config struct {
	Port           uint32        `yaml:"port,omitempty"`
	BindAddresses  []string      `yaml:"bind_addresses,omitempty"`
	PrometheusPort uint32        `yaml:"prometheus_port,omitempty"`
	RTC            RTCConfig     `yaml:"rtc,omitempty"`
	Signal         SignalConfig  `yaml:"signal,omitempty"`
	Logging        logger.Config `yaml:"logging,omitempty"`

	Development bool `yaml:"development,omitempty"`
}

type RTCConfig struct {
	Workers int `yaml:"workers,omitempty"`
	// addresses advertised as host candidates, local interfaces when empty
	NetworkAddresses []string `yaml:"network_addresses,omitempty"`
	STUNServer       string   `yaml:"stun_server,omitempty"`
	MTU              uint16   `yaml:"mtu,omitempty"`
	// packets buffered per media stream
	PacketBufferSize int `yaml:"packet_buffer_size,omitempty"`

	DisableRED             bool `yaml:"disable_red,omitempty"`
	DisableRTX             bool `yaml:"disable_rtx,omitempty"`
	DisableULPFEC          bool `yaml:"disable_ulpfec,omitempty"`
	DisableAudioGCC        bool `yaml:"disable_audio_gcc,omitempty"`
	EnableExtmapAllowMixed bool `yaml:"enable_extmap_allow_mixed,omitempty"`

	Tracks []TrackConfig `yaml:"tracks,omitempty"`
}

// TrackConfig is a track offered to every connection that does not bring
// its own.
type TrackConfig struct {
	Kind    string `yaml:"kind,omitempty"`
	Format  string `yaml:"format,omitempty"`
	Profile string `yaml:"profile,omitempty"`
}

type SignalConfig struct {
	// how long a WHIP request waits for the gathered answer
	AnswerTimeout   time.Duration `yaml:"answer_timeout,omitempty"`
	AnswerCacheSize int           `yaml:"answer_cache_size,omitempty"`
	StatDebounce    time.Duration `yaml:"stat_debounce,omitempty"`
}

var DefaultConfig = Config{
	Port:          7880,
	BindAddresses: []string{""},
	RTC: RTCConfig{
		Workers:          4,
		STUNServer:       "stun:stun.l.google.com:19302",
		MTU:              1200,
		PacketBufferSize: 500,
		Tracks: []TrackConfig{
			{Kind: "audio", Format: "opus"},
			{Kind: "video", Format: "h264", Profile: "42e01f"},
		},
	},
	Signal: SignalConfig{
		AnswerTimeout:   5 * time.Second,
		AnswerCacheSize: 1024,
		StatDebounce:    time.Second,
	},
	Logging: logger.Config{
		JSON:  false,
		Level: "info",
	},
}

func NewConfig(confString string, strictMode bool, c *cli.Context, baseFlags []cli.Flag) (*Config, error) {
	// start with defaults
	marshalled, err := yaml.Marshal(&DefaultConfig)
	if err != nil {
		return nil, err
	}

	var conf Config
	err = yaml.Unmarshal(marshalled, &conf)
	if err != nil {
		return nil, err
	}

	if confString != "" {
		// lists replace the defaults instead of merging into them
		conf.RTC.Tracks = nil
		conf.BindAddresses = nil
		decoder := yaml.NewDecoder(strings.NewReader(confString))
		decoder.KnownFields(strictMode)
		if err := decoder.Decode(&conf); err != nil {
			return nil, fmt.Errorf("could not parse config: %v", err)
		}
		if conf.RTC.Tracks == nil {
			conf.RTC.Tracks = append([]TrackConfig(nil), DefaultConfig.RTC.Tracks...)
		}
		if conf.BindAddresses == nil {
			conf.BindAddresses = append([]string(nil), DefaultConfig.BindAddresses...)
		}
	}

	if c != nil {
		if err := conf.updateFromCLI(c, baseFlags); err != nil {
			return nil, err
		}
	}

	if err := conf.RTC.Validate(); err != nil {
		return nil, fmt.Errorf("could not validate RTC config: %v", err)
	}

	if conf.Logging.Level == "" && conf.Development {
		conf.Logging.Level = "debug"
	}

	return &conf, nil
}

func (conf *RTCConfig) Validate() error {
	if conf.Workers < 1 {
		return ErrInvalidWorkers
	}
	if len(conf.Tracks) == 0 {
		return ErrNoTracks
	}
	for _, t := range conf.Tracks {
		if _, err := t.TrackInfo(""); err != nil {
			return err
		}
	}
	if len(conf.NetworkAddresses) == 0 {
		addresses, err := GetLocalIPAddresses(false)
		if err != nil {
			return err
		}
		conf.NetworkAddresses = addresses
	}
	return nil
}

// TrackInfo converts the configured track, direction is filled in by the
// agent for publish and subscribe.
func (t TrackConfig) TrackInfo(direction string) (types.TrackInfo, error) {
	format := sdpinfo.ParseFormat(t.Format)

	var kind webrtc.RTPCodecType
	switch strings.ToLower(t.Kind) {
	case "audio":
		kind = webrtc.RTPCodecTypeAudio
		if format != sdpinfo.FormatOpus {
			return types.TrackInfo{}, errors.Wrapf(ErrInvalidTrack, "%s/%s", t.Kind, t.Format)
		}
	case "video":
		kind = webrtc.RTPCodecTypeVideo
		if format != sdpinfo.FormatH264 {
			return types.TrackInfo{}, errors.Wrapf(ErrInvalidTrack, "%s/%s", t.Kind, t.Format)
		}
	default:
		return types.TrackInfo{}, errors.Wrapf(ErrInvalidTrack, "unknown kind %q", t.Kind)
	}

	return types.TrackInfo{
		Kind:      kind,
		Direction: direction,
		Preference: sdpinfo.FormatPreference{
			Format:  format,
			Profile: t.Profile,
		},
	}, nil
}

func (conf *Config) Tracks() []types.TrackInfo {
	tracks := make([]types.TrackInfo, 0, len(conf.RTC.Tracks))
	for _, t := range conf.RTC.Tracks {
		if info, err := t.TrackInfo(""); err == nil {
			tracks = append(tracks, info)
		}
	}
	return tracks
}

func (conf *Config) NegotiationConfig() rtc.NegotiationConfig {
	return rtc.NegotiationConfig{
		DisableRED:             conf.RTC.DisableRED,
		DisableRTX:             conf.RTC.DisableRTX,
		DisableULPFEC:          conf.RTC.DisableULPFEC,
		DisableAudioGCC:        conf.RTC.DisableAudioGCC,
		EnableExtmapAllowMixed: conf.RTC.EnableExtmapAllowMixed,
		MTU:                    conf.RTC.MTU,
		StatInterval:           conf.Signal.StatDebounce,
	}
}

func (conf *Config) AgentParams() rtc.AgentParams {
	return rtc.AgentParams{
		Config:           conf.NegotiationConfig(),
		PacketBufferSize: conf.RTC.PacketBufferSize,
	}
}

type configNode struct {
	TypeNode  reflect.Value
	TagPrefix string
}

func (conf *Config) ToCLIFlagNames(existingFlags []cli.Flag) map[string]reflect.Value {
	existingFlagNames := map[string]bool{}
	for _, flag := range existingFlags {
		for _, flagName := range flag.Names() {
			existingFlagNames[flagName] = true
		}
	}

	flagNames := map[string]reflect.Value{}
	var currNode configNode
	nodes := []configNode{{reflect.ValueOf(conf).Elem(), ""}}
	for len(nodes) > 0 {
		currNode, nodes = nodes[0], nodes[1:]
		for i := 0; i < currNode.TypeNode.NumField(); i++ {
			// inspect yaml tag from struct field to get path
			field := currNode.TypeNode.Type().Field(i)
			yamlTag := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
			if yamlTag == "" || yamlTag == "-" {
				continue
			}
			yamlPath := yamlTag
			if currNode.TagPrefix != "" {
				yamlPath = fmt.Sprintf("%s.%s", currNode.TagPrefix, yamlTag)
			}
			if existingFlagNames[yamlPath] {
				continue
			}

			// map flag name to value
			value := currNode.TypeNode.Field(i)
			if value.Kind() == reflect.Struct {
				nodes = append(nodes, configNode{value, yamlPath})
			} else {
				flagNames[yamlPath] = value
			}
		}
	}

	return flagNames
}

func EnvVar(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, ".", "_"))
}

func GenerateCLIFlags(existingFlags []cli.Flag, hidden bool) ([]cli.Flag, error) {
	blankConfig := &Config{}
	flags := make([]cli.Flag, 0)
	for name, value := range blankConfig.ToCLIFlagNames(existingFlags) {
		kind := value.Kind()
		if kind == reflect.Ptr {
			kind = value.Type().Elem().Kind()
		}

		var flag cli.Flag
		envVars := []string{EnvVar(name)}

		switch kind {
		case reflect.Bool:
			flag = &cli.BoolFlag{
				Name:    name,
				EnvVars: envVars,
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.String:
			flag = &cli.StringFlag{
				Name:    name,
				EnvVars: envVars,
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Int, reflect.Int32:
			flag = &cli.IntFlag{
				Name:    name,
				EnvVars: envVars,
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Int64:
			if value.Type() == reflect.TypeOf(time.Duration(0)) {
				flag = &cli.DurationFlag{
					Name:    name,
					EnvVars: envVars,
					Usage:   generatedCLIFlagUsage,
					Hidden:  hidden,
				}
				break
			}
			flag = &cli.Int64Flag{
				Name:    name,
				EnvVars: envVars,
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Uint8, reflect.Uint16, reflect.Uint32:
			flag = &cli.UintFlag{
				Name:    name,
				EnvVars: envVars,
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Uint64:
			flag = &cli.Uint64Flag{
				Name:    name,
				EnvVars: envVars,
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Slice:
			if value.Type().Elem().Kind() != reflect.String {
				// structured lists come from the config file only
				continue
			}
			flag = &cli.StringSliceFlag{
				Name:    name,
				EnvVars: envVars,
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Map, reflect.Struct:
			continue
		default:
			return flags, fmt.Errorf("cli flag generation unsupported for config type: %s is a %s", name, kind.String())
		}

		flags = append(flags, flag)
	}

	return flags, nil
}

func (conf *Config) updateFromCLI(c *cli.Context, baseFlags []cli.Flag) error {
	generatedFlagNames := conf.ToCLIFlagNames(baseFlags)
	for _, flag := range c.App.Flags {
		flagName := flag.Names()[0]

		// the `c.App.Name != "test"` check is needed because `c.IsSet(...)` is always false in unit tests
		if !c.IsSet(flagName) && c.App.Name != "test" {
			continue
		}

		configValue, ok := generatedFlagNames[flagName]
		if !ok {
			continue
		}

		kind := configValue.Kind()
		if kind == reflect.Ptr {
			// instantiate value to be set
			configValue.Set(reflect.New(configValue.Type().Elem()))

			kind = configValue.Type().Elem().Kind()
			configValue = configValue.Elem()
		}

		switch kind {
		case reflect.Bool:
			configValue.SetBool(c.Bool(flagName))
		case reflect.String:
			configValue.SetString(c.String(flagName))
		case reflect.Int, reflect.Int32:
			configValue.SetInt(c.Int64(flagName))
		case reflect.Int64:
			if configValue.Type() == reflect.TypeOf(time.Duration(0)) {
				configValue.SetInt(int64(c.Duration(flagName)))
			} else {
				configValue.SetInt(c.Int64(flagName))
			}
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			configValue.SetUint(c.Uint64(flagName))
		case reflect.Slice:
			configValue.Set(reflect.ValueOf(c.StringSlice(flagName)))
		default:
			return fmt.Errorf("unsupported generated cli flag type for config: %s is a %s", flagName, kind.String())
		}
	}

	if c.IsSet("dev") {
		conf.Development = c.Bool("dev")
	}
	if c.IsSet("bind") {
		conf.BindAddresses = c.StringSlice("bind")
	}
	if c.IsSet("node-ip") {
		conf.RTC.NetworkAddresses = c.StringSlice("node-ip")
	}
	return nil
}

// Marshal renders the config as it would be written to a file.
func (conf *Config) Marshal() (string, error) {
	out, err := yaml.Marshal(conf)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ReadConfigString returns the inline body when given, otherwise the content
// of the file at path. Paths may use ~ and environment variables.
func ReadConfigString(path string, body string) (string, error) {
	if body != "" || path == "" {
		return body, nil
	}
	file, err := homedir.Expand(os.ExpandEnv(path))
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func InitLoggerFromConfig(config *logger.Config) error {
	return logger.InitFromConfig(*config, "rtc-stack")
}
