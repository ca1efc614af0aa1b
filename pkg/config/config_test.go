package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/maleRjc/rtc-stack/pkg/config/configtest"
	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
)

func TestConfig_Defaults(t *testing.T) {
	conf, err := NewConfig("", true, nil, nil)
	require.NoError(t, err)

	require.Equal(t, uint32(7880), conf.Port)
	require.Equal(t, 4, conf.RTC.Workers)
	require.NotEmpty(t, conf.RTC.NetworkAddresses)
	require.Equal(t, 5*time.Second, conf.Signal.AnswerTimeout)

	tracks := conf.Tracks()
	require.Len(t, tracks, 2)
	require.Equal(t, webrtc.RTPCodecTypeAudio, tracks[0].Kind)
	require.Equal(t, sdpinfo.FormatOpus, tracks[0].Preference.Format)
	require.Equal(t, webrtc.RTPCodecTypeVideo, tracks[1].Kind)
	require.Equal(t, "42e01f", tracks[1].Preference.Profile)
}

func TestConfig_DefaultsKept(t *testing.T) {
	const content = `rtc:
  workers: 2
  network_addresses: [10.0.0.1]
signal:
  answer_timeout: 2s`
	conf, err := NewConfig(content, true, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, conf.RTC.Workers)
	require.Equal(t, []string{"10.0.0.1"}, conf.RTC.NetworkAddresses)
	require.Equal(t, 2*time.Second, conf.Signal.AnswerTimeout)
	require.Equal(t, uint16(1200), conf.RTC.MTU)
	require.Len(t, conf.RTC.Tracks, 2)
	require.Equal(t, []string{""}, conf.BindAddresses)
}

func TestConfig_TracksReplaced(t *testing.T) {
	const content = `rtc:
  tracks:
    - kind: audio
      format: opus`
	conf, err := NewConfig(content, true, nil, nil)
	require.NoError(t, err)
	require.Len(t, conf.Tracks(), 1)
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "unknown: 10"},
		{"audio h264", "rtc:\n  tracks:\n    - kind: audio\n      format: h264"},
		{"unknown kind", "rtc:\n  tracks:\n    - kind: data\n      format: opus"},
		{"no workers", "rtc:\n  workers: -1"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewConfig(test.content, true, nil, nil)
			require.Error(t, err)
		})
	}

	// lenient mode ignores unknown keys
	_, err := NewConfig("unknown: 10", false, nil, nil)
	require.NoError(t, err)
}

func TestNegotiationConfig(t *testing.T) {
	conf, err := NewConfig("rtc:\n  disable_rtx: true\n  mtu: 1000\n", true, nil, nil)
	require.NoError(t, err)

	nc := conf.NegotiationConfig()
	require.True(t, nc.DisableRTX)
	require.False(t, nc.DisableRED)
	require.Equal(t, uint16(1000), nc.MTU)
	require.Equal(t, time.Second, nc.StatInterval)
	require.Equal(t, 500, conf.AgentParams().PacketBufferSize)
}

func TestGeneratedFlags(t *testing.T) {
	generatedFlags, err := GenerateCLIFlags(nil, false)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range generatedFlags {
		names[f.Names()[0]] = true
	}
	require.True(t, names["rtc.disable_red"])
	require.True(t, names["signal.answer_timeout"])
	require.True(t, names["logging.level"])
	require.False(t, names["rtc.tracks"])

	app := cli.NewApp()
	app.Flags = append(app.Flags, generatedFlags...)

	set := flag.NewFlagSet("test", 0)
	set.Bool("rtc.disable_red", false, "")
	set.String("logging.level", "", "")
	set.Uint("prometheus_port", 0, "")
	set.Duration("signal.answer_timeout", 0, "")
	require.NoError(t, set.Parse([]string{
		"-rtc.disable_red",
		"-logging.level=debug",
		"-prometheus_port=9999",
		"-signal.answer_timeout=3s",
	}))

	c := cli.NewContext(app, set, nil)
	conf, err := NewConfig("", true, c, nil)
	require.NoError(t, err)

	require.True(t, conf.RTC.DisableRED)
	require.Equal(t, "debug", conf.Logging.Level)
	require.Equal(t, uint32(9999), conf.PrometheusPort)
	require.Equal(t, 3*time.Second, conf.Signal.AnswerTimeout)
}

func TestEnvVar(t *testing.T) {
	require.Equal(t, "RTC_STACK_RTC_STUN_SERVER", EnvVar("rtc.stun_server"))
}

func TestReadConfigString(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 1"), 0o644))

	body, err := ReadConfigString(path, "")
	require.NoError(t, err)
	require.Equal(t, "port: 1", body)

	body, err = ReadConfigString(path, "port: 2")
	require.NoError(t, err)
	require.Equal(t, "port: 2", body)

	_, err = ReadConfigString(filepath.Join(dir, "missing.yaml"), "")
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	out, err := DefaultConfig.Marshal()
	require.NoError(t, err)

	conf, err := NewConfig(out, true, nil, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig.Signal, conf.Signal)
	require.Equal(t, DefaultConfig.RTC.Tracks, conf.RTC.Tracks)
}

func TestYAMLTags(t *testing.T) {
	require.NoError(t, configtest.CheckYAMLTags(Config{}))
}
