package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/maleRjc/rtc-stack/pkg/config"
)

const testOffer = "v=0\r\n" +
	"o=- 1 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111 63\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=ice-ufrag:peer\r\n" +
	"a=ice-pwd:peerpasswordpeerpassword\r\n" +
	"a=setup:actpass\r\n" +
	"a=mid:0\r\n" +
	"a=extmap:4 urn:ietf:params:rtp-hdrext:sdes:mid\r\n" +
	"a=sendonly\r\n" +
	"a=rtcp-mux\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=rtpmap:63 red/48000/2\r\n" +
	"a=fmtp:63 111/111\r\n" +
	"a=ssrc:1001 cname:peer\r\n"

func testApp(out *bytes.Buffer) *cli.App {
	generatedFlags, _ := config.GenerateCLIFlags(baseFlags, true)
	return &cli.App{
		Name:   "rtc-stack",
		Writer: out,
		Flags:  append(baseFlags, generatedFlags...),
		Commands: []*cli.Command{
			{Name: "inspect-sdp", Action: inspectSdp},
			{Name: "generate-config", Action: generateConfig},
			{Name: "ports", Action: printPorts},
		},
	}
}

func TestInspectSdp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offer.sdp")
	require.NoError(t, os.WriteFile(path, []byte(testOffer), 0o644))

	out := &bytes.Buffer{}
	require.NoError(t, testApp(out).Run([]string{"rtc-stack", "inspect-sdp", path}))

	rendered := out.String()
	require.Contains(t, rendered, "111 opus/48000")
	require.Contains(t, rendered, "sendonly")
	require.Contains(t, rendered, "1001 peer")
	require.Contains(t, rendered, "4 urn:ietf:params:rtp-hdrext:sdes:mid")

	require.Error(t, testApp(out).Run([]string{"rtc-stack", "inspect-sdp"}))
	require.Error(t, testApp(out).Run([]string{"rtc-stack", "inspect-sdp", filepath.Join(t.TempDir(), "missing.sdp")}))
}

func TestGenerateConfig(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, testApp(out).Run([]string{
		"rtc-stack",
		"--config-body", "port: 9000\nrtc:\n  network_addresses: [10.0.0.1]\n",
		"generate-config",
	}))

	var conf config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &conf))
	require.Equal(t, uint32(9000), conf.Port)
	require.Equal(t, []string{"10.0.0.1"}, conf.RTC.NetworkAddresses)
}

func TestPrintPorts(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, testApp(out).Run([]string{
		"rtc-stack",
		"--config-body", "port: 9000\nprometheus_port: 9100\nrtc:\n  network_addresses: [10.0.0.1]\n",
		"ports",
	}))
	require.True(t, strings.Contains(out.String(), "9000 - HTTP service"))
	require.True(t, strings.Contains(out.String(), "9100 - Prometheus"))
}
