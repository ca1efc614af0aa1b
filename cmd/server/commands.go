package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/maleRjc/rtc-stack/pkg/config"
	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
)

func inspectSdp(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one session description file")
	}
	content, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	info, err := sdpinfo.Parse(string(content))
	if err != nil {
		return errors.Wrap(err, "parse session description")
	}
	renderSdp(c.App.Writer, info)
	return nil
}

func renderSdp(w io.Writer, info *sdpinfo.SdpInfo) {
	session := tablewriter.NewWriter(w)
	session.SetAutoWrapText(false)
	session.SetHeader([]string{"Field", "Value"})
	session.AppendBulk([][]string{
		{"Session", info.SessionName},
		{"Origin", fmt.Sprintf("%s %s", info.Origin.Username, info.Origin.UnicastAddress)},
		{"Groups", strings.Join(info.Groups, " ")},
		{"MSID Semantic", strings.TrimSpace(info.MsidSemantic + " " + strings.Join(info.MsidTokens, " "))},
		{"ICE Lite", strconv.FormatBool(info.ICELite)},
		{"Extmap Allow Mixed", strconv.FormatBool(info.ExtmapAllowMixed)},
	})
	session.Render()

	media := tablewriter.NewWriter(w)
	media.SetRowLine(true)
	media.SetAutoWrapText(false)
	media.SetHeader([]string{
		"MID",
		"Type",
		"Port",
		"Direction",
		"Codecs",
		"Extensions",
		"SSRCs",
		"Candidates",
	})
	media.SetColumnAlignment([]int{
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
	})

	for _, m := range info.Media {
		media.Append([]string{
			m.MID,
			m.Type,
			strconv.Itoa(m.Port),
			m.Direction.String(),
			formatCodecs(m.RtpMaps),
			formatExtmaps(m.Extmaps),
			formatSSRCs(m),
			strconv.Itoa(len(m.Candidates)),
		})
	}
	media.Render()
}

func formatCodecs(codecs []sdpinfo.RtpMap) string {
	lines := make([]string, 0, len(codecs))
	for _, c := range codecs {
		line := fmt.Sprintf("%d %s/%d", c.PayloadType, c.EncodingName, c.ClockRate)
		if c.Fmtp != "" {
			line += " " + c.Fmtp
		}
		for _, r := range c.Related {
			line += fmt.Sprintf(" +%s(%d)", r.EncodingName, r.PayloadType)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatExtmaps(extmaps map[int]string) string {
	ids := make([]int, 0, len(extmaps))
	for id := range extmaps {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("%d %s", id, extmaps[id]))
	}
	return strings.Join(lines, "\n")
}

func formatSSRCs(m *sdpinfo.MediaDesc) string {
	lines := make([]string, 0, len(m.SSRCInfos)+len(m.SSRCGroups))
	for _, s := range m.SSRCInfos {
		lines = append(lines, fmt.Sprintf("%d %s", s.SSRC, s.CNAME))
	}
	for _, g := range m.SSRCGroups {
		ssrcs := make([]string, 0, len(g.SSRCs))
		for _, s := range g.SSRCs {
			ssrcs = append(ssrcs, strconv.FormatUint(uint64(s), 10))
		}
		lines = append(lines, g.Semantics+" "+strings.Join(ssrcs, " "))
	}
	return strings.Join(lines, "\n")
}

func generateConfig(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}
	out, err := conf.Marshal()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(c.App.Writer, out)
	return err
}

func printPorts(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, "TCP Ports")
	fmt.Fprintf(c.App.Writer, "%d - HTTP service\n", conf.Port)
	if conf.PrometheusPort != 0 {
		fmt.Fprintf(c.App.Writer, "%d - Prometheus\n", conf.PrometheusPort)
	}
	return nil
}

func helpVerbose(c *cli.Context) error {
	generatedFlags, err := config.GenerateCLIFlags(baseFlags, false)
	if err != nil {
		return err
	}

	c.App.Flags = append(baseFlags, generatedFlags...)
	return cli.ShowAppHelp(c)
}
