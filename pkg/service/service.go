package service

import (
	"github.com/google/wire"

	"github.com/maleRjc/rtc-stack/pkg/config"
	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc"
	"github.com/maleRjc/rtc-stack/pkg/telemetry/prometheus"
)

var ServiceSet = wire.NewSet(
	createAgent,
	wire.Bind(new(Agent), new(*rtc.Agent)),
	NewWHIPService,
	NewSignalService,
	NewRTCStackServer,
)

func createAgent(conf *config.Config) (*rtc.Agent, error) {
	params := conf.AgentParams()
	params.Logger = logger.GetLogger()

	agent := rtc.NewAgent(params)
	if err := agent.Initiate(conf.RTC.Workers, conf.RTC.NetworkAddresses, conf.RTC.STUNServer); err != nil {
		return nil, err
	}
	if conf.PrometheusPort > 0 {
		nodeID := "rtc-stack"
		if len(conf.RTC.NetworkAddresses) > 0 {
			nodeID = conf.RTC.NetworkAddresses[0]
		}
		prometheus.Init(nodeID)
	}
	return agent, nil
}
