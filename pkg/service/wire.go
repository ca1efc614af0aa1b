//go:build wireinject
// +build wireinject

package service

import (
	"github.com/google/wire"

	"github.com/maleRjc/rtc-stack/pkg/config"
)

func InitializeServer(conf *config.Config) (*RTCStackServer, error) {
	wire.Build(
		ServiceSet,
	)
	return &RTCStackServer{}, nil
}
