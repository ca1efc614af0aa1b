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

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/urfave/negroni/v3"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/maleRjc/rtc-stack/pkg/config"
	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc"
)

type RTCStackServer struct {
	config        *config.Config
	agent         *rtc.Agent
	whipService   *WHIPService
	signalService *SignalService
	httpServer    *http.Server
	promServer    *http.Server
	running       atomic.Bool
	done          core.Fuse
	closed        core.Fuse
}

func NewRTCStackServer(conf *config.Config,
	agent *rtc.Agent,
	whipService *WHIPService,
	signalService *SignalService,
) (*RTCStackServer, error) {
	s := &RTCStackServer{
		config:        conf,
		agent:         agent,
		whipService:   whipService,
		signalService: signalService,
	}

	middlewares := []negroni.Handler{
		// always the first
		negroni.NewRecovery(),
		cors.New(cors.Options{
			AllowOriginFunc: func(origin string) bool {
				return true
			},
			AllowedHeaders: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			ExposedHeaders: []string{"*"},
		}),
		negroni.HandlerFunc(RemoveDoubleSlashes),
	}

	mux := http.NewServeMux()
	whipService.SetupRoutes(mux)
	mux.Handle("/rtc", signalService)
	mux.HandleFunc("GET /{$}", s.healthCheck)

	s.httpServer = &http.Server{
		Handler: configureMiddlewares(mux, middlewares...),
	}

	if conf.PrometheusPort > 0 {
		s.promServer = &http.Server{
			Handler: promhttp.Handler(),
		}
	}

	return s, nil
}

// Handler exposes the routed HTTP stack for embedding and tests.
func (s *RTCStackServer) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *RTCStackServer) IsRunning() bool {
	return s.running.Load()
}

func (s *RTCStackServer) Start() error {
	if s.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer s.closed.Break()

	addresses := s.config.BindAddresses
	if len(addresses) == 0 {
		addresses = []string{""}
	}

	// ensure we could listen
	listeners := make([]net.Listener, 0, len(addresses))
	for _, addr := range addresses {
		ln, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(int(s.config.Port))))
		if err != nil {
			closeListeners(listeners)
			return err
		}
		listeners = append(listeners, ln)
	}

	var promListener net.Listener
	if s.promServer != nil {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.PrometheusPort))
		if err != nil {
			closeListeners(listeners)
			return err
		}
		promListener = ln
	}

	group := &errgroup.Group{}
	for _, ln := range listeners {
		group.Go(func() error {
			return s.httpServer.Serve(ln)
		})
	}
	if promListener != nil {
		group.Go(func() error {
			return s.promServer.Serve(promListener)
		})
	}

	logger.Infow("starting rtc-stack server",
		"port", s.config.Port,
		"bindAddresses", addresses,
		"prometheusPort", s.config.PrometheusPort,
	)

	<-s.done.Watch()

	// wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(ctx)
	if s.promServer != nil {
		_ = s.promServer.Shutdown(ctx)
	}

	s.agent.Stop()
	s.whipService.Stop()

	if err := group.Wait(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *RTCStackServer) Stop() {
	if !s.running.Load() {
		return
	}
	s.done.Break()
	<-s.closed.Watch()
}

func (s *RTCStackServer) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("OK %d", s.agent.NumConnections())))
}

func configureMiddlewares(handler http.Handler, middlewares ...negroni.Handler) *negroni.Negroni {
	n := negroni.New()
	for _, m := range middlewares {
		n.Use(m)
	}
	n.UseHandler(handler)
	return n
}

func closeListeners(listeners []net.Listener) {
	for _, ln := range listeners {
		_ = ln.Close()
	}
}
