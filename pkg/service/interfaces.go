package service

import (
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
)

// Agent is the part of rtc.Agent the signaling front ends drive.
type Agent interface {
	Publish(opts types.Options, offer string) error
	Subscribe(opts types.Options, offer string) error
	Unpublish(connectID string) error
	Unsubscribe(connectID string) error
	Signal(connectID, signal, payload string) error
	Linkup(fromID, toID string) error
	Cutoff(fromID, toID string) error
	NumConnections() int
}

func connect(agent Agent, kind string, opts types.Options, offer string) error {
	switch kind {
	case KindPublish:
		return agent.Publish(opts, offer)
	case KindSubscribe:
		return agent.Subscribe(opts, offer)
	default:
		return ErrUnknownKind
	}
}

func disconnect(agent Agent, kind, connectID string) error {
	switch kind {
	case KindPublish:
		return agent.Unpublish(connectID)
	case KindSubscribe:
		return agent.Unsubscribe(connectID)
	default:
		return ErrUnknownKind
	}
}
