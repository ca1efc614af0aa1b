package rtc

import "fmt"

type ConnectionState int32

const (
	ConnectionStateIdle ConnectionState = iota
	// offer parsed and media bound to operations
	ConnectionStateOfferReceived
	// transport has the negotiated media, answer pending
	ConnectionStateTransportSetup
	ConnectionStateReady
	ConnectionStateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateIdle:
		return "IDLE"
	case ConnectionStateOfferReceived:
		return "OFFER_RECEIVED"
	case ConnectionStateTransportSetup:
		return "TRANSPORT_SETUP"
	case ConnectionStateReady:
		return "READY"
	case ConnectionStateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("%d", int(s))
	}
}
