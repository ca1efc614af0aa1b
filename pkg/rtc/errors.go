package rtc

import "errors"

var (
	ErrAlreadyInitialized       = errors.New("agent has already been initiated")
	ErrNotInitialized           = errors.New("agent has not been initiated")
	ErrInvalidParam             = errors.New("invalid parameter")
	ErrAlreadyExists            = errors.New("a connection with the same id already exists")
	ErrNotFound                 = errors.New("connection not found")
	ErrParseOfferFailed         = errors.New("could not parse offer")
	ErrAlreadyBound             = errors.New("media id is already bound")
	ErrNoOperation              = errors.New("no operation for media id")
	ErrConflictingDirection     = errors.New("offered direction conflicts with operation")
	ErrConflictingType          = errors.New("offered media type conflicts with operation")
	ErrRenegotiationUnsupported = errors.New("renegotiation is not supported")
	ErrConnectionClosed         = errors.New("connection closed")
)

type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultFailed
	ResultInvalidParam
	ResultAlreadyInitialized
	ResultFound
	ResultNotFound
	ResultParseOfferFailed
)

func (r ResultCode) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultFailed:
		return "FAILED"
	case ResultInvalidParam:
		return "INVALID_PARAM"
	case ResultAlreadyInitialized:
		return "ALREADY_INITIALIZED"
	case ResultFound:
		return "FOUND"
	case ResultNotFound:
		return "NOT_FOUND"
	case ResultParseOfferFailed:
		return "PARSE_OFFER_FAILED"
	default:
		return "UNKNOWN"
	}
}

// CodeFor maps an error returned by the agent to its result code.
func CodeFor(err error) ResultCode {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrInvalidParam):
		return ResultInvalidParam
	case errors.Is(err, ErrAlreadyInitialized):
		return ResultAlreadyInitialized
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrAlreadyBound):
		return ResultFound
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoOperation):
		return ResultNotFound
	case errors.Is(err, ErrParseOfferFailed):
		return ResultParseOfferFailed
	default:
		return ResultFailed
	}
}
