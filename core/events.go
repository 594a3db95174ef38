package core

import "fmt"

type RouterEvent int

// trace events

const (
	RouteAdded RouterEvent = iota
	RouteRemoved
	RouteExpired
	BlacklistAdded
	BlacklistExpired
	DiscoveryStarted
	DiscoverySucceeded
	DiscoveryTimedOut
	RequestForwarded
	ReplySent
	ReplyForwarded
	AckSent
	AckReceived
	ErrorOriginated
	ErrorForwarded
	ErrorTerminated
	LateReply
)

// warn events

const (
	MessageRejected RouterEvent = iota + 1000
	NoRoute
	HopLimitReached
	AckTimeout
	UnknownAck
	SendFailed
)

func (e RouterEvent) String() string {
	switch e {
	case RouteAdded:
		return "RouteAdded"
	case RouteRemoved:
		return "RouteRemoved"
	case RouteExpired:
		return "RouteExpired"
	case BlacklistAdded:
		return "BlacklistAdded"
	case BlacklistExpired:
		return "BlacklistExpired"
	case DiscoveryStarted:
		return "DiscoveryStarted"
	case DiscoverySucceeded:
		return "DiscoverySucceeded"
	case DiscoveryTimedOut:
		return "DiscoveryTimedOut"
	case RequestForwarded:
		return "RequestForwarded"
	case ReplySent:
		return "ReplySent"
	case ReplyForwarded:
		return "ReplyForwarded"
	case AckSent:
		return "AckSent"
	case AckReceived:
		return "AckReceived"
	case ErrorOriginated:
		return "ErrorOriginated"
	case ErrorForwarded:
		return "ErrorForwarded"
	case ErrorTerminated:
		return "ErrorTerminated"
	case LateReply:
		return "LateReply"
	case MessageRejected:
		return "MessageRejected"
	case NoRoute:
		return "NoRoute"
	case HopLimitReached:
		return "HopLimitReached"
	case AckTimeout:
		return "AckTimeout"
	case UnknownAck:
		return "UnknownAck"
	case SendFailed:
		return "SendFailed"
	default:
		return fmt.Sprintf("RouterEvent(%d)", int(e))
	}
}

// IsWarning reports whether the event is in the warn range
func (e RouterEvent) IsWarning() bool {
	return e >= MessageRejected
}
