package node

import "errors"

var (
	ErrNodeIDRequired           = errors.New("node ID is required")
	ErrInvalidRole              = errors.New("role must be worker or coordinator")
	ErrAgencyRequired           = errors.New("agency endpoint or client is required")
	ErrInvalidHeartbeatInterval = errors.New("heartbeat interval must be greater than 0")
	ErrInvalidFailThreshold     = errors.New("max fails before warning must be greater than 0")
	ErrInvalidDispatchWorkers   = errors.New("dispatch workers must be greater than 0")
	ErrAlreadyStarted           = errors.New("node already started")
	ErrInvalidNodeIndex         = errors.New("invalid node index")
)
