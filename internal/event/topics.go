package event

// Topics published by the daemon, classifier and retry engine.
const (
	TopicCheckCompleted       = "connectivity.checked"
	TopicConnectivityLost     = "connectivity.lost"
	TopicConnectivityRestored = "connectivity.restored"
	TopicLoginAttempt         = "login.attempt"
	TopicLoginSucceeded       = "login.succeeded"
	TopicLoginExhausted       = "login.exhausted"
	TopicTickPanicked         = "daemon.panic"
)

// CheckCompleted is the payload for TopicCheckCompleted.
type CheckCompleted struct {
	Reachable bool   `json:"reachable"`
	Layer     string `json:"layer"` // "icmp", "http" or "none"
	Detail    string `json:"detail,omitempty"`
}

// ConnectivityLost is the payload for TopicConnectivityLost.
type ConnectivityLost struct {
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// ConnectivityRestored is the payload for TopicConnectivityRestored.
type ConnectivityRestored struct {
	// FailedChecks is the failure count accumulated before recovery.
	FailedChecks int    `json:"failed_checks"`
	Via          string `json:"via"` // "probe" or "login"
}

// LoginAttempt is the payload for TopicLoginAttempt.
type LoginAttempt struct {
	Username    string `json:"username"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Success     bool   `json:"success"`
	Reason      string `json:"reason,omitempty"`
}

// LoginFinished is the payload for TopicLoginSucceeded and TopicLoginExhausted.
type LoginFinished struct {
	Username string `json:"username"`
	Attempts int    `json:"attempts"`
}

// TickPanicked is the payload for TopicTickPanicked.
type TickPanicked struct {
	Panic string `json:"panic"`
}
