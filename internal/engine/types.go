package engine

const (
	eventBuffer = 64

	msgAuthRequired = "Authentication required. Opening browser..."
	msgTriggered    = "Webhook triggered successfully - waiting for results..."
)
