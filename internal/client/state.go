package client

// ConnectionState mirrors the channel transport lifecycle. It is owned
// exclusively by the Manager; every other component only observes it.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosing    ConnectionState = "closing"
	StateClosed     ConnectionState = "closed"
)
