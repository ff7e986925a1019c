package session

// State is the state of a session.
type State uint8

const (
	LoggedOut State = iota
	LoggingIn
	AwaitingVerification
	LoggedIn
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged out"
	case LoggingIn:
		return "logging in"
	case AwaitingVerification:
		return "awaiting verification"
	case LoggedIn:
		return "logged in"
	}
	return "?"
}
