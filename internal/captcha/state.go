package captcha

type State int

const (
	StateNormal State = iota
	StateChallengeDetected
	StateSolving
	StateSubmitted
	StateVerified
	StateLoginRequired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateChallengeDetected:
		return "CHALLENGE_DETECTED"
	case StateSolving:
		return "SOLVING"
	case StateSubmitted:
		return "SUBMITTED"
	case StateVerified:
		return "VERIFIED"
	case StateLoginRequired:
		return "LOGIN_REQUIRED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
