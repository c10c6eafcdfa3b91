package auth

// State is a step of the login flow.
type State int32

const (
	Unauthenticated State = iota
	FetchingCaptcha
	Submitting
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case FetchingCaptcha:
		return "fetching_captcha"
	case Submitting:
		return "submitting"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
