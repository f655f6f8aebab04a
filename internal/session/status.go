package session

// Status is the lifecycle state of a session.
type Status int

const (
	StatusBooting Status = iota
	StatusFetchingTree
	StatusConverting
	StatusMounting
	StatusInstalling
	StatusStarting
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusBooting:
		return "booting"
	case StatusFetchingTree:
		return "fetching-tree"
	case StatusConverting:
		return "converting"
	case StatusMounting:
		return "mounting"
	case StatusInstalling:
		return "installing"
	case StatusStarting:
		return "starting"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusFailed
}
