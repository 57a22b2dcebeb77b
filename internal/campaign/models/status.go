package models

// ProjectStatus is the campaign lifecycle state.
//
//	active  -> funded | stopped | expired | finished
//	funded  -> finished
//	stopped -> active
//	finished, expired: terminal
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusFunded   ProjectStatus = "funded"
	ProjectStatusFinished ProjectStatus = "finished"
	ProjectStatusStopped  ProjectStatus = "stopped"
	ProjectStatusExpired  ProjectStatus = "expired"
)

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectStatusActive:  {ProjectStatusFunded, ProjectStatusStopped, ProjectStatusExpired, ProjectStatusFinished},
	ProjectStatusFunded:  {ProjectStatusFinished},
	ProjectStatusStopped: {ProjectStatusActive},
}

// ParseProjectStatus converts stored or external input into a status.
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	st := ProjectStatus(s)
	return st, st.IsValid()
}

func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusFunded, ProjectStatusFinished, ProjectStatusStopped, ProjectStatusExpired:
		return true
	}
	return false
}

func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusFinished || s == ProjectStatusExpired
}

// AcceptsPledges reports whether a new pledge may target a project in s.
// Funded projects keep accepting pledges; stopped, finished and expired do not.
func (s ProjectStatus) AcceptsPledges() bool {
	return s == ProjectStatusActive || s == ProjectStatusFunded
}

func (s ProjectStatus) CanTransitionTo(to ProjectStatus) bool {
	for _, allowed := range projectTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s ProjectStatus) String() string {
	return string(s)
}
