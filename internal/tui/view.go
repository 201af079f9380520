package tui

// ViewType represents which view is active.
type ViewType int

const (
	ViewEvents ViewType = iota
	ViewSessions
)

func (v ViewType) next() ViewType {
	if v == ViewEvents {
		return ViewSessions
	}
	return ViewEvents
}
