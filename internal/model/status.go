package model

// Route status constants.
const (
	RouteStatusPending  = "pending"
	RouteStatusActive   = "active"
	RouteStatusError    = "error"
	RouteStatusDisabled = "disabled"
)

// ValidRouteStatus reports whether s is one of the route status constants.
func ValidRouteStatus(s string) bool {
	switch s {
	case RouteStatusPending, RouteStatusActive, RouteStatusError, RouteStatusDisabled:
		return true
	}
	return false
}
