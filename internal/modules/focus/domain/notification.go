package domain

// Permission is the notification permission state of the host.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

func ParsePermission(raw string) Permission {
	switch Permission(raw) {
	case PermissionGranted, PermissionDenied:
		return Permission(raw)
	default:
		return PermissionDefault
	}
}

type Notification struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}
