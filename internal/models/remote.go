package models

import (
	"regexp"
	"strings"
)

// RemoteAction is what a clicker button press does to the room
type RemoteAction string

const (
	RemoteNext     RemoteAction = "next"
	RemotePrevious RemoteAction = "previous"
)

// ParseRemoteAction maps a press action name to a RemoteAction. An empty
// name means next.
func ParseRemoteAction(v string) (RemoteAction, error) {
	switch RemoteAction(strings.ToLower(strings.TrimSpace(v))) {
	case "", RemoteNext:
		return RemoteNext, nil
	case RemotePrevious:
		return RemotePrevious, nil
	default:
		return "", NewValidationError("action must be next or previous")
	}
}

// Remote is a presenter clicker identified by its MAC address. A remote
// bound to a room moves that room's active slide when pressed.
type Remote struct {
	ID         string `json:"id"`
	MACAddress string `json:"macAddress"`
	Name       string `json:"name"`
	Room       string `json:"room"`
	IsActive   bool   `json:"isActive"`
	PressCount int    `json:"pressCount"`
	LastPress  int64  `json:"lastPress,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

var macPattern = regexp.MustCompile(`^[0-9A-F]{12}$`)

// NormalizeMAC uppercases a MAC address and strips separators
func NormalizeMAC(mac string) string {
	r := strings.NewReplacer(":", "", "-", "", ".", "", " ", "")
	return strings.ToUpper(r.Replace(mac))
}

// ValidateMAC normalizes mac and checks it has twelve hex digits
func ValidateMAC(mac string) (string, error) {
	n := NormalizeMAC(mac)
	if !macPattern.MatchString(n) {
		return "", NewValidationError("macAddress must be 12 hex digits")
	}
	return n, nil
}
