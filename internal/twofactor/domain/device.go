package domain

import (
	"fmt"
	"time"
)

// DeviceType is the closed set of client device kinds the inventory app
// ships on.
type DeviceType string

const (
	DeviceIPhone DeviceType = "iphone"
	DeviceIPad   DeviceType = "ipad"
	DeviceMac    DeviceType = "mac"
	DeviceWatch  DeviceType = "watch"
)

func (t DeviceType) String() string { return string(t) }

// ParseDeviceType validates a wire-format device type string.
func ParseDeviceType(s string) (DeviceType, error) {
	switch DeviceType(s) {
	case DeviceIPhone, DeviceIPad, DeviceMac, DeviceWatch:
		return DeviceType(s), nil
	default:
		return "", fmt.Errorf("unknown device type %q", s)
	}
}

// TrustedDevice is a device allowed to bypass interactive verification.
// DeviceID is the stable per-device identifier reported by the client;
// trusting the same DeviceID again refreshes LastUsedAt instead of creating
// a duplicate entry.
type TrustedDevice struct {
	ID         string // row ULID
	AccountID  string
	DeviceID   string
	DeviceName string
	DeviceType DeviceType
	TrustedAt  time.Time
	LastUsedAt time.Time
}
