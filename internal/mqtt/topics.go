package mqtt

import (
	"fmt"
	"strings"
)

// Kind is the last segment of a device topic
type Kind string

const (
	KindTelemetry Kind = "telemetry"
	KindAlert     Kind = "alert"
	KindCommand   Kind = "command"
)

// DeviceTopic builds "<prefix>/<device_id>/<kind>"
func DeviceTopic(prefix, deviceID string, kind Kind) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(prefix, "/"), deviceID, kind)
}

// WildcardTopic matches one kind for every device
func WildcardTopic(prefix string, kind Kind) string {
	return DeviceTopic(prefix, "+", kind)
}

// ParseTopic extracts the device id and kind from a device topic
func ParseTopic(prefix, topic string) (string, Kind, error) {
	prefix = strings.TrimSuffix(prefix, "/")
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", "", fmt.Errorf("topic %q outside prefix %q", topic, prefix)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed device topic %q", topic)
	}

	kind := Kind(parts[1])
	switch kind {
	case KindTelemetry, KindAlert, KindCommand:
	default:
		return "", "", fmt.Errorf("unknown topic kind %q", parts[1])
	}

	return parts[0], kind, nil
}
