// Package monitor renders broker traffic of gateways for display.
package monitor

import (
	"fmt"
	"strings"

	"github.com/golang/protobuf/jsonpb"

	"github.com/robotalks/sensorgw/pkg/console"
	"github.com/robotalks/sensorgw/pkg/mqtt"
	"github.com/robotalks/sensorgw/pkg/telemetry"
)

var marshaler = jsonpb.Marshaler{OrigName: true}

// Format renders one message. topic has the queue prefix removed.
func Format(topic string, payload []byte) string {
	switch {
	case strings.HasSuffix(topic, mqtt.MetaTopic):
		if len(payload) == 0 {
			return fmt.Sprintf("%s: [gone]", topic)
		}
		return fmt.Sprintf("%s: %s", topic, payload)
	case strings.HasSuffix(topic, telemetry.StateTopic):
		msg, err := telemetry.Decode(payload)
		if err != nil {
			return fmt.Sprintf("%s: bad telemetry: %v", topic, err)
		}
		out, err := marshaler.MarshalToString(msg)
		if err != nil {
			return fmt.Sprintf("%s: bad telemetry: %v", topic, err)
		}
		return fmt.Sprintf("%s: [telemetry] %s", topic, out)
	case strings.HasSuffix(topic, console.OutTopic), strings.HasSuffix(topic, console.InTopic):
		return fmt.Sprintf("%s: %q", topic, strings.TrimRight(string(payload), "\r\n"))
	default:
		return fmt.Sprintf("%s: %s", topic, payload)
	}
}
