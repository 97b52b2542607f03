package console

import (
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/mqtt"
)

// Topic suffixes of a remote console.
const (
	InTopic  = "/console/in"
	OutTopic = "/console/out"
)

// PubSub is the part of mqtt.Queue used by the remote console.
type PubSub interface {
	Sub(filter string, handler mqtt.Handler) *mqtt.Subscription
	Pub(topic string, payload []byte) paho.Token
}

// Remote is a Console reached through the broker. Each message on
// base+InTopic is one or more input lines; output is published on
// base+OutTopic.
type Remote struct {
	*lineQueue

	queue PubSub
	out   string
	sub   *mqtt.Subscription
}

// NewRemote subscribes to the console input topic under base.
func NewRemote(queue PubSub, base string) *Remote {
	r := &Remote{lineQueue: newLineQueue(8), queue: queue, out: base + OutTopic}
	r.sub = queue.Sub(base+InTopic, r.receive)
	return r
}

func (r *Remote) receive(_ string, payload []byte) {
	for _, line := range strings.Split(strings.TrimRight(string(payload), "\n"), "\n") {
		if !r.offer(line) {
			glog.Warningf("remote console busy, dropped %q", line)
		}
	}
}

// Write implements io.Writer.
func (r *Remote) Write(p []byte) (int, error) {
	r.queue.Pub(r.out, append([]byte(nil), p...))
	return len(p), nil
}

// Close stops the console.
func (r *Remote) Close() error {
	r.close()
	return r.sub.Close()
}
