// Package mqtt carries the peer link over a broker topic. The peer (or
// its radio bridge) publishes raw link bytes on the topic for its address.
package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/hwaddr"
	"github.com/robotalks/sensorgw/pkg/mqtt"
	"github.com/robotalks/sensorgw/pkg/peerlink"
)

// DefaultTopic is the topic format; %s is the peer address hex.
const DefaultTopic = "peers/%s/tx"

// Subscriber is the part of mqtt.Queue used by the dialer.
type Subscriber interface {
	Sub(filter string, handler mqtt.Handler) *mqtt.Subscription
}

// Dialer subscribes to the peer's topic.
type Dialer struct {
	Queue   Subscriber
	Topic   string
	Timeout time.Duration
}

// Dial implements peerlink.Dialer.
func (d *Dialer) Dial(ctx context.Context, addr hwaddr.Addr) (peerlink.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format := d.Topic
	if format == "" {
		format = DefaultTopic
	}
	topic := fmt.Sprintf(format, addr.Hex())
	pipe := peerlink.NewPipe(0)
	sub := d.Queue.Sub(topic, func(_ string, payload []byte) {
		if _, err := pipe.Write(payload); err != nil {
			glog.V(2).Infof("peer %s: %v", addr, err)
		}
	})
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := sub.Wait(timeout); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return &conn{Pipe: pipe, sub: sub}, nil
}

type conn struct {
	*peerlink.Pipe
	sub *mqtt.Subscription
}

func (c *conn) Close() error {
	c.Pipe.Close()
	return c.sub.Close()
}
