// Package ws carries the peer link over a websocket bridge. Each binary
// or text message received is appended to the peer byte stream.
package ws

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/sensorgw/pkg/framework"
	"github.com/robotalks/sensorgw/pkg/hwaddr"
	"github.com/robotalks/sensorgw/pkg/peerlink"
)

// AddrPlaceholder in the URL is replaced with the peer address hex.
const AddrPlaceholder = "{addr}"

// Dialer connects to ws://bridge/peers/{addr}.
type Dialer struct {
	URL     string
	Origin  string
	Timeout time.Duration
}

// Dial implements peerlink.Dialer.
func (d *Dialer) Dial(ctx context.Context, addr hwaddr.Addr) (peerlink.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := strings.Replace(d.URL, AddrPlaceholder, addr.Hex(), -1)
	origin := d.Origin
	if origin == "" {
		origin = "http://localhost/"
	}
	conf, err := websocket.NewConfig(target, origin)
	if err != nil {
		return nil, err
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conf.Dialer = &net.Dialer{Timeout: timeout}
	ws, err := websocket.DialConfig(conf)
	if err != nil {
		return nil, err
	}
	c := newConn(ws)
	go c.run()
	return c, nil
}

type conn struct {
	*peerlink.Pipe
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{Pipe: peerlink.NewPipe(0), ws: ws}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

func (c *conn) run() {
	defer c.Pipe.Close()
	err := fx.RunWithContextCloser(c.ctx, c.ws, func() error {
		for {
			var msg []byte
			if err := websocket.Message.Receive(c.ws, &msg); err != nil {
				return err
			}
			if _, err := c.Pipe.Write(msg); err != nil && !errors.Is(err, peerlink.ErrPipeFull) {
				return err
			}
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		glog.Warningf("peer websocket closed: %v", err)
	}
}

// Close implements io.Closer.
func (c *conn) Close() error {
	c.cancel()
	return c.Pipe.Close()
}
