package mqtt

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

// MetaTopic is the retained announcement under each gateway's base topic.
const MetaTopic = "/meta"

// Meta announces a gateway to shells and monitors.
type Meta struct {
	ID       string   `json:"id"`
	Hub      string   `json:"hub,omitempty"`
	Commands []string `json:"commands,omitempty"`
}

// NewAnnouncedQueue creates a Queue which publishes meta on every connect.
// The broker clears the announcement through the will when the
// connection is lost.
func NewAnnouncedQueue(brokerURL string, meta Meta) (*Queue, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	topic := meta.ID + MetaTopic
	opts.SetBinaryWill(prefix+topic, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("sensorgw:" + meta.ID)
	}
	q := NewQueue(opts, prefix)
	q.OnConnect = func(q *Queue) {
		q.PubWith(topic, payload, 1, true)
	}
	return q, nil
}

// Withdraw clears the announcement of id.
func (q *Queue) Withdraw(id string, timeout time.Duration) error {
	return q.PubWait(id+MetaTopic, nil, true, timeout)
}

// Subscriber is the part of Queue used by discovery.
type Subscriber interface {
	Sub(filter string, handler Handler) *Subscription
}

// Discover collects announcements for the duration of wait. Retained
// messages arrive right after subscribing so a short wait is enough.
func Discover(q Subscriber, wait time.Duration) []Meta {
	var lock sync.Mutex
	found := make(map[string]Meta)
	sub := q.Sub("+"+MetaTopic, func(topic string, payload []byte) {
		id := strings.TrimSuffix(topic, MetaTopic)
		lock.Lock()
		defer lock.Unlock()
		if len(payload) == 0 {
			delete(found, id)
			return
		}
		var meta Meta
		if err := json.Unmarshal(payload, &meta); err != nil {
			glog.Warningf("bad announcement on %s: %v", topic, err)
			return
		}
		if meta.ID == "" {
			meta.ID = id
		}
		found[id] = meta
	})
	time.Sleep(wait)
	sub.Close()

	lock.Lock()
	defer lock.Unlock()
	list := make([]Meta, 0, len(found))
	for _, meta := range found {
		list = append(list, meta)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
