package persist

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fluidex-clob/matchcore/pkg/core/event"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// envelope is the wire shape every broadcast event takes: a kind tag plus
// the raw payload, so subscribers can demux without a side channel.
type envelope struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// subscriber is one connected websocket client with a bounded outbound
// buffer; a full buffer means the subscriber is falling behind and gets
// disconnected rather than blocking the publisher, grounded on the
// teacher's Hub (pkg/api/websocket.go): "Client send buffer full,
// disconnect".
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// BusSink is the message-bus-producer analogue from spec.md §4.7:
// an async, back-pressured fan-out of every event to live subscribers.
// It never blocks the Controller — publish is a non-blocking channel
// send per subscriber, and the sink goes unavailable once the shared
// publish queue itself saturates.
type BusSink struct {
	mu    sync.RWMutex
	subs  map[*subscriber]struct{}
	queue chan []byte
	cap   int
	log   *zap.SugaredLogger
}

// NewBusSink starts a bus sink with the given internal queue capacity.
// Call Run in its own goroutine before traffic starts.
func NewBusSink(queueCap int, log *zap.SugaredLogger) *BusSink {
	return &BusSink{
		subs:  make(map[*subscriber]struct{}),
		queue: make(chan []byte, queueCap),
		cap:   queueCap,
		log:   log,
	}
}

func (b *BusSink) Name() string { return "bus" }

// Run drains the publish queue into every subscriber. Must run in its
// own goroutine for the lifetime of the process.
func (b *BusSink) Run() {
	for msg := range b.queue {
		var slow []*subscriber
		b.mu.RLock()
		for s := range b.subs {
			select {
			case s.send <- msg:
			default:
				// Subscriber buffer full: disconnect it rather than block.
				slow = append(slow, s)
			}
		}
		b.mu.RUnlock()
		if len(slow) > 0 {
			b.mu.Lock()
			for _, s := range slow {
				if _, ok := b.subs[s]; ok {
					delete(b.subs, s)
					close(s.send)
				}
			}
			b.mu.Unlock()
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket subscriber.
func (b *BusSink) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if b.log != nil {
			b.log.Warnw("bus sink upgrade failed", "err", err)
		}
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, 64)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			conn.Close()
		}()
		for msg := range sub.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()
}

func (b *BusSink) publish(kind string, payload interface{}) {
	data, err := json.Marshal(envelope{Kind: kind, Payload: payload})
	if err != nil {
		if b.log != nil {
			b.log.Errorw("bus sink marshal failed", "kind", kind, "err", err)
		}
		return
	}
	select {
	case b.queue <- data:
	default:
		// Producer queue saturated: the event is dropped. Available()
		// will report false on the next admission check so the
		// Controller starts rejecting writes (spec.md §5 "producers
		// never block; a full queue causes admission to fail").
		if b.log != nil {
			b.log.Warnw("bus sink queue saturated, event dropped", "kind", kind)
		}
	}
}

func (b *BusSink) Order(ev event.OrderEvent)                 { b.publish("order", ev) }
func (b *BusSink) Trade(ev event.TradeEvent)                  { b.publish("trade", ev) }
func (b *BusSink) Balance(ev event.BalanceEvent)              { b.publish("balance", ev) }
func (b *BusSink) UserRegistered(ev event.UserRegisteredEvent) { b.publish("user", ev) }
func (b *BusSink) InternalTx(ev event.InternalTxEvent)         { b.publish("internal_tx", ev) }

// Available reports whether the publish queue has headroom. At >=90%
// full the sink is considered back-pressured, mirroring the
// operation-log queue's is_block() threshold (spec.md §4.7).
func (b *BusSink) Available() bool {
	return len(b.queue) < (b.cap*9)/10
}
