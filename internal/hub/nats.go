package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gonka-ai/committee-signer/internal/commit"
	"github.com/gonka-ai/committee-signer/internal/config"
	"github.com/gonka-ai/committee-signer/internal/logging"
	"github.com/nats-io/nats.go"
	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/pkg/errors"
)

const (
	commitsStream  = "commits"
	commitsSubject = "commits.broadcast"
	storageDir     = "./.signer-nats"
	ackWait        = time.Minute

	senderHeader       = "X-Unit-Id"
	clientSenderMarker = ""
)

// wireCommit is the JSON envelope commits travel as over NATS. The
// on-wire layout is logical, not byte-exact; JSON stands in for
// whatever external schema a deployment picks for framing.
type wireCommit struct {
	Typ        commit.Type `json:"typ"`
	I          uint32      `json:"i"`
	J          uint32      `json:"j"`
	Msg        []byte      `json:"msg"`
	PublicKey  []byte      `json:"public_key"`
	Signature  []byte      `json:"signature"`
	Aggregated bool        `json:"aggregated"`
}

func toWire(c commit.Commit) wireCommit {
	return wireCommit(c)
}

func fromWire(w wireCommit) commit.Commit {
	return commit.Commit(w)
}

// NatsHub is a Hub backed by an embedded NATS server with JetStream:
// every unit subscribes a durable consumer to a shared broadcast
// subject and filters out its own echoes, the way a real multi-process
// deployment would separate units into their own OS processes.
type NatsHub struct {
	mu       sync.Mutex
	server   *natssrv.Server
	conn     *nats.Conn
	js       nats.JetStreamContext
	capacity int
	units    map[string]chan commit.Commit
	log      *logging.Logger
}

// NewNatsHub starts an embedded NATS server with JetStream enabled and
// creates the shared commits stream.
func NewNatsHub(cfg config.NatsConfig, capacity int) (*NatsHub, error) {
	opts := &natssrv.Options{
		Host:      cfg.Host,
		Port:      cfg.Port,
		JetStream: true,
		StoreDir:  storageDir,
	}

	srv, err := natssrv.NewServer(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedded NATS server")
	}

	go srv.Start()
	for i := 0; i < 3; i++ {
		if srv.ReadyForConnections(2 * time.Second) {
			break
		}
		if i == 2 {
			return nil, errors.New("embedded NATS server not ready after 3 attempts")
		}
	}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to embedded NATS")
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get JetStream context")
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     commitsStream,
		Subjects: []string{commitsSubject},
		Storage:  nats.FileStorage,
	}); err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, errors.Wrap(err, "failed to add commits stream")
	}

	return &NatsHub{
		server:   srv,
		conn:     nc,
		js:       js,
		capacity: capacity,
		units:    make(map[string]chan commit.Commit),
		log:      logging.New(false),
	}, nil
}

func (h *NatsHub) Register(unitID string) (<-chan commit.Commit, error) {
	h.mu.Lock()
	if _, exists := h.units[unitID]; exists {
		h.mu.Unlock()
		return nil, errors.Errorf("unit %q already registered", unitID)
	}
	ch := make(chan commit.Commit, h.capacity)
	h.units[unitID] = ch
	h.mu.Unlock()

	_, err := h.js.Subscribe(commitsSubject, func(msg *nats.Msg) {
		h.deliver(unitID, ch, msg)
	}, nats.Durable("unit-"+unitID), nats.ManualAck(), nats.AckWait(ackWait))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe unit %q", unitID)
	}
	return ch, nil
}

func (h *NatsHub) deliver(unitID string, ch chan commit.Commit, msg *nats.Msg) {
	defer func() { _ = msg.Ack() }()

	sender := msg.Header.Get(senderHeader)
	if sender == unitID {
		return
	}

	var w wireCommit
	if err := json.Unmarshal(msg.Data, &w); err != nil {
		h.log.Error("failed to decode commit", logging.Hub, "unit", unitID, "error", err.Error())
		return
	}

	select {
	case ch <- fromWire(w):
	default:
		h.log.Warn("dropping commit, inbound channel full", logging.Hub, "unit", unitID)
	}
}

func (h *NatsHub) Publish(unitID string, c commit.Commit) error {
	return h.publish(unitID, c)
}

func (h *NatsHub) PublishClientMessage(c commit.Commit) error {
	return h.publish(clientSenderMarker, c)
}

func (h *NatsHub) publish(senderID string, c commit.Commit) error {
	payload, err := json.Marshal(toWire(c))
	if err != nil {
		return errors.Wrap(err, "failed to encode commit")
	}
	msg := nats.NewMsg(commitsSubject)
	msg.Data = payload
	msg.Header.Set(senderHeader, senderID)

	if _, err := h.js.PublishMsg(msg); err != nil {
		return errors.Wrap(err, "failed to publish commit")
	}
	return nil
}

func (h *NatsHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.units {
		close(ch)
		delete(h.units, id)
	}
	if h.conn != nil {
		h.conn.Close()
	}
	if h.server != nil {
		h.server.Shutdown()
	}
	return nil
}
