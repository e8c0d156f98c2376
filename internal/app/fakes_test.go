package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// fakeSignal records every frame delivered to one participant.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

// events decodes the type of every received frame, in order.
func (f *fakeSignal) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(fr, &env) == nil {
			out = append(out, env.Type)
		}
	}
	return out
}

func (f *fakeSignal) count(event string) int {
	n := 0
	for _, e := range f.events() {
		if e == event {
			n++
		}
	}
	return n
}

type fakeEngine struct {
	mu         sync.Mutex
	routers    []*fakeRouter
	failCreate bool
}

func (e *fakeEngine) CreateRouter(context.Context) (core.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failCreate {
		return nil, errors.New("router allocation failed")
	}
	r := &fakeRouter{observer: &fakeObserver{producers: make(map[domain.StreamID]core.Producer)}}
	e.routers = append(e.routers, r)
	return r, nil
}

func (e *fakeEngine) routerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.routers)
}

type fakeRouter struct {
	observer *fakeObserver

	mu            sync.Mutex
	closed        bool
	failTransport bool
}

func (r *fakeRouter) Capabilities() json.RawMessage {
	return json.RawMessage(`{"codecs":[{"kind":"audio"},{"kind":"video"}]}`)
}

func (r *fakeRouter) CreateTransport(context.Context) (core.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTransport {
		return nil, errors.New("no ports left")
	}
	return &fakeTransport{id: domain.TransportID(uuid.NewString())}, nil
}

func (r *fakeRouter) CreateAudioLevelObserver(core.AudioLevelObserverConfig) (core.AudioLevelObserver, error) {
	return r.observer, nil
}

func (r *fakeRouter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRouter) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeObserver struct {
	mu        sync.Mutex
	producers map[domain.StreamID]core.Producer
	onVolumes func([]core.AudioLevel)
	onSilence func()
	closed    bool
	failAdd   bool
}

func (o *fakeObserver) AddProducer(p core.Producer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failAdd {
		return errors.New("observer full")
	}
	o.producers[p.ID()] = p
	return nil
}

func (o *fakeObserver) RemoveProducer(id domain.StreamID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.producers, id)
}

func (o *fakeObserver) OnVolumes(fn func([]core.AudioLevel)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onVolumes = fn
}

func (o *fakeObserver) OnSilence(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSilence = fn
}

func (o *fakeObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeObserver) emitVolumes(levels []core.AudioLevel) {
	o.mu.Lock()
	fn := o.onVolumes
	o.mu.Unlock()
	if fn != nil {
		fn(levels)
	}
}

func (o *fakeObserver) emitSilence() {
	o.mu.Lock()
	fn := o.onSilence
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (o *fakeObserver) has(id domain.StreamID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.producers[id]
	return ok
}

type fakeTransport struct {
	id domain.TransportID

	mu          sync.Mutex
	connected   bool
	closed      bool
	failConnect bool
	failProduce bool
	failConsume bool
}

func (t *fakeTransport) Info() core.TransportInfo {
	return core.TransportInfo{
		ID:             t.id,
		ICEParameters:  json.RawMessage(`{}`),
		ICECandidates:  json.RawMessage(`[]`),
		DTLSParameters: json.RawMessage(`{}`),
	}
}

func (t *fakeTransport) Connect(_ context.Context, _ json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failConnect {
		return errors.New("dtls handshake failed")
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Produce(_ context.Context, req core.ProduceRequest) (core.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failProduce {
		return nil, errors.New("ssrc missing")
	}
	return &fakeProducer{id: domain.StreamID(uuid.NewString()), kind: req.Kind}, nil
}

func (t *fakeTransport) Consume(_ context.Context, req core.ConsumeRequest) (core.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failConsume {
		return nil, errors.New("incompatible capabilities")
	}
	return &fakeConsumer{
		id:     domain.ConsumerID(uuid.NewString()),
		kind:   req.Producer.Kind(),
		params: json.RawMessage(`{"encodings":[]}`),
	}, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeProducer struct {
	id   domain.StreamID
	kind domain.MediaKind

	mu        sync.Mutex
	paused    bool
	closed    bool
	failClose bool
}

func (p *fakeProducer) ID() domain.StreamID    { return p.id }
func (p *fakeProducer) Kind() domain.MediaKind { return p.kind }

func (p *fakeProducer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

func (p *fakeProducer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

func (p *fakeProducer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakeProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.failClose {
		return errors.New("already gone")
	}
	return nil
}

func (p *fakeProducer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeConsumer struct {
	id     domain.ConsumerID
	kind   domain.MediaKind
	params json.RawMessage

	mu      sync.Mutex
	resumed bool
	closed  bool
}

func (c *fakeConsumer) ID() domain.ConsumerID          { return c.id }
func (c *fakeConsumer) Kind() domain.MediaKind         { return c.kind }
func (c *fakeConsumer) RTPParameters() json.RawMessage { return c.params }

func (c *fakeConsumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumed = true
	return nil
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
