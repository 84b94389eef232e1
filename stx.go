// Package stx the client runtime of the Syntax framework: hydrates compiled component descriptors against a
// document, renders their changes at frame rate and connects them to the realtime server.
package stx

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/syntax-framework/stx/config"
	"github.com/syntax-framework/stx/descriptor"
	"github.com/syntax-framework/stx/dom"
	"github.com/syntax-framework/stx/engine"
	"github.com/syntax-framework/stx/loop"
	"github.com/syntax-framework/stx/pubsub"
)

// Runtime one document, its components and the control loop they share
type Runtime struct {
	Config   *config.Config
	Document *dom.Document
	Loop     *loop.Loop
	Registry *engine.Registry
	Metrics  *engine.Metrics

	mu          sync.Mutex
	conn        *pubsub.Connection
	removeState func()
	standalone  []*engine.Instance
}

// New creates the runtime of a document. Metrics are registered on reg, when not nil.
func New(cfg *config.Config, doc *dom.Document, reg prometheus.Registerer) *Runtime {
	if cfg == nil {
		cfg = config.Default()
	}
	l := loop.New()
	return &Runtime{
		Config:   cfg,
		Document: doc,
		Loop:     l,
		Registry: engine.NewRegistry(),
		Metrics:  engine.NewMetrics(reg),
	}
}

// Load decodes a descriptor in the wire format
func Load(data []byte) (*descriptor.Descriptor, error) {
	return descriptor.Load(data)
}

// Register a component mounted on every element matching the selector, after its dependencies
func (r *Runtime) Register(selector string, desc *descriptor.Descriptor, dependencies ...string) error {
	factory, err := engine.NewFactory(desc)
	if err != nil {
		return err
	}
	return r.Registry.Register(selector, factory, dependencies...)
}

func (r *Runtime) options() engine.MountOptions {
	opts := engine.MountOptions{Host: r.Loop, Metrics: r.Metrics}
	if r.Document != nil {
		opts.Finder = r.Document
	}
	return opts
}

// Mount mounts the registered components. A component that fails does not stop the others, its error is returned
// with the instances that could be mounted.
func (r *Runtime) Mount() ([]*engine.Instance, error) {
	return r.Registry.MountAll(r.Document, r.options())
}

// Instantiate mounts a single component on root, outside of the registry
func (r *Runtime) Instantiate(root dom.Node, desc *descriptor.Descriptor) (*engine.Instance, error) {
	factory, err := engine.NewFactory(desc)
	if err != nil {
		return nil, err
	}
	instance, err := factory.Mount(root, r.options())
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.standalone = append(r.standalone, instance)
	r.mu.Unlock()
	return instance, nil
}

// connected fans a connection state change out to the registry and the standalone instances
func (r *Runtime) connected(connected bool) {
	r.mu.Lock()
	standalone := append([]*engine.Instance{}, r.standalone...)
	r.mu.Unlock()

	if connected {
		r.Registry.Connected()
	} else {
		r.Registry.Disconnected()
	}
	for _, instance := range standalone {
		if connected {
			instance.Connected()
		} else {
			instance.Disconnected()
		}
	}
}

// Connect opens the process-wide realtime connection. Its state changes fire onConnect and onDisconnect of every
// live instance, on the control loop.
func (r *Runtime) Connect(opts ...pubsub.Option) (*pubsub.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := pubsub.Default(r.Config, append([]pubsub.Option{pubsub.WithDispatcher(r.Loop)}, opts...)...)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	r.removeState = conn.OnState(r.connected)
	return conn, nil
}

// Channel a channel of the realtime connection, connecting on first use
func (r *Runtime) Channel(topic string, params map[string]interface{}) (*pubsub.Channel, error) {
	conn, err := r.Connect()
	if err != nil {
		return nil, err
	}
	return conn.Channel(topic, params)
}

// Run the control loop until the context is done
func (r *Runtime) Run(ctx context.Context) error {
	return r.Loop.Run(ctx)
}

// Shutdown destroys every instance and shuts the realtime connection down
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	standalone := r.standalone
	r.standalone = nil
	conn := r.conn
	r.conn = nil
	if r.removeState != nil {
		r.removeState()
		r.removeState = nil
	}
	r.mu.Unlock()

	for _, instance := range standalone {
		instance.Destroy()
	}
	r.Registry.DestroyAll()

	if conn != nil {
		return pubsub.Shutdown()
	}
	return nil
}
