package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/pipetree/internal/logging"
	"github.com/aretw0/pipetree/internal/runtime"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/ports"
)

// Persistence is what the driver needs from the persistence adapter.
type Persistence interface {
	runtime.Persistence
	LoadInstanceState(ctx context.Context, id string) (*domain.InstanceState, error)
}

// Driver serializes commands against the current state tree.
type Driver struct {
	holder      *Holder
	provider    ports.ConfigProvider
	persistence Persistence
	executor    ports.FuncExecutor
	validator   ports.Validator
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	mockMode    bool

	projections *Subject[domain.Projections]
	locked      *Subject[bool]
	dirty       atomic.Bool
	// publishMu orders publications against the reset in Close.
	publishMu sync.Mutex

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	closed bool
	done   chan struct{}
}

type job struct {
	ctx   context.Context
	cmd   domain.Command
	reply chan domain.CommandResult
}

// Option configures a Driver.
type Option func(*Driver)

// WithHolder injects the holder of the current tree.
func WithHolder(h *Holder) Option {
	return func(d *Driver) {
		d.holder = h
	}
}

// WithProvider resolves provider names for initPipeline and loadPipeline.
func WithProvider(p ports.ConfigProvider) Option {
	return func(d *Driver) {
		d.provider = p
	}
}

// WithPersistence enables the load and save commands.
func WithPersistence(p Persistence) Option {
	return func(d *Driver) {
		d.persistence = p
	}
}

// WithExecutor binds steps of every tree to their functions.
func WithExecutor(exec ports.FuncExecutor) Option {
	return func(d *Driver) {
		d.executor = exec
	}
}

// WithValidator provides the validators steps refer to.
func WithValidator(v ports.Validator) Option {
	return func(d *Driver) {
		d.validator = v
	}
}

// WithLifecycleHooks reports commands, runs and tree swaps.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Driver) {
		d.hooks = hooks
	}
}

// WithLogger configures a logger for the Driver and the trees it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithMockMode lets runStep commands carry mock results.
func WithMockMode(enabled bool) Option {
	return func(d *Driver) {
		d.mockMode = enabled
	}
}

// New creates a Driver and starts draining its queue.
func New(opts ...Option) *Driver {
	d := &Driver{
		holder:      NewHolder(),
		logger:      logging.NewNop(),
		projections: NewSubject(domain.EmptyProjections()),
		locked:      NewSubject(false),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// Send queues cmd without waiting for it. Failures are reported through the
// logger and the OnCommandFailed hook.
func (d *Driver) Send(cmd domain.Command) error {
	return d.enqueue(job{ctx: context.Background(), cmd: cmd})
}

// Do queues cmd and waits until it has been processed.
func (d *Driver) Do(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	reply := make(chan domain.CommandResult, 1)
	if err := d.enqueue(job{ctx: ctx, cmd: cmd, reply: reply}); err != nil {
		return domain.CommandResult{Event: eventOf(cmd), Err: err}, err
	}
	select {
	case res := <-reply:
		return res, res.Err
	case <-ctx.Done():
		return domain.CommandResult{Event: eventOf(cmd), Err: ctx.Err()}, ctx.Err()
	}
}

func (d *Driver) enqueue(j job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return domain.ErrDriverClosed
	}
	d.queue = append(d.queue, j)
	d.cond.Signal()
	return nil
}

func (d *Driver) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			pending := d.queue
			d.queue = nil
			d.mu.Unlock()
			for _, j := range pending {
				d.finish(j, domain.CommandResult{Event: eventOf(j.cmd), Err: domain.ErrDriverClosed})
			}
			return
		}
		j := d.queue[0]
		d.queue[0] = job{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.process(j)
	}
}

func (d *Driver) process(j job) {
	start := time.Now()
	res, err := d.handle(j.ctx, j.cmd)
	res.Event = eventOf(j.cmd)
	res.Err = err

	d.publish()
	d.report(j.ctx, res, time.Since(start))
	d.finish(j, res)
}

func (d *Driver) finish(j job, res domain.CommandResult) {
	if j.reply != nil {
		j.reply <- res
	}
}

func (d *Driver) handle(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	if cmd == nil {
		return domain.CommandResult{}, fmt.Errorf("%w: nil command", domain.ErrProtocol)
	}
	if err := domain.ValidateCommand(cmd); err != nil {
		return domain.CommandResult{}, err
	}
	if c, ok := cmd.(domain.RunStep); ok && c.MockResults != nil && !d.mockMode {
		return domain.CommandResult{}, fmt.Errorf("%w: mock results require mock mode", domain.ErrProtocol)
	}

	tree := d.holder.Current()
	if domain.RequiresTree(cmd) && tree == nil {
		return domain.CommandResult{}, domain.ErrNoTree
	}

	switch c := cmd.(type) {
	case domain.AddDynamicItem:
		id, err := tree.AddSubTree(ctx, c.ParentUUID, c.ItemID, c.Position)
		return domain.CommandResult{UUID: id}, err
	case domain.LoadDynamicItem:
		id, err := tree.LoadSubTree(ctx, c.ParentUUID, c.DBID, c.ItemID, c.Position, c.Readonly)
		return domain.CommandResult{UUID: id}, err
	case domain.SaveDynamicItem:
		dbID, err := tree.Save(ctx, c.UUID)
		return domain.CommandResult{UUID: c.UUID, DBID: dbID}, err
	case domain.RemoveDynamicItem:
		return domain.CommandResult{UUID: c.UUID}, tree.RemoveSubTree(ctx, c.UUID)
	case domain.MoveDynamicItem:
		return domain.CommandResult{UUID: c.UUID}, tree.MoveSubTree(ctx, c.UUID, c.Position)
	case domain.RunStep:
		return domain.CommandResult{UUID: c.UUID}, tree.RunStep(ctx, c.UUID, c.Mock())
	case domain.UpdateInputs:
		return domain.CommandResult{UUID: c.UUID}, tree.UpdateInputs(ctx, c.UUID, c.Inputs)
	case domain.SavePipeline:
		dbID, err := tree.Save(ctx, "")
		return domain.CommandResult{UUID: tree.RootUUID(), DBID: dbID}, err
	case domain.LoadPipeline:
		return d.loadPipeline(ctx, c)
	case domain.InitPipeline:
		return d.initPipeline(ctx, c)
	}
	return domain.CommandResult{}, fmt.Errorf("%w: %T", domain.ErrUnknownCommand, cmd)
}

// publish recomputes the projections once if the tree signalled a change
// while the last command ran.
func (d *Driver) publish() {
	if !d.dirty.Swap(false) || d.isClosed() {
		return
	}
	p := domain.EmptyProjections()
	if tree := d.holder.Current(); tree != nil {
		p = tree.Projections()
	}
	d.emit(func() { d.projections.Publish(p) })
}

// emit runs fn unless the driver is closed. Close publishes its reset under
// the same lock, so nothing emitted here can land after it.
func (d *Driver) emit(fn func()) {
	d.publishMu.Lock()
	defer d.publishMu.Unlock()
	if d.isClosed() {
		return
	}
	fn()
}

func (d *Driver) report(ctx context.Context, res domain.CommandResult, duration time.Duration) {
	event := &domain.CommandEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventCommandDone},
		Command:   res.Event,
		Duration:  duration,
		Err:       res.Err,
	}
	if res.Err != nil {
		event.Type = domain.EventCommandFailed
		d.logger.Error("Command failed", "event", res.Event, "err", res.Err)
		if d.hooks.OnCommandFailed != nil {
			d.hooks.OnCommandFailed(ctx, event)
		}
		return
	}
	d.logger.Debug("Command processed", "event", res.Event, "uuid", res.UUID, "duration", duration)
	if d.hooks.OnCommandDone != nil {
		d.hooks.OnCommandDone(ctx, event)
	}
}

// Projections returns the latest published projections.
func (d *Driver) Projections() domain.Projections {
	return d.projections.Value()
}

// Locked mirrors the lock flag of the current tree; false when there is none.
func (d *Driver) Locked() bool {
	return d.locked.Value()
}

// Subscribe streams published projections, starting with the current ones.
func (d *Driver) Subscribe() (<-chan domain.Projections, func()) {
	return d.projections.Subscribe()
}

// SubscribeLocked streams the lock flag, starting with the current value.
func (d *Driver) SubscribeLocked() (<-chan bool, func()) {
	return d.locked.Subscribe()
}

// ObserveProjections calls fn with the current projections and with every
// published record, from the goroutine that publishes it. fn must not
// call Close.
func (d *Driver) ObserveProjections(fn func(domain.Projections)) func() {
	return d.projections.Observe(fn)
}

// Close disposes the current tree, resets the projections and stops the
// queue. Queued commands fail with ErrDriverClosed; a command in flight
// finishes but publishes nothing.
func (d *Driver) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	d.holder.Close()
	d.publishMu.Lock()
	d.projections.Publish(domain.EmptyProjections())
	d.locked.Publish(false)
	d.projections.Close()
	d.locked.Close()
	d.publishMu.Unlock()
	d.logger.Debug("Driver closed")
}

// Done is closed once the queue goroutine has exited.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

func (d *Driver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func eventOf(cmd domain.Command) string {
	if cmd == nil {
		return ""
	}
	return cmd.Event()
}
