package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/pipetree/internal/logging"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/ports"
	"github.com/google/uuid"
)

// Persistence is what the tree needs from the persistence adapter.
type Persistence interface {
	SaveTree(ctx context.Context, root *domain.RecordTree) error
	LoadTree(ctx context.Context, id string) (*domain.RecordTree, error)
}

// Tree owns the node graph for one pipeline instance.
type Tree struct {
	mu     sync.RWMutex
	config *domain.PipelineConfiguration
	root   *node
	index  map[string]*node
	closed bool

	executor    ports.FuncExecutor
	validator   ports.Validator
	persistence Persistence
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	mockMode    bool
	readonly    bool

	listenerMu sync.Mutex
	nextID     int
	onChange   map[int]func()
	lockWatch  map[int]func(bool)
	inFlight   int
}

// Option configures a Tree.
type Option func(*Tree)

// WithExecutor binds steps to the functions they run.
func WithExecutor(exec ports.FuncExecutor) Option {
	return func(t *Tree) {
		t.executor = exec
	}
}

// WithValidator provides the validators steps refer to.
func WithValidator(v ports.Validator) Option {
	return func(t *Tree) {
		t.validator = v
	}
}

// WithPersistence enables save and loadSubTree.
func WithPersistence(p Persistence) Option {
	return func(t *Tree) {
		t.persistence = p
	}
}

// WithLifecycleHooks reports step runs.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(t *Tree) {
		t.hooks = hooks
	}
}

// WithLogger configures a logger for the Tree.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = logger
	}
}

// WithMockMode allows RunStep to substitute mock results for real execution.
func WithMockMode(enabled bool) Option {
	return func(t *Tree) {
		t.mockMode = enabled
	}
}

// WithReadonly marks every node of the tree readonly.
func WithReadonly(readonly bool) Option {
	return func(t *Tree) {
		t.readonly = readonly
	}
}

func newTree(cfg *domain.PipelineConfiguration, opts ...Option) (*Tree, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: missing pipeline configuration", domain.ErrConfiguration)
	}
	t := &Tree{
		config:    cfg.Clone(),
		index:     make(map[string]*node),
		logger:    logging.NewNop(),
		onChange:  make(map[int]func()),
		lockWatch: make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewFromConfig builds a fresh tree, without history, from a configuration.
// Call InitAll before handing it out.
func NewFromConfig(cfg *domain.PipelineConfiguration, opts ...Option) (*Tree, error) {
	t, err := newTree(cfg, opts...)
	if err != nil {
		return nil, err
	}
	root, err := t.buildFresh(&t.config.ItemConfig, domain.KindStatic, nil)
	if err != nil {
		return nil, err
	}
	t.attachIndex(root)
	t.root = root
	return t, nil
}

// NewFromInstanceState rebuilds a tree from persisted state and the
// configuration of its provider. Call InitFuncCalls before handing it out.
func NewFromInstanceState(state *domain.InstanceState, cfg *domain.PipelineConfiguration, opts ...Option) (*Tree, error) {
	if state == nil || state.Root == nil {
		return nil, fmt.Errorf("%w: empty instance state", domain.ErrConfiguration)
	}
	t, err := newTree(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if t.config.Provider == "" {
		t.config.Provider = state.Provider
	}
	if t.config.Version == nil {
		t.config.Version = state.Version
	}
	if state.Root.Record.ItemID != "" && state.Root.Record.ItemID != t.config.ID {
		return nil, fmt.Errorf("%w: persisted pipeline %q does not match configuration %q",
			domain.ErrSchemaMismatch, state.Root.Record.ItemID, t.config.ID)
	}
	root, err := t.buildFromRecords(&t.config.ItemConfig, domain.KindStatic, state.Root, t.readonly, nil)
	if err != nil {
		return nil, err
	}
	t.attachIndex(root)
	t.root = root
	return t, nil
}

// InitAll binds every configured step of a fresh tree and computes its first
// consistency and validation state.
func (t *Tree) InitAll(ctx context.Context) (*Tree, error) {
	return t.init(ctx)
}

// InitFuncCalls binds the calls of a tree rebuilt from persisted state.
// Completed history is consistent by definition.
func (t *Tree) InitFuncCalls(ctx context.Context) (*Tree, error) {
	return t.init(ctx)
}

func (t *Tree) init(ctx context.Context) (*Tree, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, domain.ErrTreeClosed
	}
	if err := t.checkFunctions(t.root); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.refreshEnablement()
	var steps []*node
	t.root.walk(func(n *node) {
		if n.runnable() {
			steps = append(steps, n)
		}
	})
	t.mu.Unlock()

	t.validate(ctx, steps...)
	t.changed()
	return t, nil
}

// checkFunctions fails when a step is bound to a function nobody provides.
// Mock mode trees may run steps without real functions.
func (t *Tree) checkFunctions(root *node) error {
	if t.mockMode {
		return nil
	}
	var missing error
	root.walk(func(n *node) {
		if missing != nil || !n.runnable() {
			return
		}
		if t.executor == nil || !t.executor.Has(n.cfg.NqName) {
			missing = fmt.Errorf("%w: %s (step %s)", domain.ErrFunctionNotFound, n.cfg.NqName, n.cfg.ID)
		}
	})
	return missing
}

func (t *Tree) attachIndex(root *node) {
	root.walk(func(n *node) {
		t.index[n.uuid] = n
	})
}

func (t *Tree) detachIndex(root *node) {
	root.walk(func(n *node) {
		delete(t.index, n.uuid)
	})
}

// newUUID returns an id unused in this tree, preferring the persisted one.
func (t *Tree) newUUID(preferred string, pending map[string]struct{}) string {
	if preferred != "" {
		_, taken := t.index[preferred]
		_, reserved := pending[preferred]
		if !taken && !reserved {
			return preferred
		}
	}
	return uuid.NewString()
}

// lookup resolves a node uuid. The caller holds t.mu.
func (t *Tree) lookup(id string) (*node, error) {
	if t.closed {
		return nil, domain.ErrTreeClosed
	}
	n, ok := t.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", domain.ErrNotFound, id)
	}
	return n, nil
}

// RootUUID returns the uuid of the pipeline root.
func (t *Tree) RootUUID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.uuid
}

// Config returns a copy of the configuration the tree was built from.
func (t *Tree) Config() *domain.PipelineConfiguration {
	return t.config.Clone()
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.index)
}

// OnChange registers fn to be called after every state change.
// The returned function removes the listener.
func (t *Tree) OnChange(fn func()) func() {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	id := t.nextID
	t.nextID++
	t.onChange[id] = fn
	return func() {
		t.listenerMu.Lock()
		defer t.listenerMu.Unlock()
		delete(t.onChange, id)
	}
}

// WatchLocked registers fn to be called whenever the lock flag flips.
// fn is called immediately with the current value.
func (t *Tree) WatchLocked(fn func(bool)) func() {
	t.listenerMu.Lock()
	id := t.nextID
	t.nextID++
	t.lockWatch[id] = fn
	locked := t.inFlight > 0
	t.listenerMu.Unlock()

	fn(locked)
	return func() {
		t.listenerMu.Lock()
		defer t.listenerMu.Unlock()
		delete(t.lockWatch, id)
	}
}

// Locked reports whether a structural mutation or a run is in flight.
func (t *Tree) Locked() bool {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	return t.inFlight > 0
}

// begin marks an operation in flight; the returned function ends it.
func (t *Tree) begin() func() {
	t.setInFlight(1)
	return func() { t.setInFlight(-1) }
}

func (t *Tree) setInFlight(delta int) {
	t.listenerMu.Lock()
	before := t.inFlight > 0
	t.inFlight += delta
	after := t.inFlight > 0
	var watchers []func(bool)
	if before != after {
		for _, fn := range t.lockWatch {
			watchers = append(watchers, fn)
		}
	}
	t.listenerMu.Unlock()

	for _, fn := range watchers {
		fn(after)
	}
}

// changed signals listeners that the tree state changed.
func (t *Tree) changed() {
	t.listenerMu.Lock()
	listeners := make([]func(), 0, len(t.onChange))
	for _, fn := range t.onChange {
		listeners = append(listeners, fn)
	}
	t.listenerMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Close tears down every listener. It is idempotent; results of operations
// still in flight are discarded.
func (t *Tree) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.listenerMu.Lock()
	t.onChange = make(map[int]func())
	t.lockWatch = make(map[int]func(bool))
	t.listenerMu.Unlock()
	t.logger.Debug("State tree closed", "pipeline", t.config.ID)
}

// Closed reports whether Close was called.
func (t *Tree) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
