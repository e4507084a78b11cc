package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-connectors/core"
	glog "github.com/goliatone/go-logger/glog"
)

// HandlerFunc executes one named core action. Returning an error marks the
// result failed; the invoker never surfaces handler errors to the caller
// directly.
type HandlerFunc func(ctx context.Context, req core.ActionRequest) (map[string]any, error)

// Definition describes one action exposed to connectors.
type Definition struct {
	Name            string
	Description     string
	RequireIdentity bool
	Handler         HandlerFunc
}

func (d Definition) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("actions: action name is required")
	}
	if d.Handler == nil {
		return fmt.Errorf("actions: handler is required for action %q", d.Name)
	}
	return nil
}

// Invoker is the core-side gateway connectors call into. Every failure mode
// comes back as an ActionResult with Success=false and a machine error code;
// connectors never see raised errors from this boundary.
type Invoker struct {
	logger  core.Logger
	metrics core.MetricsRecorder

	mu      sync.RWMutex
	actions map[string]Definition
}

type Option func(*Invoker)

func WithLogger(logger core.Logger) Option {
	return func(inv *Invoker) {
		if logger != nil {
			inv.logger = logger
		}
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(inv *Invoker) {
		if metrics != nil {
			inv.metrics = metrics
		}
	}
}

func NewInvoker(opts ...Option) *Invoker {
	_, logger := glog.Resolve("connectors:actions", nil, nil)
	inv := &Invoker{
		logger:  glog.Ensure(logger),
		metrics: core.NopMetricsRecorder{},
		actions: map[string]Definition{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(inv)
	}
	return inv
}

// Register adds an action to the table. Registering the same name twice is an
// error: action names form the connector-facing API surface and must not be
// silently replaced.
func (inv *Invoker) Register(def Definition) error {
	if inv == nil {
		return fmt.Errorf("actions: invoker is nil")
	}
	if err := def.validate(); err != nil {
		return err
	}
	name := normalizeActionName(def.Name)
	def.Name = name

	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, exists := inv.actions[name]; exists {
		return fmt.Errorf("actions: action %q already registered", name)
	}
	inv.actions[name] = def
	return nil
}

func (inv *Invoker) Actions() []string {
	if inv == nil {
		return nil
	}
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	names := make([]string, 0, len(inv.actions))
	for name := range inv.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (inv *Invoker) Invoke(ctx context.Context, req core.ActionRequest) core.ActionResult {
	if inv == nil {
		return failure(core.RuntimeErrorInternal, "actions: invoker is nil")
	}
	name := normalizeActionName(req.Name)
	if name == "" {
		return failure(core.RuntimeErrorActionFailure, "actions: action name is required")
	}
	req.Name = name

	inv.mu.RLock()
	def, ok := inv.actions[name]
	inv.mu.RUnlock()
	if !ok {
		return failure(core.RuntimeErrorNotFound, fmt.Sprintf("actions: unknown action %q", name))
	}
	if def.RequireIdentity && !req.Caller.Resolved {
		return failure(core.RuntimeErrorActionFailure,
			fmt.Sprintf("actions: action %q requires a resolved identity", name))
	}

	data, err := inv.run(ctx, def, req)
	if err != nil {
		inv.logger.Warn("action failed",
			"action", name,
			"anonymous", req.Caller.Anonymous,
			"error", err,
		)
		inv.metrics.IncCounter(ctx, "connectors.actions.failed", 1, map[string]string{"action": name})
		return failure(core.RuntimeErrorActionFailure, err.Error())
	}
	inv.metrics.IncCounter(ctx, "connectors.actions.invoked", 1, map[string]string{"action": name})
	return core.ActionResult{Success: true, Data: data}
}

// run executes the handler with panic isolation. A panicking handler fails
// its own invocation only.
func (inv *Invoker) run(ctx context.Context, def Definition, req core.ActionRequest) (data map[string]any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			data = nil
			err = fmt.Errorf("actions: action %q panicked: %v", def.Name, recovered)
		}
	}()
	return def.Handler(ctx, req)
}

func failure(code, message string) core.ActionResult {
	return core.ActionResult{
		Success:   false,
		Error:     message,
		ErrorCode: code,
	}
}

func normalizeActionName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

var _ core.ActionInvoker = (*Invoker)(nil)
