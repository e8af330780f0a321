package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zero-day-ai/taskgraph/types"
)

// Manager tracks a set of workflow graphs and runs them through a shared
// executor. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	graphs   map[types.ID]*Graph
	logger   *slog.Logger
	executor *Executor
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger used for manager-level events.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDefaultExecutor sets the executor used by Run and RunAll.
func WithDefaultExecutor(e *Executor) ManagerOption {
	return func(m *Manager) {
		if e != nil {
			m.executor = e
		}
	}
}

// NewManager creates a manager with the given options applied over a
// default logger and executor.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		graphs:   make(map[types.ID]*Graph),
		logger:   slog.Default(),
		executor: NewExecutor(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create builds an empty named graph, registers it and returns it.
func (m *Manager) Create(name string) *Graph {
	g := NewGraph(name)
	m.mu.Lock()
	m.graphs[g.ID] = g
	m.mu.Unlock()
	m.logger.Debug("workflow registered", "workflow_id", g.ID.Short(), "name", name)
	return g
}

// Add registers an existing graph under its ID.
func (m *Manager) Add(g *Graph) error {
	if g == nil {
		return &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: "workflow graph cannot be nil",
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.graphs[g.ID]; exists {
		return &WorkflowError{
			Code:    WorkflowErrorDuplicateWorkflow,
			Message: fmt.Sprintf("workflow %s already registered", g.ID.Short()),
		}
	}
	m.graphs[g.ID] = g
	return nil
}

// Get returns a registered graph by ID.
func (m *Manager) Get(id types.ID) (*Graph, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.graphs[id]
	return g, ok
}

// List returns the registered graphs ordered by creation time.
func (m *Manager) List() []*Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	graphs := make([]*Graph, 0, len(m.graphs))
	for _, g := range m.graphs {
		graphs = append(graphs, g)
	}
	sort.Slice(graphs, func(i, j int) bool {
		if graphs[i].CreatedAt.Equal(graphs[j].CreatedAt) {
			return graphs[i].ID < graphs[j].ID
		}
		return graphs[i].CreatedAt.Before(graphs[j].CreatedAt)
	})
	return graphs
}

// Remove forgets a graph and reports whether it was registered.
func (m *Manager) Remove(id types.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.graphs[id]; !ok {
		return false
	}
	delete(m.graphs, id)
	return true
}

// Run executes one registered workflow through the manager's executor.
func (m *Manager) Run(ctx context.Context, id types.ID, exec NodeExecutor) (*RunReport, error) {
	g, ok := m.Get(id)
	if !ok {
		return nil, &WorkflowError{
			Code:    WorkflowErrorUnknownWorkflow,
			Message: fmt.Sprintf("workflow %s not found", id.Short()),
		}
	}
	return m.executor.Execute(ctx, g, exec)
}

// RunAll executes every registered workflow concurrently and collects
// their reports by workflow ID. The first run error cancels the runs
// still in flight; reports produced before cancellation are retained.
func (m *Manager) RunAll(ctx context.Context, exec NodeExecutor) (map[types.ID]*RunReport, error) {
	graphs := m.List()

	var mu sync.Mutex
	reports := make(map[types.ID]*RunReport, len(graphs))

	grp, ctx := errgroup.WithContext(ctx)
	for _, g := range graphs {
		grp.Go(func() error {
			report, err := m.executor.Execute(ctx, g, exec)
			if report != nil {
				mu.Lock()
				reports[g.ID] = report
				mu.Unlock()
			}
			return err
		})
	}
	err := grp.Wait()
	return reports, err
}
