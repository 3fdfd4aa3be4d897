// Package memory provides an in-process habit backend with the same shape as a Notion habit
// database: reserved Date and Index properties, one page per day, values keyed by property name.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/models"
)

// Backend is a thread-safe in-memory habitsource.Backend.
type Backend struct {
	mu    sync.Mutex
	props []habitsource.Property
	pages []models.TodayPage
	// Calls counts backend operations by name, for assertions in tests.
	Calls map[string]int
}

// New creates an empty habit database with the reserved properties.
func New() *Backend {
	return &Backend{
		props: []habitsource.Property{
			{ID: "title", Name: models.PropertyIndex, Type: "title"},
			{ID: uuid.NewString(), Name: models.PropertyDate, Type: "date"},
		},
		Calls: make(map[string]int),
	}
}

func (b *Backend) indexOf(name string) int {
	for i, p := range b.props {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Properties implements habitsource.Backend.
func (b *Backend) Properties(ctx context.Context) ([]habitsource.Property, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls["Properties"]++
	return append([]habitsource.Property(nil), b.props...), nil
}

// CreateProperty implements habitsource.Backend.
func (b *Backend) CreateProperty(ctx context.Context, name string, t models.HabitType) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls["CreateProperty"]++
	if b.indexOf(name) >= 0 {
		return &habitsource.BackendError{Op: "create property", Status: 400, Err: fmt.Errorf("property %q exists", name)}
	}
	b.props = append(b.props, habitsource.Property{ID: uuid.NewString(), Name: name, Type: string(t)})
	return nil
}

// RenameProperty implements habitsource.Backend. Page values follow the rename.
func (b *Backend) RenameProperty(ctx context.Context, name, newName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls["RenameProperty"]++
	i := b.indexOf(name)
	if i < 0 {
		return &habitsource.BackendError{Op: "rename property", Status: 400, Err: fmt.Errorf("property %q does not exist", name)}
	}
	b.props[i].Name = newName
	for _, page := range b.pages {
		if v, ok := page.Values[name]; ok {
			delete(page.Values, name)
			page.Values[newName] = v
		}
	}
	return nil
}

// DeleteProperty implements habitsource.Backend.
func (b *Backend) DeleteProperty(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls["DeleteProperty"]++
	i := b.indexOf(name)
	if i < 0 {
		return &habitsource.BackendError{Op: "delete property", Status: 400, Err: fmt.Errorf("property %q does not exist", name)}
	}
	b.props = append(b.props[:i], b.props[i+1:]...)
	for _, page := range b.pages {
		delete(page.Values, name)
	}
	return nil
}

// LatestPages implements habitsource.Backend.
func (b *Backend) LatestPages(ctx context.Context, limit int) ([]models.TodayPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls["LatestPages"]++
	sorted := make([]models.TodayPage, len(b.pages))
	for i, p := range b.pages {
		sorted[i] = clonePage(p)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date > sorted[j].Date })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// CreatePage implements habitsource.Backend.
func (b *Backend) CreatePage(ctx context.Context, index int, date string, values map[string]models.PageValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls["CreatePage"]++
	page := models.TodayPage{ID: uuid.NewString(), Index: index, Date: date, Values: make(map[string]models.PageValue)}
	for k, v := range values {
		page.Values[k] = v
	}
	b.pages = append(b.pages, page)
	return nil
}

// UpdatePage implements habitsource.Backend.
func (b *Backend) UpdatePage(ctx context.Context, pageID string, values map[string]models.PageValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls["UpdatePage"]++
	for _, page := range b.pages {
		if page.ID != pageID {
			continue
		}
		for k, v := range values {
			page.Values[k] = v
		}
		return nil
	}
	return &habitsource.BackendError{Op: "update page", Status: 404, Err: fmt.Errorf("page %q not found", pageID)}
}

// AddPage seeds a day page directly.
func (b *Backend) AddPage(page models.TodayPage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	b.pages = append(b.pages, clonePage(page))
}

// Pages returns a copy of all stored pages in insertion order.
func (b *Backend) Pages() []models.TodayPage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.TodayPage, len(b.pages))
	for i, p := range b.pages {
		out[i] = clonePage(p)
	}
	return out
}

func clonePage(p models.TodayPage) models.TodayPage {
	values := make(map[string]models.PageValue, len(p.Values))
	for k, v := range p.Values {
		if v.Number != nil {
			n := *v.Number
			v.Number = &n
		}
		values[k] = v
	}
	p.Values = values
	return p
}

// Registry holds one Backend per habit database id.
type Registry struct {
	mu  sync.Mutex
	dbs map[string]*Backend
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{dbs: make(map[string]*Backend)}
}

// Get returns the Backend for databaseID, creating it on first use.
func (r *Registry) Get(databaseID string) *Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.dbs[databaseID]
	if !ok {
		b = New()
		r.dbs[databaseID] = b
	}
	return b
}

// NewFactory returns a habitsource.Factory serving users from the registry.
func NewFactory(r *Registry, opts ...habitsource.Option) habitsource.Factory {
	return habitsource.NewFactory(func(databaseID string) habitsource.Backend {
		return r.Get(databaseID)
	}, opts...)
}
