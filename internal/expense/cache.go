// Package expense owns the local copy of the expense and category
// collections. Every mutation is remote-first: the server's canonical entity
// is what lands in the cache, and a mutation only resolves after the cache
// is consistent again (including the implicit category discovery that an
// expense create/update can trigger).
package expense

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"contabile/internal/api"
	"contabile/internal/core"
	"contabile/internal/log"
)

// Authenticator gates cache operations on an active session.
type Authenticator interface {
	IsAuthenticated() bool
}

// Notifier receives a change event after each successful mutation. Publish
// failures are logged and swallowed: the remote mutation has already
// committed by the time the hook runs.
type Notifier interface {
	Publish(ctx context.Context, entity, action, id string) error
}

// ExpenseDraft is the payload for creating an expense.
type ExpenseDraft struct {
	Title    string     `json:"title"`
	Amount   core.Money `json:"amount"`
	SpentAt  core.Date  `json:"spentAt"`
	Note     string     `json:"note,omitempty"`
	Category string     `json:"category"`
}

func (d ExpenseDraft) Validate() error {
	return core.Expense{
		ID:       "draft",
		Title:    d.Title,
		Amount:   d.Amount,
		SpentAt:  d.SpentAt,
		Note:     d.Note,
		Category: d.Category,
	}.Validate()
}

// ExpensePatch is a partial update; nil fields are left untouched.
type ExpensePatch struct {
	Title    *string     `json:"title,omitempty"`
	Amount   *core.Money `json:"amount,omitempty"`
	SpentAt  *core.Date  `json:"spentAt,omitempty"`
	Note     *string     `json:"note,omitempty"`
	Category *string     `json:"category,omitempty"`
}

// Cache mediates all expense and category operations through the gateway
// and keeps the two collections consistent with each other. Insertion order
// carries no meaning; consumers derive ordered views through the query
// pipeline.
type Cache struct {
	mu         sync.RWMutex
	expenses   []core.Expense
	categories []core.Category

	client   *api.Client
	auth     Authenticator
	notifier Notifier
	logger   *log.Logger
}

func NewCache(client *api.Client, auth Authenticator, notifier Notifier, logger *log.Logger) *Cache {
	return &Cache{
		client:   client,
		auth:     auth,
		notifier: notifier,
		logger:   logger.WithComponent(log.ComponentExpenses),
	}
}

// Expenses returns a copy of the cached expense collection.
func (c *Cache) Expenses() []core.Expense {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Expense, len(c.expenses))
	copy(out, c.expenses)
	return out
}

// Categories returns a copy of the cached category collection.
func (c *Cache) Categories() []core.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

func (c *Cache) requireAuth() error {
	if c.auth != nil && !c.auth.IsAuthenticated() {
		return api.ErrUnauthorized
	}
	return nil
}

// LoadExpenses replaces the local expense collection with the server's
// authoritative set.
func (c *Cache) LoadExpenses(ctx context.Context) error {
	if err := c.requireAuth(); err != nil {
		return err
	}

	var expenses []core.Expense
	if err := c.client.Do(ctx, http.MethodGet, "/expenses", nil, &expenses); err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}

	c.mu.Lock()
	c.expenses = expenses
	c.mu.Unlock()
	return nil
}

// LoadCategories replaces the local category collection with the server's
// authoritative set.
func (c *Cache) LoadCategories(ctx context.Context) error {
	if err := c.requireAuth(); err != nil {
		return err
	}

	var categories []core.Category
	if err := c.client.Do(ctx, http.MethodGet, "/categories", nil, &categories); err != nil {
		return fmt.Errorf("list categories: %w", err)
	}

	c.mu.Lock()
	c.categories = categories
	c.mu.Unlock()
	return nil
}

// Refresh loads both collections concurrently.
func (c *Cache) Refresh(ctx context.Context) error {
	if err := c.requireAuth(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.LoadExpenses(ctx) })
	g.Go(func() error { return c.LoadCategories(ctx) })
	return g.Wait()
}

// AddExpense creates an expense remotely and appends the returned canonical
// entity. When the server reports a category name the cache has not seen,
// the category collection is re-listed before the call returns.
func (c *Cache) AddExpense(ctx context.Context, draft ExpenseDraft) (core.Expense, error) {
	if err := c.requireAuth(); err != nil {
		return core.Expense{}, err
	}
	if err := draft.Validate(); err != nil {
		return core.Expense{}, err
	}

	var created core.Expense
	if err := c.client.Do(ctx, http.MethodPost, "/expenses", draft, &created); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	c.mu.Lock()
	c.expenses = append(c.expenses, created)
	c.mu.Unlock()

	if err := c.discoverCategory(ctx, created.Category); err != nil {
		return core.Expense{}, err
	}
	c.notify(ctx, "expense", log.OpCreate, created.ID)
	return created, nil
}

// UpdateExpense patches an expense remotely and splices the returned
// canonical entity into the cache by id (replace, not merge). Concurrent
// updates to the same id race; the last response to arrive wins.
func (c *Cache) UpdateExpense(ctx context.Context, id string, patch ExpensePatch) (core.Expense, error) {
	if err := c.requireAuth(); err != nil {
		return core.Expense{}, err
	}

	var updated core.Expense
	if err := c.client.Do(ctx, http.MethodPatch, "/expenses/"+id, patch, &updated); err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}

	c.mu.Lock()
	for i := range c.expenses {
		if c.expenses[i].ID == updated.ID {
			c.expenses[i] = updated
			break
		}
	}
	c.mu.Unlock()

	if err := c.discoverCategory(ctx, updated.Category); err != nil {
		return core.Expense{}, err
	}
	c.notify(ctx, "expense", log.OpUpdate, updated.ID)
	return updated, nil
}

// DeleteExpense removes an expense remotely, then locally.
func (c *Cache) DeleteExpense(ctx context.Context, id string) error {
	if err := c.requireAuth(); err != nil {
		return err
	}

	if err := c.client.Do(ctx, http.MethodDelete, "/expenses/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}

	c.mu.Lock()
	c.expenses = removeExpense(c.expenses, id)
	c.mu.Unlock()

	c.notify(ctx, "expense", log.OpDelete, id)
	return nil
}

// AddCategory creates a category remotely and appends the canonical entity.
func (c *Cache) AddCategory(ctx context.Context, name string) (core.Category, error) {
	if err := c.requireAuth(); err != nil {
		return core.Category{}, err
	}
	if err := (core.Category{Name: name}).Validate(); err != nil {
		return core.Category{}, err
	}

	var created core.Category
	if err := c.client.Do(ctx, http.MethodPost, "/categories", map[string]string{"name": name}, &created); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	c.mu.Lock()
	c.categories = append(c.categories, created)
	c.mu.Unlock()

	c.notify(ctx, "category", log.OpCreate, strconv.FormatInt(created.ID, 10))
	return created, nil
}

// RenameCategory renames a category remotely and splices the result by id.
// Expenses keep referencing the category by name, so the expense collection
// is re-listed to pick up the server-side rename.
func (c *Cache) RenameCategory(ctx context.Context, id int64, newName string) (core.Category, error) {
	if err := c.requireAuth(); err != nil {
		return core.Category{}, err
	}
	if err := (core.Category{Name: newName}).Validate(); err != nil {
		return core.Category{}, err
	}

	var updated core.Category
	path := "/categories/" + strconv.FormatInt(id, 10)
	if err := c.client.Do(ctx, http.MethodPatch, path, map[string]string{"name": newName}, &updated); err != nil {
		return core.Category{}, fmt.Errorf("rename category %d: %w", id, err)
	}

	c.mu.Lock()
	for i := range c.categories {
		if c.categories[i].ID == updated.ID {
			c.categories[i] = updated
			break
		}
	}
	c.mu.Unlock()

	if err := c.LoadExpenses(ctx); err != nil {
		return core.Category{}, err
	}

	c.notify(ctx, "category", log.OpUpdate, strconv.FormatInt(id, 10))
	return updated, nil
}

// DeleteCategory removes a category remotely. The server cascades the
// deletion to the category's expenses, so the cache drops both the category
// and every expense carrying its name.
func (c *Cache) DeleteCategory(ctx context.Context, id int64) error {
	if err := c.requireAuth(); err != nil {
		return err
	}

	c.mu.RLock()
	var name string
	for _, cat := range c.categories {
		if cat.ID == id {
			name = cat.Name
			break
		}
	}
	c.mu.RUnlock()

	path := "/categories/" + strconv.FormatInt(id, 10)
	if err := c.client.Do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}

	c.mu.Lock()
	kept := c.categories[:0]
	for _, cat := range c.categories {
		if cat.ID != id {
			kept = append(kept, cat)
		}
	}
	c.categories = kept

	if name != "" {
		keptExp := c.expenses[:0]
		for _, e := range c.expenses {
			if e.Category != name {
				keptExp = append(keptExp, e)
			}
		}
		c.expenses = keptExp
	}
	c.mu.Unlock()

	c.notify(ctx, "category", log.OpDelete, strconv.FormatInt(id, 10))
	return nil
}

// discoverCategory re-lists categories when an expense references a name
// missing from the cache. The server may have auto-created it, or another
// client may have created it concurrently.
func (c *Cache) discoverCategory(ctx context.Context, name string) error {
	c.mu.RLock()
	known := false
	for _, cat := range c.categories {
		if cat.Name == name {
			known = true
			break
		}
	}
	c.mu.RUnlock()

	if known {
		return nil
	}

	c.logger.DebugContext(ctx, "unknown category on expense, refreshing",
		log.FieldCategory, name)
	return c.LoadCategories(ctx)
}

func (c *Cache) notify(ctx context.Context, entity, action, id string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, entity, action, id); err != nil {
		c.logger.WarnContext(ctx, "change notification failed",
			log.FieldOperation, action,
			log.FieldError, err)
	}
}

func removeExpense(expenses []core.Expense, id string) []core.Expense {
	kept := expenses[:0]
	for _, e := range expenses {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return kept
}
