// Package catalog holds the server-side action definition table. The
// catalog is the sole source of truth for what an action computes;
// clients only ever name an action, never submit a formula.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/abennett/grimoire/pkg/engine"
)

var (
	ErrUnknownAction   = errors.New("unknown action")
	ErrDuplicateAction = errors.New("duplicate action name")
)

type Catalog struct {
	actions map[string]engine.Action
	names   []string
}

// New builds a catalog from the given definitions, validating every one
// of them. A malformed definition is a configuration defect and fails
// the whole load.
func New(actions []engine.Action) (*Catalog, error) {
	c := &Catalog{actions: make(map[string]engine.Action, len(actions))}
	for _, action := range actions {
		if err := action.Validate(); err != nil {
			return nil, err
		}
		if _, ok := c.actions[action.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, action.Name)
		}
		c.actions[action.Name] = action
		c.names = append(c.names, action.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

func (c *Catalog) Get(name string) (engine.Action, error) {
	action, ok := c.actions[name]
	if !ok {
		return engine.Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return action, nil
}

// Names lists the catalog's action names in sorted order.
func (c *Catalog) Names() []string {
	return c.names
}

func (c *Catalog) Len() int {
	return len(c.actions)
}
