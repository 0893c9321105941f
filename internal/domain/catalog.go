package domain

import (
	"fmt"
	"sort"
)

// Catalog is the validated set of entities known to a pipeline run.
type Catalog struct {
	entities []Entity
	byName   map[string]int
}

// NewCatalog validates the entity definitions and their dependency graph.
func NewCatalog(entities []Entity) (*Catalog, error) {
	c := &Catalog{
		entities: make([]Entity, 0, len(entities)),
		byName:   make(map[string]int, len(entities)),
	}
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate entity %s", ErrConfiguration, e.Name)
		}
		c.byName[e.Name] = len(c.entities)
		c.entities = append(c.entities, e)
	}

	for _, e := range c.entities {
		for _, fk := range e.ForeignKeys {
			target, ok := c.Lookup(fk.Entity)
			if !ok {
				return nil, fmt.Errorf("%w: entity %s references unknown entity %s", ErrConfiguration, e.Name, fk.Entity)
			}
			if _, ok := target.FieldByName(fk.ReferencedField); !ok {
				return nil, fmt.Errorf("%w: entity %s references unknown field %s.%s", ErrConfiguration, e.Name, fk.Entity, fk.ReferencedField)
			}
		}
	}

	if _, err := c.TopologicalOrder(); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the entity with the given name.
func (c *Catalog) Lookup(name string) (Entity, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return Entity{}, false
	}
	return c.entities[idx], true
}

// Entities returns the entities in declaration order.
func (c *Catalog) Entities() []Entity {
	return append([]Entity(nil), c.entities...)
}

// TopologicalOrder sorts entities so every dependency precedes its dependents.
// Ties keep declaration order.
func (c *Catalog) TopologicalOrder() ([]Entity, error) {
	indegree := make(map[string]int, len(c.entities))
	adjacency := make(map[string][]string)
	for _, e := range c.entities {
		indegree[e.Name] = indegree[e.Name]
		for _, dep := range e.DependsOn() {
			indegree[e.Name]++
			adjacency[dep] = append(adjacency[dep], e.Name)
		}
	}

	var queue []string
	for _, e := range c.entities {
		if indegree[e.Name] == 0 {
			queue = append(queue, e.Name)
		}
	}

	var result []Entity
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, c.entities[c.byName[current]])

		next := adjacency[current]
		sort.Slice(next, func(i, j int) bool { return c.byName[next[i]] < c.byName[next[j]] })
		for _, name := range next {
			indegree[name]--
			if indegree[name] == 0 {
				queue = append(queue, name)
			}
		}
		sort.SliceStable(queue, func(i, j int) bool { return c.byName[queue[i]] < c.byName[queue[j]] })
	}

	if len(result) != len(c.entities) {
		return nil, fmt.Errorf("%w: entity dependency graph contains a cycle", ErrConfiguration)
	}
	return result, nil
}

// Resolve maps names onto entities and checks that the sequence respects every
// declared dependency: a dependency must either come earlier in names or, when
// allowAbsent is set, be missing from names entirely.
func (c *Catalog) Resolve(names []string, allowAbsent bool) ([]Entity, error) {
	position := make(map[string]int, len(names))
	for i, name := range names {
		if _, ok := c.byName[name]; !ok {
			return nil, fmt.Errorf("%w: unknown entity %s", ErrConfiguration, name)
		}
		if _, dup := position[name]; dup {
			return nil, fmt.Errorf("%w: entity %s listed twice", ErrConfiguration, name)
		}
		position[name] = i
	}

	out := make([]Entity, 0, len(names))
	for i, name := range names {
		e := c.entities[c.byName[name]]
		for _, dep := range e.DependsOn() {
			at, listed := position[dep]
			switch {
			case listed && at > i:
				return nil, fmt.Errorf("%w: entity %s must come after its dependency %s", ErrConfiguration, name, dep)
			case !listed && !allowAbsent:
				return nil, fmt.Errorf("%w: entity %s requires %s earlier in the order", ErrConfiguration, name, dep)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Dependents returns every entity that transitively depends on name.
func (c *Catalog) Dependents(name string) map[string]bool {
	out := make(map[string]bool)
	changed := true
	for changed {
		changed = false
		for _, e := range c.entities {
			if out[e.Name] {
				continue
			}
			for _, dep := range e.DependsOn() {
				if dep == name || out[dep] {
					out[e.Name] = true
					changed = true
					break
				}
			}
		}
	}
	return out
}

// WithSourceFiles returns a copy of the catalog with overridden source files.
func (c *Catalog) WithSourceFiles(files map[string]string) (*Catalog, error) {
	entities := c.Entities()
	for name := range files {
		if _, ok := c.byName[name]; !ok {
			return nil, fmt.Errorf("%w: file mapping for unknown entity %s", ErrConfiguration, name)
		}
	}
	for i := range entities {
		if file, ok := files[entities[i].Name]; ok && file != "" {
			entities[i].SourceFile = file
		}
	}
	return NewCatalog(entities)
}
