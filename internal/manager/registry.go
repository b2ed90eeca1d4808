package manager

import (
	"fmt"
	"log/slog"
	"strings"
)

// Add appends a stopped entry with an empty path and returns its id.
// A blank name becomes "Service <id>".
func (m *Manager) Add(name string) ID {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Service %d", id)
	}
	e := &entry{id: id, name: name, status: StatusStopped}
	m.order = append(m.order, e)
	m.byID[id] = e
	m.mu.Unlock()

	m.log.Info("Added "+name, slog.String("id", id.String()), slog.String("entry", name))
	return id
}

// Remove stops the entry if it is running and deletes it. Stop failures are
// logged and do not prevent removal. Unknown ids are ignored.
func (m *Manager) Remove(id ID) error {
	e := m.lookup(id)
	if e == nil {
		m.log.Debug("remove of unknown entry ignored", slog.String("id", id.String()))
		return nil
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil
	}
	e.removed = true
	name := e.name
	if e.handle != nil {
		if err := m.stopLocked(e); err != nil {
			m.log.Warn("Removing "+name+" despite stop failure",
				slog.String("id", id.String()), slog.String("entry", name), slog.Any("error", err))
		}
	}
	e.mu.Unlock()

	m.mu.Lock()
	delete(m.byID, id)
	for i, x := range m.order {
		if x == e {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.log.Info("Removed "+name, slog.String("id", id.String()), slog.String("entry", name))
	return nil
}

// Rename changes the display name.
func (m *Manager) Rename(id ID, name string) error {
	return m.mutate(id, "rename", func(e *entry) { e.name = name })
}

// SetPath changes the executable path. The path is validated at start time only.
func (m *Manager) SetPath(id ID, path string) error {
	return m.mutate(id, "set path of", func(e *entry) { e.path = path })
}

func (m *Manager) mutate(id ID, op string, fn func(*entry)) error {
	e := m.lookup(id)
	if e != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
	}
	if e == nil || e.removed {
		m.log.Warn("Cannot "+op+" unknown entry", slog.String("id", id.String()))
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	fn(e)
	return nil
}

// List returns snapshots of all entries in insertion order.
func (m *Manager) List() []Entry {
	es := m.entries()
	out := make([]Entry, 0, len(es))
	for _, e := range es {
		out = append(out, e.snapshot())
	}
	return out
}

// Get returns the snapshot of one entry.
func (m *Manager) Get(id ID) (Entry, bool) {
	e := m.lookup(id)
	if e == nil {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Lookup returns the first entry whose display name matches, ignoring case.
func (m *Manager) Lookup(name string) (Entry, bool) {
	name = strings.TrimSpace(name)
	for _, e := range m.entries() {
		s := e.snapshot()
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}
