package mem

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
)

// ABIVersion is the version of the allocation contract modules attach against.
const ABIVersion = "1.2.0"

var abiVersion = semver.MustParse(ABIVersion)

// Module describes a dynamically loaded component that shares the process-wide
// manager instead of building its own, so every module uses one AllocID space.
type Module struct {
	Name string
	// Requires is a semver constraint on ABIVersion, e.g. "^1.1". Empty accepts any.
	Requires string
}

// AttachModule records mod after checking its constraint against ABIVersion.
func (m *Manager) AttachModule(mod Module) error {
	if strings.TrimSpace(mod.Name) == "" {
		return fmt.Errorf("%w: module has no name", ErrIncompatibleModule)
	}
	if mod.Requires != "" {
		c, err := semver.NewConstraint(mod.Requires)
		if err != nil {
			return fmt.Errorf("%w: %s: constraint %q: %w", ErrIncompatibleModule, mod.Name, mod.Requires, err)
		}
		if ok, errs := c.Validate(abiVersion); !ok {
			return fmt.Errorf("%w: %s requires %s, have %s: %v", ErrIncompatibleModule, mod.Name, mod.Requires, ABIVersion, errs)
		}
	}

	m.modMu.Lock()
	defer m.modMu.Unlock()

	if _, ok := m.modules[mod.Name]; ok {
		return fmt.Errorf("%w: %s", ErrModuleAttached, mod.Name)
	}
	m.modules[mod.Name] = mod
	m.log.Info("module attached", zap.String("module", mod.Name), zap.String("requires", mod.Requires))
	return nil
}

// DetachModule forgets a module. Allocators it registered stay registered.
func (m *Manager) DetachModule(name string) error {
	m.modMu.Lock()
	defer m.modMu.Unlock()

	if _, ok := m.modules[name]; !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotAttached, name)
	}
	delete(m.modules, name)
	m.log.Info("module detached", zap.String("module", name))
	return nil
}

// AttachedModules returns the attached modules sorted by name.
func (m *Manager) AttachedModules() []Module {
	m.modMu.Lock()
	defer m.modMu.Unlock()

	out := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod)
	}
	slices.SortFunc(out, func(a, b Module) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Attach attaches mod to the process-wide manager and returns it.
func Attach(mod Module) (*Manager, error) {
	m := global.Load()
	if m == nil {
		return nil, ErrNotInitialized
	}
	if err := m.AttachModule(mod); err != nil {
		return nil, err
	}
	return m, nil
}

// Detach detaches a module from the process-wide manager.
func Detach(name string) error {
	m := global.Load()
	if m == nil {
		return ErrNotInitialized
	}
	return m.DetachModule(name)
}

// Modules lists the modules attached to the process-wide manager.
func Modules() []Module {
	m := global.Load()
	if m == nil {
		return nil
	}
	return m.AttachedModules()
}
