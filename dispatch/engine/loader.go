package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/emberbot/ember/dispatch/event"
)

// A handler-definition unit: a named bundle of rules, registered by its Load function at startup.
type Unit struct {
	Name string
	Load func(reg *Registrar, kit Toolkit) error
}

// Registration handle given to a unit's Load function. Rules registered through it are tagged with the unit's name.
type Registrar struct {
	ctx   context.Context
	eng   *Engine
	unit  string
	added int
}

func (reg *Registrar) Register(r *Rule) bool {
	if r != nil {
		r.Unit = reg.unit
	}
	ok := reg.eng.Register(reg.ctx, r)
	if ok {
		reg.added++
	}
	return ok
}

// Convenience wrapper around NewRule and Register.
func (reg *Registrar) Rule(name string, kind event.Kind, opts RuleOptions, handler HandlerFunc) bool {
	return reg.Register(NewRule(name, kind, opts, handler))
}

// Name of the unit being loaded.
func (reg *Registrar) Unit() string {
	return reg.unit
}

// Loads each unit in order. A unit which errors or panics is logged and skipped; loading continues with the next unit. Returns the collected load errors (each a *LoadError), if any.
func (eng *Engine) LoadUnits(ctx context.Context, units ...Unit) error {
	var errs []error
	for _, u := range units {
		n, err := eng.loadUnit(ctx, u)
		if err != nil {
			unitLoadErrorCount.Inc()
			var lerr *LoadError
			errors.As(err, &lerr)
			args := []any{"unit", u.Name, "err", lerr.Err}
			if eng.Config.Debug && lerr.Stack != nil {
				args = append(args, "stack", string(lerr.Stack))
			}
			eng.Logger.Error("unit failed to load", args...)
			eng.notify(ctx, u.Name, err)
			errs = append(errs, err)
			continue
		}
		eng.Logger.Info("unit loaded", "unit", u.Name, "rules", n)
	}
	return errors.Join(errs...)
}

func (eng *Engine) loadUnit(ctx context.Context, u Unit) (n int, err error) {
	reg := &Registrar{ctx: ctx, eng: eng, unit: u.Name}
	defer func() {
		if rec := recover(); rec != nil {
			err = &LoadError{Unit: u.Name, Err: fmt.Errorf("panic: %v", rec), Stack: debug.Stack()}
		}
	}()
	if u.Load == nil {
		return 0, &LoadError{Unit: u.Name, Err: errors.New("unit has no load function")}
	}
	if err := u.Load(reg, eng.Kit); err != nil {
		return reg.added, &LoadError{Unit: u.Name, Err: err}
	}
	return reg.added, nil
}

// Names of every rule registered with the engine so far, in scan order. Safe to call from handlers, where it reflects all loaded units.
func (reg *Registrar) RuleNames() []string {
	rules := reg.eng.Rules.All()
	names := make([]string, 0, len(rules))
	for _, r := range rules {
		names = append(names, r.Name)
	}
	return names
}
