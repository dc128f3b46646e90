// Package lower materializes flat Objects into a native view.
//
// Types are resolved with a two-queue deferred retry loop rather than a
// topological sort: batches are unordered, may reference names delivered by an
// earlier batch, and may be cyclic. Structures that cannot be completed yet are
// registered as empty stubs so that peers referencing them can proceed, and are
// refined on a later pass.
package lower

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/object"
)

// UnresolvedError reports the entries of a batch whose dependencies could not be
// resolved. Everything else in the batch was applied.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved dependencies for %d object(s): %s", len(e.Names), strings.Join(e.Names, ", "))
}

// Lowerer applies batches to one view. A Lowerer remembers anonymous types it has
// built (scalars, pointers, arrays, signatures) so later batches can reference
// them by name, and parks unresolved entries for retry with the next batch.
//
// A Lowerer is not safe for concurrent use.
type Lowerer struct {
	view   native.View
	logger zerolog.Logger

	anon   map[string]*native.Type
	parked *object.Objects
}

// New creates a Lowerer writing into view.
func New(view native.View, logger zerolog.Logger) *Lowerer {
	return &Lowerer{
		view:   view,
		logger: logger,
		anon:   make(map[string]*native.Type),
		parked: object.NewObjects(),
	}
}

// Lookup returns the native type a name lowers to, if known.
func (l *Lowerer) Lookup(name string) (*native.Type, bool) {
	return l.lookup(nil, name)
}

// Parked returns the names waiting for a dependency from a later batch.
func (l *Lowerer) Parked() []string {
	return l.parked.Names()
}

// Lower applies every object of batch. Types are materialized first; functions
// and globals follow once type resolution has finished or stalled.
//
// When a full pass resolves nothing, the remaining entries are parked and an
// *UnresolvedError naming the entries of this batch is returned. Already applied
// entries stay applied.
func (l *Lowerer) Lower(batch *object.Objects) error {
	for _, o := range batch.Slice() {
		if err := o.Validate(); err != nil {
			return err
		}
	}

	work := object.NewObjects()
	work.Merge(batch)
	work.Merge(l.parked)
	l.parked = object.NewObjects()

	lowered := make(map[string]*native.Type)
	var unresolved []object.Object

	stalled, err := l.lowerTypes(work, lowered)
	if err != nil {
		return err
	}
	unresolved = append(unresolved, stalled...)

	for _, o := range work.Slice() {
		var ok bool
		switch o.Kind() {
		case object.KindFunction:
			ok, err = l.lowerFunction(o, lowered)
		case object.KindGlobal:
			ok, err = l.lowerGlobal(o, lowered)
		default:
			continue
		}
		if err != nil {
			return err
		}
		if !ok {
			unresolved = append(unresolved, o)
		}
	}

	var names []string
	for _, o := range unresolved {
		l.parked.Add(o)
		if _, fromBatch := batch.Get(o.Name); fromBatch {
			names = append(names, o.Name)
		}
	}

	if l.parked.Len() > 0 {
		l.logger.Debug().
			Int("parked", l.parked.Len()).
			Strs("names", l.parked.Names()).
			Msg("Parked objects with unresolved dependencies")
	}

	if len(names) > 0 {
		sort.Strings(names)
		return &UnresolvedError{Names: names}
	}
	return nil
}

// lowerTypes runs the deferred retry loop over the type objects of work and
// returns the entries that could not be resolved.
func (l *Lowerer) lowerTypes(work *object.Objects, lowered map[string]*native.Type) ([]object.Object, error) {
	var ready, deferred []object.Object
	for _, o := range work.Slice() {
		if o.Kind() == object.KindType {
			ready = append(ready, o)
		}
	}

	stubbed := make(map[string]bool)
	progress := false

	for len(ready) > 0 || len(deferred) > 0 {
		if len(ready) == 0 {
			if !progress {
				return deferred, nil
			}
			ready, deferred = deferred, nil
			progress = false
		}

		o := ready[0]
		ready = ready[1:]

		done, stub, err := l.lowerType(o, lowered, stubbed)
		if err != nil {
			return nil, err
		}
		if done || stub {
			progress = true
		}
		if !done {
			deferred = append(deferred, o)
		}
	}
	return nil, nil
}

// lowerType attempts one type object. It reports whether the type was fully
// materialized and whether a new stub was registered on its behalf.
func (l *Lowerer) lowerType(o object.Object, lowered map[string]*native.Type, stubbed map[string]bool) (done, stub bool, err error) {
	size := o.Type.Size

	switch info := o.Type.Info.(type) {
	case object.Void:
		l.resolveAnon(o.Name, native.Void(), lowered)
	case object.Bool:
		t := native.Bool()
		t.Width = size
		t.Alignment = alignmentOr(o.Type.Alignment, t.Alignment)
		l.resolveAnon(o.Name, t, lowered)
	case object.Int:
		t := native.Int(size, info.Signed)
		t.Alignment = alignmentOr(o.Type.Alignment, t.Alignment)
		l.resolveAnon(o.Name, t, lowered)
	case object.Float:
		t := native.Float(size)
		t.Alignment = alignmentOr(o.Type.Alignment, t.Alignment)
		l.resolveAnon(o.Name, t, lowered)

	case object.Pointer:
		base, ok := l.lookup(lowered, info.ToType)
		if !ok {
			return false, false, nil
		}
		t := native.PointerTo(base, size)
		for i := uint(0); i < pointerDepth(o.Name, info); i++ {
			t = native.PointerTo(t, size)
		}
		t.Alignment = alignmentOr(o.Type.Alignment, t.Alignment)
		l.resolveAnon(o.Name, t, lowered)

	case object.Array:
		item, ok := l.lookup(lowered, info.ItemType)
		if !ok {
			return false, false, nil
		}
		t := native.ArrayOf(item, info.Count)
		t.Width = size
		t.Alignment = alignmentOr(o.Type.Alignment, t.Alignment)
		l.resolveAnon(o.Name, t, lowered)

	case object.FunctionSignature:
		ret, ok := l.lookup(lowered, info.ReturnType)
		if !ok {
			return false, false, nil
		}
		params := make([]native.Param, 0, len(info.ArgTypes))
		for _, name := range info.ArgTypes {
			arg, ok := l.lookup(lowered, name)
			if !ok {
				return false, false, nil
			}
			params = append(params, native.Param{Type: arg})
		}
		l.resolveAnon(o.Name, native.FunctionOf(ret, params...), lowered)

	case object.Enum:
		members := make([]native.EnumMember, 0, len(info.Values))
		for _, v := range info.Values {
			members = append(members, native.EnumMember{Name: v.Name, Value: v.Value})
		}
		t := native.EnumOf(o.Name, size, members...)
		t.Alignment = alignmentOr(o.Type.Alignment, t.Alignment)
		if err := l.define(o.Name, t, lowered); err != nil {
			return false, false, err
		}

	case object.Struct:
		members := make([]native.Member, 0, len(info.Fields))
		for _, f := range info.Fields {
			ft, ok := l.lookup(lowered, f.FieldType)
			if !ok {
				if stubbed[o.Name] {
					return false, false, nil
				}
				stubbed[o.Name] = true
				if _, exists := l.view.TypeByName(o.Name); !exists {
					stubType := native.StructOf(o.Name, size, alignmentOr(o.Type.Alignment, 1))
					if err := l.view.DefineType(o.Name, stubType); err != nil {
						return false, false, fmt.Errorf("stub %q: %w", o.Name, err)
					}
				}
				lowered[o.Name] = native.NamedRef(o.Name)
				return false, true, nil
			}
			members = append(members, native.Member{Name: f.Name, Offset: f.Offset, Type: ft})
		}
		t := native.StructOf(o.Name, size, alignmentOr(o.Type.Alignment, 1), members...)
		if err := l.define(o.Name, t, lowered); err != nil {
			return false, false, err
		}

	default:
		return false, false, fmt.Errorf("%w: %q has unsupported info %T", object.ErrInvalidObject, o.Name, o.Type.Info)
	}

	return true, false, nil
}

func (l *Lowerer) lowerFunction(o object.Object, lowered map[string]*native.Type) (bool, error) {
	fn := o.Function

	ret, ok := l.lookup(lowered, fn.ReturnType)
	if !ok {
		return false, nil
	}
	params := make([]native.Param, 0, len(fn.Arguments))
	for _, arg := range fn.Arguments {
		t, ok := l.lookup(lowered, arg.ArgType)
		if !ok {
			return false, nil
		}
		params = append(params, native.Param{Name: arg.Name, Type: t})
	}

	err := l.view.DefineFunction(native.Function{
		Start: fn.Location,
		Name:  o.Name,
		Type:  native.FunctionOf(ret, params...),
	})
	if err != nil {
		return false, fmt.Errorf("function %q: %w", o.Name, err)
	}
	return true, nil
}

func (l *Lowerer) lowerGlobal(o object.Object, lowered map[string]*native.Type) (bool, error) {
	t, ok := l.lookup(lowered, o.Global.GlobalType)
	if !ok {
		return false, nil
	}
	err := l.view.DefineDataVar(native.DataVar{Address: o.Global.Location, Name: o.Name, Type: t})
	if err != nil {
		return false, fmt.Errorf("global %q: %w", o.Name, err)
	}
	return true, nil
}

// Remove deletes every native entity called name: functions, the registered type
// and data variables. Removing an unknown name is not an error.
func (l *Lowerer) Remove(name string) {
	delete(l.anon, name)
	l.parked = l.parked.Filter(func(o object.Object) bool { return o.Name != name })
	Remove(l.view, name)
}

// Remove deletes every native entity called name from view.
func Remove(view native.View, name string) {
	for {
		f, ok := view.FunctionByName(name)
		if !ok || !view.RemoveFunction(f.Start) {
			break
		}
	}

	view.UndefineType(name)

	for _, v := range view.DataVars() {
		if v.Name == name {
			view.RemoveDataVar(v.Address)
		}
	}
}

// lookup resolves a name against this batch, then the anonymous types of earlier
// batches, then the view's registered types.
func (l *Lowerer) lookup(lowered map[string]*native.Type, name string) (*native.Type, bool) {
	if t, ok := lowered[name]; ok {
		return t, true
	}
	if t, ok := l.anon[name]; ok {
		return t, true
	}
	if _, ok := l.view.TypeByName(name); ok {
		return native.NamedRef(name), true
	}
	return nil, false
}

func (l *Lowerer) resolveAnon(name string, t *native.Type, lowered map[string]*native.Type) {
	lowered[name] = t
	l.anon[name] = t
}

func (l *Lowerer) define(name string, t *native.Type, lowered map[string]*native.Type) error {
	if err := l.view.DefineType(name, t); err != nil {
		return fmt.Errorf("define %q: %w", name, err)
	}
	lowered[name] = native.NamedRef(name)
	delete(l.anon, name)
	return nil
}

// pointerDepth returns the extra indirections of a pointer record. Older peers
// count the first indirection too; their records are recognised by a name with
// exactly Depth stars after ToType.
func pointerDepth(name string, p object.Pointer) uint {
	if p.Depth > 0 && name == p.ToType+strings.Repeat("*", int(p.Depth)) {
		return p.Depth - 1
	}
	return p.Depth
}

func alignmentOr(a, fallback uint64) uint64 {
	if a == 0 {
		return fallback
	}
	return a
}

// IsUnresolved reports whether err is an *UnresolvedError.
func IsUnresolved(err error) bool {
	var ue *UnresolvedError
	return errors.As(err, &ue)
}
