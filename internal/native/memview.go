package native

import (
	"fmt"
	"sort"
	"sync"
)

// MemView is an in-memory View. It backs the standalone server, the mirror peer and
// the tests.
//
// Observers are invoked synchronously after the view's lock is released, so an
// observer may read the view while handling a notification.
type MemView struct {
	mu        sync.RWMutex
	types     map[string]*Type
	functions map[uint64]Function
	dataVars  map[uint64]DataVar

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextObs   uint64
}

var _ View = (*MemView)(nil)

// NewMemView creates an empty in-memory view.
func NewMemView() *MemView {
	return &MemView{
		types:     make(map[string]*Type),
		functions: make(map[uint64]Function),
		dataVars:  make(map[uint64]DataVar),
		observers: make(map[uint64]Observer),
	}
}

// Types returns the registered types ordered by name.
func (v *MemView) Types() []*Type {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.types))
	for name := range v.types {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Type, 0, len(names))
	for _, name := range names {
		out = append(out, v.types[name])
	}
	return out
}

// TypeByName returns the registered type called name.
func (v *MemView) TypeByName(name string) (*Type, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.types[name]
	return t, ok
}

// Resolve follows a named reference. Any other type resolves to itself.
func (v *MemView) Resolve(t *Type) (*Type, bool) {
	if t == nil {
		return nil, false
	}
	if t.Class != ClassNamedReference {
		return t, true
	}
	return v.TypeByName(t.Name)
}

// DefineType registers t under name. Structures and enumerations take the
// registered name.
func (v *MemView) DefineType(name string, t *Type) error {
	if name == "" {
		return fmt.Errorf("define type: empty name")
	}
	if t == nil {
		return fmt.Errorf("define type %q: nil type", name)
	}
	if (t.Class == ClassStructure || t.Class == ClassEnumeration) && t.Name != name {
		named := *t
		named.Name = name
		t = &named
	}

	v.mu.Lock()
	_, existed := v.types[name]
	v.types[name] = t
	v.mu.Unlock()

	op := OpAdded
	if existed {
		op = OpUpdated
	}
	v.notify(Event{Op: op, Category: CategoryType, Name: name, Type: t})
	return nil
}

// UndefineType removes the registered type called name.
func (v *MemView) UndefineType(name string) bool {
	v.mu.Lock()
	t, ok := v.types[name]
	delete(v.types, name)
	v.mu.Unlock()

	if ok {
		v.notify(Event{Op: OpRemoved, Category: CategoryType, Name: name, Type: t})
	}
	return ok
}

// Functions returns every function ordered by start address.
func (v *MemView) Functions() []Function {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Function, 0, len(v.functions))
	for _, f := range v.functions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// FunctionAt returns the function starting at addr.
func (v *MemView) FunctionAt(addr uint64) (Function, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	f, ok := v.functions[addr]
	return f, ok
}

// FunctionByName returns the lowest addressed function called name.
func (v *MemView) FunctionByName(name string) (Function, bool) {
	for _, f := range v.Functions() {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// DefineFunction creates or replaces the function at f.Start.
func (v *MemView) DefineFunction(f Function) error {
	if f.Name == "" {
		return fmt.Errorf("define function at %#x: empty name", f.Start)
	}
	if f.Type == nil {
		f.Type = FunctionOf(Void())
	}
	if f.Type.Class != ClassFunction {
		return fmt.Errorf("define function %q: type class %s is not callable", f.Name, f.Type.Class)
	}

	v.mu.Lock()
	_, existed := v.functions[f.Start]
	v.functions[f.Start] = f
	v.mu.Unlock()

	op := OpAdded
	if existed {
		op = OpUpdated
	}
	v.notify(Event{Op: op, Category: CategoryFunction, Name: f.Name, Function: &f})
	return nil
}

// RemoveFunction deletes the function starting at addr.
func (v *MemView) RemoveFunction(addr uint64) bool {
	v.mu.Lock()
	f, ok := v.functions[addr]
	delete(v.functions, addr)
	v.mu.Unlock()

	if ok {
		v.notify(Event{Op: OpRemoved, Category: CategoryFunction, Name: f.Name, Function: &f})
	}
	return ok
}

// DataVars returns every data variable ordered by address.
func (v *MemView) DataVars() []DataVar {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]DataVar, 0, len(v.dataVars))
	for _, dv := range v.dataVars {
		out = append(out, dv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// DataVarByName returns the lowest addressed data variable called name.
func (v *MemView) DataVarByName(name string) (DataVar, bool) {
	for _, dv := range v.DataVars() {
		if dv.Name == name {
			return dv, true
		}
	}
	return DataVar{}, false
}

// DefineDataVar creates or replaces the data variable at dv.Address.
func (v *MemView) DefineDataVar(dv DataVar) error {
	if dv.Type == nil {
		return fmt.Errorf("define data var %q: nil type", dv.Name)
	}

	v.mu.Lock()
	_, existed := v.dataVars[dv.Address]
	v.dataVars[dv.Address] = dv
	v.mu.Unlock()

	op := OpAdded
	if existed {
		op = OpUpdated
	}
	v.notify(Event{Op: op, Category: CategoryDataVar, Name: dv.Name, DataVar: &dv})
	return nil
}

// RemoveDataVar deletes the data variable at addr.
func (v *MemView) RemoveDataVar(addr uint64) bool {
	v.mu.Lock()
	dv, ok := v.dataVars[addr]
	delete(v.dataVars, addr)
	v.mu.Unlock()

	if ok {
		v.notify(Event{Op: OpRemoved, Category: CategoryDataVar, Name: dv.Name, DataVar: &dv})
	}
	return ok
}

// Subscribe registers o until the returned Subscription is cancelled.
func (v *MemView) Subscribe(o Observer) Subscription {
	v.obsMu.Lock()
	defer v.obsMu.Unlock()

	id := v.nextObs
	v.nextObs++
	v.observers[id] = o
	return &memSubscription{view: v, id: id}
}

func (v *MemView) notify(ev Event) {
	v.obsMu.RLock()
	ids := make([]uint64, 0, len(v.observers))
	for id := range v.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	observers := make([]Observer, 0, len(ids))
	for _, id := range ids {
		observers = append(observers, v.observers[id])
	}
	v.obsMu.RUnlock()

	for _, o := range observers {
		o.Notify(ev)
	}
}

type memSubscription struct {
	view *MemView
	id   uint64
	once sync.Once
}

func (s *memSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.view.obsMu.Lock()
		delete(s.view.observers, s.id)
		s.view.obsMu.Unlock()
	})
}
