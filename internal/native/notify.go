package native

// Op is the kind of change a notification reports.
type Op int

const (
	OpAdded Op = iota
	OpUpdated
	OpRemoved
)

func (o Op) String() string {
	switch o {
	case OpAdded:
		return "added"
	case OpUpdated:
		return "updated"
	case OpRemoved:
		return "removed"
	}
	return "unknown"
}

// Category is the entity category an Event refers to.
type Category int

const (
	CategoryType Category = iota
	CategoryFunction
	CategoryDataVar
)

func (c Category) String() string {
	switch c {
	case CategoryType:
		return "type"
	case CategoryFunction:
		return "function"
	case CategoryDataVar:
		return "data_var"
	}
	return "unknown"
}

// Event is one native change notification. Exactly one of Type, Function or
// DataVar is set, matching Category. Name is the entity's name at the time of the
// change.
type Event struct {
	Op       Op
	Category Category
	Name     string

	Type     *Type
	Function *Function
	DataVar  *DataVar
}

// Observer receives change notifications. Notify may be invoked on any goroutine,
// including the one that performed the mutation, and must not block.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Notify calls f(ev).
func (f ObserverFunc) Notify(ev Event) { f(ev) }

// Subscription cancels an observer registration. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}
