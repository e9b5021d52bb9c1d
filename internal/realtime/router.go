package realtime

// Handler consumes one change.
type Handler func(Change)

type routeKey struct {
	table string
	typ   EventType
}

// Router maps (table, event type) pairs to handlers.
type Router struct {
	routes map[routeKey]Handler
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[routeKey]Handler)}
}

// On registers h for changes of typ on table. All registers a catch-all for the table.
func (r *Router) On(table string, typ EventType, h Handler) *Router {
	r.routes[routeKey{table: table, typ: typ}] = h
	return r
}

// Dispatch invokes the handler for c and reports whether one was registered.
func (r *Router) Dispatch(c Change) bool {
	if h, ok := r.routes[routeKey{table: c.Table, typ: c.Type}]; ok {
		h(c)
		return true
	}
	if h, ok := r.routes[routeKey{table: c.Table, typ: All}]; ok {
		h(c)
		return true
	}
	return false
}

// Run dispatches every change of sub until its stream ends, then returns sub.Err().
func (r *Router) Run(sub Subscription) error {
	for c := range sub.Changes() {
		r.Dispatch(c)
	}
	return sub.Err()
}
