package transport

// Middleware is an interceptor: it wraps the handler of the next rank and
// may act before and after it.
type Middleware func(Handler) Handler

// Chain composes interceptors from outer to inner, so Chain(a, b)(h) runs
// a first on the request and last on the response. Nil entries are skipped,
// which lets an interceptor factory decline to take part in a pipeline.
func Chain(middlewares ...Middleware) Middleware {
	return func(terminal Handler) Handler {
		h := terminal
		for i := len(middlewares) - 1; i >= 0; i-- {
			if mw := middlewares[i]; mw != nil {
				h = mw(h)
			}
		}
		return h
	}
}
