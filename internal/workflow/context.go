package workflow

// Context is the shared key-value store threaded through a department run.
// It is seeded from the department's static context plus the caller's input
// data and grows by one entry per completed agent. Values are never deleted;
// a later agent overwrites a key only by declaring the same output key.
//
// Context carries no internal synchronization: the engine runs agents
// strictly sequentially within one run, and each run owns its own Context.
type Context map[string]interface{}

// Merge returns a new Context containing all entries of c overlaid with
// entries of overlay. Neither input is mutated.
func (c Context) Merge(overlay Context) Context {
	merged := make(Context, len(c)+len(overlay))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy of the context.
func (c Context) Clone() Context {
	cloned := make(Context, len(c))
	for k, v := range c {
		cloned[k] = v
	}
	return cloned
}

// Project selects the subset of the context matching keys, preserving key
// order, and reports which keys were not resolvable. An empty key list
// means "forward everything" and returns a clone of the full context.
func (c Context) Project(keys []string) (Context, []string) {
	if len(keys) == 0 {
		return c.Clone(), nil
	}

	projected := make(Context, len(keys))
	var missing []string
	for _, k := range keys {
		if v, ok := c[k]; ok {
			projected[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	return projected, missing
}

// WithOutput returns a new context with the agent result recorded under
// key. The receiver is left untouched.
func (c Context) WithOutput(key string, result interface{}) Context {
	merged := c.Clone()
	merged[key] = result
	return merged
}
