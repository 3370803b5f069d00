package command

// Features is the set of feature toggles injected into a context when it is created
type Features map[string]bool

// Enabled reports whether the named feature is on
func (f Features) Enabled(name string) bool {
	return f[name]
}

// Clone returns a copy that can be handed to a single context
func (f Features) Clone() Features {
	out := make(Features, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
