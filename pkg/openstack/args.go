package openstack

const redactedValue = "****"

// sensitiveFlags are option names whose value is never logged.
var sensitiveFlags = map[string]bool{
	"password": true,
	"token":    true,
}

// Args is an ordered argument list. Providers append in the order of their
// field-to-flag mapping, so the same desired resource always produces the
// same argv.
type Args struct {
	values    []string
	sensitive map[int]bool
}

// NewArgs creates an empty argument list.
func NewArgs() *Args {
	return &Args{}
}

// Add appends positional arguments.
func (a *Args) Add(values ...string) *Args {
	a.values = append(a.values, values...)
	return a
}

// Flag appends a bare --name flag.
func (a *Args) Flag(name string) *Args {
	a.values = append(a.values, "--"+name)
	return a
}

// Opt appends --name value. The value of a sensitive option is redacted in
// logs and error details.
func (a *Args) Opt(name, value string) *Args {
	a.values = append(a.values, "--"+name, value)
	if sensitiveFlags[name] {
		if a.sensitive == nil {
			a.sensitive = make(map[int]bool)
		}
		a.sensitive[len(a.values)-1] = true
	}
	return a
}

// Toggle appends --on when enabled, else --off.
func (a *Args) Toggle(enabled bool, on, off string) *Args {
	if enabled {
		return a.Flag(on)
	}
	return a.Flag(off)
}

// Len returns the number of arguments.
func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.values)
}

// Strings returns the arguments.
func (a *Args) Strings() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.values))
	copy(out, a.values)
	return out
}

// Redacted returns the arguments with sensitive values masked.
func (a *Args) Redacted() []string {
	out := a.Strings()
	for i := range out {
		if a.sensitive[i] {
			out[i] = redactedValue
		}
	}
	return out
}
