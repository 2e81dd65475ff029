package dfg

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed libc.yaml
var defaultLibraryYAML []byte

// Library return kinds.
const (
	ReturnNone     = "none"
	ReturnHeap     = "heap"
	ReturnExternal = "external"
)

// LibraryFunction is the data-flow summary of a function without source.
type LibraryFunction struct {
	Name    string          `yaml:"name"`
	Returns string          `yaml:"returns"`
	Effects []LibraryEffect `yaml:"effects,omitempty"`
	// DynamicSymbolArg is the index of an argument holding a symbol name
	// looked up at run time, as in dlsym(handle, "name").
	DynamicSymbolArg *int `yaml:"dynamic_symbol_arg,omitempty"`
	Pure             bool `yaml:"pure,omitempty"`
}

// LibraryEffect is one memory effect. Exactly one field is set.
type LibraryEffect struct {
	Copy          *CopyEffect  `yaml:"copy,omitempty"`
	WriteExternal *WriteEffect `yaml:"write_external,omitempty"`
}

// CopyEffect copies the pointee of From into the pointee of To. To may be
// "ret", the object the function returns.
type CopyEffect struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// WriteEffect overwrites the pointee of To with unknown external data.
type WriteEffect struct {
	To string `yaml:"to"`
}

type libraryFile struct {
	Functions []*LibraryFunction `yaml:"functions"`
}

// Library maps function names to library summaries.
type Library struct {
	funcs map[string]*LibraryFunction
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{funcs: make(map[string]*LibraryFunction)}
}

var (
	defaultLibOnce sync.Once
	defaultLib     *Library
)

// DefaultLibrary returns the embedded C library summaries.
func DefaultLibrary() *Library {
	defaultLibOnce.Do(func() {
		defaultLib = NewLibrary()
		if err := defaultLib.Parse(defaultLibraryYAML); err != nil {
			panic(fmt.Sprintf("embedded library summaries: %v", err))
		}
	})
	return defaultLib
}

// LoadLibrary returns the embedded summaries extended with the given files.
// Later entries replace earlier ones with the same name.
func LoadLibrary(paths ...string) (*Library, error) {
	lib := NewLibrary()
	for name, fn := range DefaultLibrary().funcs {
		lib.funcs[name] = fn
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read summary file %s: %w", p, err)
		}
		if err := lib.Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse summary file %s: %w", p, err)
		}
	}
	return lib, nil
}

// Parse adds the functions of a YAML summary document.
func (l *Library) Parse(data []byte) error {
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for _, fn := range f.Functions {
		if err := fn.validate(); err != nil {
			return err
		}
		l.funcs[fn.Name] = fn
	}
	return nil
}

// Add registers fn, replacing an entry with the same name.
func (l *Library) Add(fn *LibraryFunction) error {
	if err := fn.validate(); err != nil {
		return err
	}
	l.funcs[fn.Name] = fn
	return nil
}

// Lookup finds the summary for a function name. A std:: qualifier is
// ignored so that std::memcpy finds memcpy.
func (l *Library) Lookup(name string) (*LibraryFunction, bool) {
	if l == nil {
		return nil, false
	}
	if fn, ok := l.funcs[name]; ok {
		return fn, true
	}
	fn, ok := l.funcs[strings.TrimPrefix(name, "std::")]
	return fn, ok
}

// Len returns the number of summaries.
func (l *Library) Len() int { return len(l.funcs) }

func (fn *LibraryFunction) validate() error {
	if fn.Name == "" {
		return fmt.Errorf("library function without a name")
	}
	switch fn.Returns {
	case "", ReturnNone, ReturnHeap, ReturnExternal:
	default:
		if _, ok := argIndex(fn.Returns); !ok {
			return fmt.Errorf("%s: invalid returns %q", fn.Name, fn.Returns)
		}
	}
	for _, eff := range fn.Effects {
		switch {
		case eff.Copy != nil:
			if _, ok := argIndex(eff.Copy.From); !ok {
				return fmt.Errorf("%s: invalid copy source %q", fn.Name, eff.Copy.From)
			}
			if _, ok := argIndex(eff.Copy.To); !ok && eff.Copy.To != "ret" {
				return fmt.Errorf("%s: invalid copy target %q", fn.Name, eff.Copy.To)
			}
		case eff.WriteExternal != nil:
			if _, ok := argIndex(eff.WriteExternal.To); !ok {
				return fmt.Errorf("%s: invalid write target %q", fn.Name, eff.WriteExternal.To)
			}
		default:
			return fmt.Errorf("%s: empty effect", fn.Name)
		}
	}
	return nil
}

// argIndex parses "argN".
func argIndex(s string) (int, bool) {
	if !strings.HasPrefix(s, "arg") {
		return 0, false
	}
	n, err := strconv.Atoi(s[3:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
