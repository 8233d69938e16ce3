package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"shoptalk/internal/logging"
	"shoptalk/internal/payload"
	"shoptalk/internal/store"
)

// RawEngine interprets the generated Go payload directly with yaegi instead
// of compiling it. Only the bound capability and store symbols plus a
// whitelisted stdlib subset are importable.
//
// This is a name-visibility restriction, not an isolation mechanism: the
// interpreter still runs with the ambient capabilities of this process, and
// mutations performed before an unhandled fault are NOT rolled back. Callers
// that need genuine isolation or atomicity use the plan engine.
type RawEngine struct {
	allowedPackages map[string]bool

	// stdlibSymbols is stdlib.Symbols filtered to allowedPackages. Only
	// these are handed to the interpreter, so even an import that slips
	// past validation resolves to nothing.
	stdlibSymbols interp.Exports
}

// NewRawEngine creates a yaegi-backed engine.
func NewRawEngine() *RawEngine {
	e := &RawEngine{
		allowedPackages: map[string]bool{
			"shop/shop": true,

			// Safe stdlib packages
			"fmt":           true,
			"strings":       true,
			"strconv":       true,
			"math":          true,
			"sort":          true,
			"time":          true,
			"encoding/json": true,

			// EXPLICITLY BLOCKED (unsafe packages):
			// "os" - filesystem access
			// "os/exec" - command execution
			// "net", "net/http" - network access
			// "syscall", "unsafe" - system calls, raw memory
		},
	}
	e.stdlibSymbols = e.restrictSymbols(stdlib.Symbols)
	return e
}

// restrictSymbols keeps only the symbol maps whose import path is on the
// whitelist. Symbol map keys have the form "<import path>/<package name>".
func (e *RawEngine) restrictSymbols(all interp.Exports) interp.Exports {
	out := interp.Exports{}
	for key, symbols := range all {
		path := key
		if i := strings.LastIndex(key, "/"); i >= 0 {
			path = key[:i]
		}
		if e.allowedPackages[path] {
			out[key] = symbols
		}
	}
	return out
}

// Execute runs the payload exactly once, synchronously, to completion or to
// the first unhandled fault. Emitted output is captured into a buffer and
// returned, never streamed. Faults are absorbed into ErrorText.
func (e *RawEngine) Execute(ctx context.Context, p payload.Payload, caps Capabilities, stores Stores) *Result {
	timer := logging.StartTimer(logging.CategoryEngine, "RawEngine.Execute")
	defer timer.Stop()

	out := &Output{}
	buf := &captureBuffer{}
	res := &Result{Payload: p.Text, Out: out}

	defer func() {
		// buf is mutex-guarded: a payload that outlives its deadline keeps
		// writing after Execute returns.
		res.CapturedOutput = buf.String()
		if snap, err := stores.Session.Snapshot(); err == nil {
			res.PostState = snap
		} else {
			logging.EngineError("post-state snapshot failed: %v", err)
		}
	}()

	wrapped := e.wrapCode(p.Text)
	if err := e.validateImports(wrapped); err != nil {
		res.ErrorText = err.Error()
		return res
	}

	i := interp.New(interp.Options{Stdout: buf, Stderr: buf})
	if err := i.Use(e.stdlibSymbols); err != nil {
		res.ErrorText = fmt.Sprintf("failed to load stdlib: %v", err)
		return res
	}
	if err := i.Use(e.exports(caps, stores, out)); err != nil {
		res.ErrorText = fmt.Sprintf("failed to bind scopes: %v", err)
		return res
	}

	if _, err := i.Eval(wrapped); err != nil {
		res.ErrorText = err.Error()
		logging.EngineError("payload evaluation failed: %v", err)
		return res
	}

	run, err := i.Eval("main.Run")
	if err != nil {
		res.ErrorText = "payload does not define func Run()"
		return res
	}
	runFunc, ok := run.Interface().(func())
	if !ok {
		res.ErrorText = "Run has incorrect signature (expected: func())"
		return res
	}

	// The goroutine lets a context deadline bound a runaway payload. The
	// interpreted code itself has no cancellation point: on timeout it keeps
	// running detached, which is why the watchdog is an external bound and
	// not a safety guarantee.
	done := make(chan struct{})
	errChan := make(chan error, 1)
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("payload fault: %v", r)
			}
		}()
		runFunc()
	}()

	select {
	case <-done:
		select {
		case err := <-errChan:
			res.ErrorText = err.Error()
			logging.EngineError("payload fault: %v", err)
		default:
		}
	case <-ctx.Done():
		res.ErrorText = fmt.Sprintf("payload execution timed out: %v", ctx.Err())
		logging.EngineError("payload timed out: %v", ctx.Err())
	}

	return res
}

// exports builds the shop package visible to the payload: the capability
// scope, the three store handles and the declared output slots. No other
// name is placed in scope.
func (e *RawEngine) exports(caps Capabilities, stores Stores, out *Output) interp.Exports {
	return interp.Exports{
		"shop/shop": {
			// Capability scope
			"Query":          reflect.ValueOf(caps.Query),
			"CurrentBalance": reflect.ValueOf(caps.CurrentBalance),
			"NextID":         reflect.ValueOf(caps.NextID),
			"Request":        reflect.ValueOf(caps.Request),

			// Store scope
			"DB":     reflect.ValueOf(stores.Session),
			"Items":  reflect.ValueOf(stores.Items),
			"Ledger": reflect.ValueOf(stores.Ledger),

			// Declared output slots
			"Out": reflect.ValueOf(out),

			// Types the payload may reference
			"Item":        reflect.ValueOf((*store.Item)(nil)),
			"Transaction": reflect.ValueOf((*store.Transaction)(nil)),
			"Predicate":   reflect.ValueOf((*store.Predicate)(nil)),
		},
	}
}

// validateImports parses the assembled source and checks every import
// against the whitelist. Text scanning is not enough here: Go import
// declarations come in too many shapes for prefix matching.
func (e *RawEngine) validateImports(code string) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "payload.go", code, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("payload does not parse: %v", err)
	}

	var forbidden []string
	for _, spec := range f.Imports {
		pkg, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return fmt.Errorf("bad import path %s: %v", spec.Path.Value, err)
		}
		if !e.allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports detected: %v", forbidden)
	}
	return nil
}

// captureBuffer is the interpreter's Stdout/Stderr sink. A timed-out payload
// runs on detached after Execute returns, so both sides are locked.
type captureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *captureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// wrapCode wraps a bare payload in a main package with the shop binding
// imported. A payload that already declares its package is used as-is. The
// payload's own imports are hoisted above the injected var so the assembled
// file stays legal Go.
func (e *RawEngine) wrapCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	imports, body := splitImports(code)
	var b strings.Builder
	b.WriteString("package main\n\nimport shop \"shop/shop\"\n")
	for _, imp := range imports {
		b.WriteString(imp)
		b.WriteString("\n")
	}
	// The blank var keeps the injected import legal for payloads that never
	// touch the shop bindings.
	b.WriteString("\nvar _ = shop.Request\n\n")
	b.WriteString(body)
	b.WriteString("\n")
	return b.String()
}

// splitImports separates leading import declarations from the rest of a bare
// payload. Each returned import is a complete single-line spec.
func splitImports(code string) (imports []string, body string) {
	lines := strings.Split(code, "\n")
	var rest []string
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlock:
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
				continue
			}
			if trimmed != "" {
				imports = append(imports, "import "+trimmed)
			}
		case strings.HasPrefix(trimmed, "import ("):
			// One-line parenthesized form: import ("a"; "b")
			if end := strings.Index(trimmed, ")"); end >= 0 {
				for _, spec := range strings.Split(trimmed[len("import ("):end], ";") {
					if spec = strings.TrimSpace(spec); spec != "" {
						imports = append(imports, "import "+spec)
					}
				}
				continue
			}
			inBlock = true
		case strings.HasPrefix(trimmed, "import "):
			imports = append(imports, trimmed)
		default:
			rest = append(rest, line)
		}
	}
	return imports, strings.Join(rest, "\n")
}
