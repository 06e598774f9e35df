package script

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ccscript/pkg/code"
)

// Env is what a module needs from the compilation driving it: somewhere to
// send diagnostics, the registry of sibling modules, the deferred-write
// list, and the compilation's counter store.
type Env interface {
	Error(msg string)
	Warning(msg string)
	Module(name string) *Module
	RegisterRomWrite(w *RomAccess)
	Counters() *Counters
}

var validModuleName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Module owns one parsed source file: its AST, its root symbol table, the
// import table sitting above the root, its emitted code, and its base
// virtual address once layout has run.
type Module struct {
	filename string
	name     string
	env      Env

	program     *Program
	roottable   *SymbolTable
	importtable *SymbolTable
	out         *code.Buffer

	baseAddress  uint32
	labelCounter int
	failed       bool
}

// NewModule loads, parses, and pre-typechecks a source file.
func NewModule(filename string, env Env) *Module {
	m := &Module{filename: filename, env: env}
	data, err := os.ReadFile(filename)
	if err != nil {
		env.Error("couldn't open " + filename)
		m.failed = true
		return m
	}
	m.load(string(data))
	return m
}

// NewModuleSource builds a module from in-memory source text.
func NewModuleSource(filename, src string, env Env) *Module {
	m := &Module{filename: filename, env: env}
	m.load(src)
	return m
}

func (m *Module) load(src string) {
	m.name = NameFromFilename(m.filename)
	if !validModuleName.MatchString(m.name) {
		m.env.Error(fmt.Sprintf("module name '%s' invalid. Module names can only contain alphanumeric characters and underscores.", m.name))
		m.failed = true
		return
	}

	m.roottable = NewSymbolTable(nil)
	m.program = NewParser(src, m).Parse()
	if m.failed {
		return
	}

	// Build the root table: constants, commands, and root-level labels.
	ck := &checker{err: m, counters: m.Counters()}
	ck.check(m.program, m.roottable, true)
	if m.failed {
		return
	}

	// The import table sits between this module's root and nothing;
	// included modules merge into it.
	m.importtable = NewSymbolTable(nil)
	m.roottable.SetParent(m.importtable)

	m.out = code.NewBuffer()
}

// NameFromFilename derives a module name: the basename up to the first dot.
func NameFromFilename(filename string) string {
	base := filepath.Base(filename)
	if i := strings.IndexByte(base, '.'); i != -1 {
		base = base[:i]
	}
	return base
}

func (m *Module) Name() string     { return m.name }
func (m *Module) FileName() string { return m.filename }
func (m *Module) Failed() bool     { return m.failed }

func (m *Module) RootTable() *SymbolTable { return m.roottable }
func (m *Module) Program() *Program      { return m.program }
func (m *Module) Output() *code.Buffer   { return m.out }

// Error implements ErrorReceiver, prefixing the source location and
// marking the module failed.
func (m *Module) Error(msg string, line int) {
	m.env.Error(fmt.Sprintf("%s, line %d: %s", m.filename, line, msg))
	m.failed = true
}

// Warning implements ErrorReceiver.
func (m *Module) Warning(msg string, line int) {
	m.env.Warning(fmt.Sprintf("%s, line %d: warning: %s", m.filename, line, msg))
}

// Counters returns the compilation-wide counter store.
func (m *Module) Counters() *Counters {
	return m.env.Counters()
}

// Sibling returns another loaded module by name, for qualified lookups.
func (m *Module) Sibling(name string) *Module {
	return m.env.Module(name)
}

// RegisterRomWrite forwards a deferred write to the compilation.
func (m *Module) RegisterRomWrite(w *RomAccess) {
	m.env.RegisterRomWrite(w)
}

// UniqueLabelName returns a fresh name for synthesized internal anchors.
func (m *Module) UniqueLabelName() string {
	name := strconv.Itoa(m.labelCounter)
	m.labelCounter++
	return name
}

// AddImport prepends an import if it is not already listed.
func (m *Module) AddImport(name string) {
	for _, imp := range m.program.Imports {
		if imp == name {
			return
		}
	}
	m.program.Imports = append([]string{name}, m.program.Imports...)
}

// Imports returns the module's import list (filenames).
func (m *Module) Imports() []string {
	return m.program.Imports
}

// Include merges another module's root table into this module's import
// table. Names defined by more than one include become AmbiguousID entries
// listing every importing module that defined them.
func (m *Module) Include(other *Module) {
	var collisions []string
	m.importtable.Merge(other.roottable, &collisions)

	for _, name := range collisions {
		existing := m.importtable.Get(name)
		if ambig, ok := macroAmbiguous(existing); ok {
			ambig.Modules = append(ambig.Modules, other.Name())
			continue
		}
		ambig := &AmbiguousID{ID: name, Modules: m.importsDefining(name)}
		m.importtable.Define(name, MacroValue(ambig))
	}
}

func macroAmbiguous(v Value) (*AmbiguousID, bool) {
	if v.Type() != TypeMacro {
		return nil, false
	}
	a, ok := v.Node().(*AmbiguousID)
	return a, ok
}

// importsDefining scans this module's imports for those whose root tables
// define the given name.
func (m *Module) importsDefining(id string) []string {
	var result []string
	for _, imp := range m.program.Imports {
		mod := m.env.Module(NameFromFilename(imp))
		if mod == nil {
			continue
		}
		if !mod.roottable.Get(id).IsUndefined() || mod.roottable.GetAnchor(id) != nil {
			result = append(result, mod.Name())
		}
	}
	return result
}

// Execute evaluates the program, producing the module's output buffer.
func (m *Module) Execute() {
	if m.failed {
		m.env.Error("There were compilation errors. Cannot execute module.")
		return
	}
	ctx := &EvalContext{Module: m, Labels: m.roottable, Output: m.out}
	runProgram(m.program, m.roottable, ctx)
}

// CodeSize is the compiled size of the module's output; only meaningful
// after Execute.
func (m *Module) CodeSize() int {
	return m.out.Size()
}

// SetBaseAddress assigns the module's base virtual address, giving every
// label and in-code anchor its absolute target.
func (m *Module) SetBaseAddress(adr uint32) {
	m.baseAddress = adr
	m.roottable.AddBaseAddress(adr)
	m.out.SetBaseAddress(adr)
}

func (m *Module) BaseAddress() uint32 {
	return m.baseAddress
}

// ResolveReferences patches every pending reference in the output buffer.
func (m *Module) ResolveReferences() error {
	return m.out.ResolveReferences()
}

// WriteCode copies the module's output into the ROM image at the given
// physical offset.
func (m *Module) WriteCode(image []byte, location int) error {
	if err := m.out.WriteTo(image, location); err != nil {
		return fmt.Errorf("attempt to write past end of ROM")
	}
	return nil
}

// Labels returns the module's named labels sorted by name, for the
// summary report.
func (m *Module) Labels() []*code.Anchor {
	anchors := m.roottable.Anchors()
	names := make([]string, 0, len(anchors))
	for name := range anchors {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*code.Anchor, 0, len(names))
	for _, name := range names {
		out = append(out, anchors[name])
	}
	return out
}
