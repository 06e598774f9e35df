package linker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"ccscript/pkg/script"
)

// Compiler drives a whole compilation: it owns the ROM image, the loaded
// modules, the deferred ROM writes, and the error tally.
type Compiler struct {
	filename string
	rom      []byte

	hasHeader bool
	outAdr    uint32
	endAdr    uint32

	LibDir    string
	Verbose   bool
	NoReset   bool
	NoStdLibs bool

	modules      []*script.Module
	romWrites    []*script.RomAccess
	counters     *script.Counters
	resetRecords []resetRecord

	failed       bool
	errorCount   int
	warningCount int

	// Primary output bounds and bank-boundary waste, for the reset file
	// and the summary report.
	actualStart int64
	actualEnd   int64
	totalFrag   uint32
}

// New creates a compiler targeting the given ROM image and output range.
// The image is read fully into memory; endAdr of 0 means no limit.
func New(romfile string, outAdr, endAdr uint32) *Compiler {
	c := &Compiler{
		filename:    romfile,
		outAdr:      outAdr,
		endAdr:      endAdr,
		counters:    script.NewCounters(),
		actualStart: -1,
		actualEnd:   -1,
	}

	data, err := os.ReadFile(romfile)
	if err != nil {
		c.Error("failed to open file " + romfile + " for reading.")
		return c
	}
	c.rom = data
	c.hasHeader = len(data)&0x200 != 0

	if _, ok := c.MapVirtualAddress(outAdr); !ok {
		c.Error(fmt.Sprintf("bad virtual address for start: %x", outAdr))
		return c
	}
	if endAdr != 0 {
		if _, ok := c.MapVirtualAddress(endAdr); !ok {
			c.Error(fmt.Sprintf("bad virtual address for end: %x", endAdr))
			return c
		}
	}

	// The image must hold an integral number of banks (plus an optional
	// 512-byte copier header).
	if len(data)&0xFDFF != 0 {
		c.Error(fmt.Sprintf("%s has incorrect filesize: %d bytes", romfile, len(data)))
	}
	return c
}

// Error reports a compilation error and marks the compilation failed.
func (c *Compiler) Error(msg string) {
	fmt.Fprintln(os.Stderr, "error:", msg)
	c.errorCount++
	c.failed = true
}

// Warning reports a compilation warning.
func (c *Compiler) Warning(msg string) {
	fmt.Fprintln(os.Stderr, "warning:", msg)
	c.warningCount++
}

func (c *Compiler) Failed() bool { return c.failed }

// Counters implements script.Env.
func (c *Compiler) Counters() *script.Counters { return c.counters }

// Module returns the loaded module with the given name, or nil.
func (c *Compiler) Module(name string) *script.Module {
	for _, m := range c.modules {
		if m.Name() == name {
			return m
		}
	}
	return nil
}

// Modules returns every loaded module in load order.
func (c *Compiler) Modules() []*script.Module {
	return c.modules
}

// RegisterRomWrite implements script.Env: it queues a deferred write.
func (c *Compiler) RegisterRomWrite(w *script.RomAccess) {
	if c.failed {
		return
	}
	c.romWrites = append(c.romWrites, w)
}

// LoadModule loads, parses, and pre-typechecks one source file.
func (c *Compiler) LoadModule(filename string) *script.Module {
	m := script.NewModule(filename, c)
	if m.Failed() {
		c.failed = true
		return nil
	}
	if c.Module(m.Name()) != nil {
		c.Error("attempt to redefine module " + m.Name() + "; module names must be unique")
		return nil
	}
	c.modules = append(c.modules, m)
	return m
}

// FindModule searches for a module file and returns its path, or "".
// The directories checked are: the importing file's directory, the project
// working directory, and the compiler's library directory. Absolute paths
// skip the search.
func (c *Compiler) FindModule(name, filedir string) string {
	exists := func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}

	if filepath.IsAbs(name) {
		if exists(name) {
			return name
		}
		return ""
	}
	if p := filepath.Join(filedir, name); exists(p) {
		return p
	}
	if exists(name) {
		return name
	}
	if p := filepath.Join(c.LibDir, name); exists(p) {
		return p
	}
	return ""
}

func (c *Compiler) findAndLoadModule(name, filedir string) *script.Module {
	found := c.FindModule(name, filedir)
	if found == "" {
		return nil
	}
	return c.LoadModule(found)
}

// Compile runs the whole pipeline over the loaded modules.
func (c *Compiler) Compile() {
	if c.failed {
		return
	}
	if c.Verbose {
		fmt.Fprintln(os.Stderr, "Compiling modules...")
	}

	resetfile := c.filename + ".reset.txt"

	if !c.NoReset {
		c.applyResetInfo(resetfile)
	}

	if err := c.processImports(); err != nil {
		c.Error(err.Error())
		return
	}
	if err := c.evaluateModules(); err != nil {
		c.Error(err.Error())
		return
	}
	if err := c.assignModuleAddresses(); err != nil {
		c.Error(err.Error())
		return
	}
	if err := c.outputModules(); err != nil {
		c.Error(err.Error())
		return
	}

	if err := c.doDelayedWrites(); err != nil {
		c.Error(err.Error())
		return
	}

	// Each deferred write snapshotted the bytes it replaced, so the reset
	// file can be written after the writes have landed.
	if !c.failed && !c.NoReset {
		if err := c.writeResetInfo(resetfile); err != nil {
			c.Error(err.Error())
		}
	}
}

// processImports walks the import graph from the explicitly loaded modules,
// loading every imported module once. A module name may be imported from
// two places only when both resolve to the same file.
func (c *Compiler) processImports() error {
	remaining := make([]*script.Module, len(c.modules))
	copy(remaining, c.modules)

	for len(remaining) > 0 {
		m := remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]

		if !c.NoStdLibs {
			m.AddImport(filepath.Join(c.LibDir, "std.ccs"))
			m.AddImport(filepath.Join(c.LibDir, "stdarg.ccs"))
		}

		moduleDir := filepath.Dir(m.FileName())

		for _, imported := range m.Imports() {
			name := script.NameFromFilename(imported)
			imp := c.Module(name)

			if imp == nil {
				imp = c.findAndLoadModule(imported, moduleDir)
				if imp != nil {
					remaining = append(remaining, imp)
				}
			} else {
				// The name is taken; it is only acceptable if this
				// import resolves to the very same file.
				newPath := c.FindModule(imported, moduleDir)
				if !samePath(newPath, imp.FileName()) {
					return fmt.Errorf("attempted to import %s; module name collides with %s", newPath, imp.FileName())
				}
			}

			if imp == nil {
				return fmt.Errorf("couldn't find module '%s'", imported)
			}
			m.Include(imp)
		}
	}
	return nil
}

// samePath reports whether two paths refer to the same file.
func samePath(a, b string) bool {
	if a == b {
		return true
	}
	fa, err1 := os.Stat(a)
	fb, err2 := os.Stat(b)
	return err1 == nil && err2 == nil && os.SameFile(fa, fb)
}

// evaluateModules executes every module, producing its output buffer.
func (c *Compiler) evaluateModules() error {
	for _, m := range c.modules {
		if c.Verbose && !isStdModule(m) {
			fmt.Fprintf(os.Stderr, "Evaluating %s...\n", m.FileName())
		}
		m.Execute()
		if m.Failed() {
			c.failed = true
		}
		if m.CodeSize() > BankSize {
			return fmt.Errorf("module '%s' exceeds 64KB", m.Name())
		}
	}
	return nil
}

func isStdModule(m *script.Module) bool {
	name := m.Name()
	return len(name) >= 3 && name[:3] == "std"
}

// assignModuleAddresses packs modules into banks: repeatedly place the
// largest remaining module that fits before the next bank boundary, and
// advance to the next bank when none fits.
func (c *Compiler) assignModuleAddresses() error {
	if c.failed {
		return nil
	}

	sorted := make([]*script.Module, len(c.modules))
	copy(sorted, c.modules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CodeSize() > sorted[j].CodeSize()
	})

	base := c.outAdr
	c.totalFrag = 0

	for len(sorted) > 0 {
		found := false
		for i, m := range sorted {
			size := uint32(m.CodeSize())
			if (base&0xFFFF)+size > BankSize {
				continue
			}
			if c.endAdr > 0 && base+size >= c.endAdr {
				return fmt.Errorf("module %s exceeded specified end address -- aborting", m.Name())
			}

			if c.actualStart == -1 {
				c.actualStart = int64(base)
			}
			m.SetBaseAddress(base)
			base += size
			c.actualEnd = int64(base)

			sorted = append(sorted[:i], sorted[i+1:]...)
			found = true
			break
		}
		if !found {
			next := NextBank(base)
			if next == 0 {
				return fmt.Errorf("ran out of space writing module %s", sorted[0].Name())
			}
			c.totalFrag += next - base
			base = next
		}
	}
	return nil
}

// outputModules resolves references and writes each module into the image.
func (c *Compiler) outputModules() error {
	if c.failed {
		return nil
	}
	if c.Verbose {
		fmt.Fprintln(os.Stderr, "Writing output to ROM...")
	}

	for _, m := range c.modules {
		if err := m.ResolveReferences(); err != nil {
			return err
		}
		padr, ok := c.MapVirtualAddress(m.BaseAddress())
		if !ok {
			return fmt.Errorf("module has bad virtual address (%x), aborting", m.BaseAddress())
		}
		if err := m.WriteCode(c.rom, padr); err != nil {
			return err
		}
	}
	return nil
}

// doDelayedWrites resolves and applies every registered ROM write,
// snapshotting the bytes each write replaces for the reset file.
func (c *Compiler) doDelayedWrites() error {
	if c.failed {
		return nil
	}
	for _, w := range c.romWrites {
		if err := w.ResolveReferences(); err != nil {
			return err
		}
		padr, ok := c.MapVirtualAddress(w.VirtualAddress())
		if !ok {
			return fmt.Errorf("error in ROM write statement: bad virtual address: %x", w.VirtualAddress())
		}

		size := w.Value.Size()
		if padr+size > len(c.rom) {
			size = len(c.rom) - padr
		}
		prior := make([]byte, size)
		copy(prior, c.rom[padr:padr+size])
		c.resetRecords = append(c.resetRecords, resetRecord{vadr: w.VirtualAddress(), bytes: prior})

		if err := w.Apply(c.rom, padr); err != nil {
			return err
		}
	}
	return nil
}

// RomWrites returns the registered deferred writes, in registration order.
func (c *Compiler) RomWrites() []*script.RomAccess {
	return c.romWrites
}

// Rom exposes the in-memory image.
func (c *Compiler) Rom() []byte {
	return c.rom
}

// WriteOutput writes the patched image back to the ROM file.
func (c *Compiler) WriteOutput() {
	if c.failed {
		return
	}
	if err := os.WriteFile(c.filename, c.rom, 0644); err != nil {
		c.Error("failed to open file " + c.filename + " for writing.")
	}
}

// Results prints the final error and warning tally.
func (c *Compiler) Results() {
	if !c.Verbose && c.errorCount == 0 && c.warningCount == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\n%d error(s), %d warning(s)\n", c.errorCount, c.warningCount)
}
