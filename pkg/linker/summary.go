package linker

import (
	"fmt"
	"io"
)

const summaryRule = "================================================================="
const summaryLine = "-----------------------------------------------------------------"

// WriteSummary writes a human-readable report of where everything went:
// overall bounds, fragmentation, per-module addresses, and label locations.
func (c *Compiler) WriteSummary(w io.Writer) {
	fmt.Fprintln(w, c.filename)
	fmt.Fprintln(w, "CCScript Compilation Summary")
	fmt.Fprintln(w, "============================")
	fmt.Fprintln(w)

	if c.failed {
		fmt.Fprintln(w, "COMPILATION FAILED")
		return
	}

	fmt.Fprintln(w, "Compilation statistics")
	fmt.Fprintln(w, summaryRule)
	fmt.Fprintf(w, "Compilation start:           $%x\n", c.actualStart)
	fmt.Fprintf(w, "Compilation end:             $%x\n", c.actualEnd)
	fmt.Fprintf(w, "Total compiled size:         %d bytes\n", c.actualEnd-c.actualStart)
	fmt.Fprintf(w, "Fragmented space:            %d bytes\n", c.totalFrag)
	fmt.Fprintln(w, summaryLine)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Module information")
	fmt.Fprintln(w, summaryRule)
	fmt.Fprintln(w, "Name                         Address     Size")
	fmt.Fprintln(w, summaryLine)
	for _, m := range c.modules {
		fmt.Fprintf(w, "%-29s$%-12x%-6d bytes\n", m.Name(), m.BaseAddress(), m.CodeSize())
	}
	fmt.Fprintln(w, summaryLine)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Label locations")
	fmt.Fprintln(w, summaryRule)
	fmt.Fprintln(w)
	for _, m := range c.modules {
		fmt.Fprintf(w, "Labels in module %s\n", m.Name())
		fmt.Fprintln(w, "Name                         Address")
		fmt.Fprintln(w, summaryLine)
		for _, a := range m.Labels() {
			// Skip synthesized internal labels; their names start with
			// a counter digit.
			if a.Name == "" || !isAlpha(a.Name[0]) {
				continue
			}
			fmt.Fprintf(w, "%-28s $%x\n", a.Name, a.Target)
		}
		fmt.Fprintln(w, summaryLine)
		fmt.Fprintln(w)
	}
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
