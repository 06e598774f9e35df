package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ccscript/pkg/linker"
)

const version = "ccc version 2.0 (Go)"

func printUsage() {
	fmt.Println(`Usage: ccc [options] [files] ...
Options:
   -o <file>             Dump compiled text into <file> at <address>
   -s,--start <adr>      Begin dumping at this address
   -e,--end <adr>        Do not write past this address
                           Addresses must be SNES offset, e.g., F00000
   -n,--no-reset         Do not use a 'reset' file to refresh ROM image
   --libs <path>         Look in <path> for all libraries
   --nostdlibs           Do not include the default standard libraries
   --summary <file>      Writes a compilation summary to <file>
                           Useful if you want to know where stuff went.
   --printAST            Prints the abstract syntax tree for each module
   --printRT             Prints the root symbol table for each module
   --printJumps          Prints the compiled addresses of all labels
   --printCode           Prints compiled code for each module
   -v                    Prints version number and exits

Example:

   ccc -o Earthbound.smc -s F20000 onett.ccs twoson.ccs threed.ccs

   This will compile onett.ccs, twoson.ccs, and threed.ccs together, and
   put the resulting compiled text at $F20000 in the ROM Earthbound.smc`)
}

type options struct {
	outFile     string
	outAdr      uint32
	endAdr      uint32
	summaryFile string
	libsPath    string
	files       []string
	noReset     bool
	noStdLibs   bool
	printAST    bool
	printRT     bool
	printJumps  bool
	printCode   bool
	verbose     bool
}

func parseArgs(args []string) (options, error) {
	opts := options{outAdr: 0xC00000}

	exe, err := os.Executable()
	if err == nil {
		opts.libsPath = filepath.Join(filepath.Dir(exe), "lib")
	} else {
		opts.libsPath = "lib"
	}

	needsValue := func(i int, flag string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("argument error: no value specified after %s", flag)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-o":
			v, err := needsValue(i, arg)
			if err != nil {
				return opts, err
			}
			opts.outFile = v
			i++
		case "-s", "--start":
			v, err := needsValue(i, arg)
			if err != nil {
				return opts, err
			}
			adr, err := strconv.ParseUint(v, 16, 32)
			if err != nil {
				return opts, fmt.Errorf("argument error: bad start address '%s'", v)
			}
			opts.outAdr = uint32(adr)
			i++
		case "-e", "--end":
			v, err := needsValue(i, arg)
			if err != nil {
				return opts, err
			}
			adr, err := strconv.ParseUint(v, 16, 32)
			if err != nil {
				return opts, fmt.Errorf("argument error: bad end address '%s'", v)
			}
			opts.endAdr = uint32(adr)
			i++
		case "--libs":
			v, err := needsValue(i, arg)
			if err != nil {
				return opts, err
			}
			opts.libsPath = v
			i++
		case "--summary", "--sum":
			v, err := needsValue(i, arg)
			if err != nil {
				return opts, err
			}
			opts.summaryFile = v
			i++
		case "-n", "--no-reset":
			opts.noReset = true
		case "--nostdlibs":
			opts.noStdLibs = true
		case "--printAST":
			opts.printAST = true
		case "--printRT":
			opts.printRT = true
		case "--printJumps":
			opts.printJumps = true
		case "--printCode":
			opts.printCode = true
		case "--verbose":
			opts.verbose = true
		default:
			opts.files = append(opts.files, arg)
		}
	}
	return opts, nil
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	for _, arg := range args {
		switch arg {
		case "-v":
			fmt.Println(version)
			return
		case "-h", "--help", "?":
			printUsage()
			return
		}
	}

	opts, err := parseArgs(args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	compiler := linker.New(opts.outFile, opts.outAdr, opts.endAdr)
	compiler.LibDir = opts.libsPath
	compiler.NoReset = opts.noReset
	compiler.NoStdLibs = opts.noStdLibs
	compiler.Verbose = opts.verbose

	for _, file := range opts.files {
		m := compiler.LoadModule(file)
		if m != nil && opts.printAST {
			fmt.Printf("Parse tree of %s\n", m.FileName())
			fmt.Println("=============================================")
			fmt.Println(m.Program())
		}
	}

	compiler.Compile()
	compiler.WriteOutput()
	compiler.Results()

	if opts.printRT || opts.printJumps || opts.printCode {
		for _, m := range compiler.Modules() {
			if opts.printRT {
				fmt.Printf("Root table -- %s\n", m.FileName())
				fmt.Println("=============================================")
				for _, name := range m.RootTable().Names() {
					fmt.Println(" ", name)
				}
				fmt.Println()
			}
			if opts.printJumps {
				fmt.Printf("Jump table -- '%s'\n", m.FileName())
				fmt.Println("=============================================")
				for _, a := range m.Labels() {
					fmt.Printf("%-25s%x\n", a.Name, a.Target)
				}
				fmt.Println()
			}
			if opts.printCode {
				fmt.Printf("Compiled code -- '%s'\n", m.FileName())
				fmt.Println("=============================================")
				fmt.Println(m.Output())
				fmt.Println()
			}
		}
	}

	if opts.summaryFile != "" {
		f, err := os.Create(opts.summaryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Couldn't open %s to write summary file.\n", opts.summaryFile)
			os.Exit(1)
		}
		compiler.WriteSummary(f)
		f.Close()
	}

	if compiler.Failed() {
		os.Exit(1)
	}
}
