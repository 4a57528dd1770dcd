// Command pyrite is the developer tool around the compiler: it
// disassembles code objects, dumps analysis states and instruction
// graphs, and runs ahead-of-time compiles.
package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/xyproto/env/v2"

	"github.com/chazu/pyrite/manifest"
)

const usage = `pyrite - bytecode JIT compiler tools

Usage:
  pyrite dis <file>       Disassemble a CBOR code object
  pyrite analyze <file>   Dump per-opcode abstract interpreter states
  pyrite graph <file>     Dump the instruction graph in DOT form
  pyrite compile <file>   Compile and print symbol/call-site tables

Flags:
  -v, --verbose           Verbose logging (also PYRITE_DEBUG=1)
`

func main() {
	args := os.Args[1:]
	verbose := env.Bool("PYRITE_DEBUG")
	var rest []string
	for _, a := range args {
		if a == "-v" || a == "--verbose" {
			verbose = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading pyrite.toml: %v\n", err)
		os.Exit(1)
	}
	configureLogging(m, verbose)

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "dis":
		handleDisCommand(cmdArgs)
	case "analyze":
		handleAnalyzeCommand(cmdArgs)
	case "graph":
		handleGraphCommand(cmdArgs)
	case "compile":
		handleCompileCommand(cmdArgs, m)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func configureLogging(m *manifest.Manifest, verbose bool) {
	verbosity := 0
	switch m.Log.Level {
	case "debug":
		verbosity = 2
	case "info":
		verbosity = 1
	}
	if verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)
}
