package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/chazu/pyrite/manifest"
	"github.com/chazu/pyrite/pkg/absint"
	"github.com/chazu/pyrite/pkg/compiler"
	"github.com/chazu/pyrite/pkg/dist"
	"github.com/chazu/pyrite/pkg/instrgraph"
	"github.com/chazu/pyrite/pkg/pycode"
)

// loadCode reads a CBOR code object from disk.
func loadCode(args []string) *pycode.Code {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Error: expected exactly one code object file")
		os.Exit(2)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
		os.Exit(1)
	}
	code, err := dist.UnmarshalCode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", args[0], err)
		os.Exit(1)
	}
	return code
}

// handleDisCommand processes `pyrite dis`.
func handleDisCommand(args []string) {
	code := loadCode(args)
	fmt.Print(code.Disassemble())
}

// analyze runs the abstract interpreter over a loaded code object.
func analyze(code *pycode.Code) *absint.Interpreter {
	ai, err := absint.New(code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := ai.Interpret(); err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
	return ai
}

// handleAnalyzeCommand processes `pyrite analyze`.
func handleAnalyzeCommand(args []string) {
	code := loadCode(args)
	ai := analyze(code)

	fmt.Printf("; %s: return value %s\n", code.Name, ai.ReturnValue())
	for _, in := range ai.Instructions() {
		if !ai.HasState(in.Index) {
			fmt.Printf("%4d  %-22s <unreached>\n", in.Index, in.Op)
			continue
		}
		fmt.Printf("%4d  %-22s stack:", in.Index, in.Op)
		for _, v := range ai.GetStackInfo(in.Index) {
			fmt.Printf(" %s<%s>", v.Value, v.Source.Describe())
		}
		fmt.Println()
	}

	fmt.Println("; locals before the last instruction")
	for i := 0; i < code.NLocals(); i++ {
		last := ai.Instructions()[len(ai.Instructions())-1]
		info := ai.GetLocalInfo(last.Index, i)
		state := "assigned"
		if info.MaybeUndefined {
			state = "maybe-undefined"
		}
		fmt.Printf(";   %s: %s (%s)\n", code.Varnames[i], info.ValueInfo.Value, state)
	}
}

// handleGraphCommand processes `pyrite graph`.
func handleGraphCommand(args []string) {
	code := loadCode(args)
	ai := analyze(code)
	g := instrgraph.Build(ai)
	if err := g.WriteDot(os.Stdout, code.Name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// handleCompileCommand processes `pyrite compile`.
func handleCompileCommand(args []string, m *manifest.Manifest) {
	code := loadCode(args)
	fn, err := compiler.Compile(code, compiler.Options{
		OpcodeBudget:    m.Compiler.OpcodeBudget,
		ILBudget:        m.Compiler.ILBudget,
		DisableUnboxing: !m.Compiler.Unboxing,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile failed: %v\n", err)
		os.Exit(1)
	}
	method := fn.Method

	fmt.Printf("; compiled %s (hash %s)\n", code.Name, code.Hash())
	fmt.Println("; symbols")
	names := make([]string, 0, len(method.Symbols))
	for name := range method.Symbols {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return method.Symbols[names[i]] < method.Symbols[names[j]]
	})
	for _, name := range names {
		fmt.Printf(";   %-12s -> %d\n", name, method.Symbols[name])
	}
	fmt.Println("; call sites (token, native, il)")
	for _, cs := range method.CallSites {
		fmt.Printf(";   %4d %6d %6d\n", cs.Token, cs.NativeOffset, cs.ILOffset)
	}
}
