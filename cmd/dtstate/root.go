// Command dtstate is a single-command CLI that opens one or more named
// state instances from the live device tree, runs get/set/dump operations
// against them in the order given on the command line, and saves any
// instance left dirty.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dtutils/state/internal/dtlog"
)

// opKind identifies one CLI-ordered operation.
type opKind int

const (
	opGet opKind = iota
	opSet
	opDump
	opDumpShell
)

type op struct {
	kind opKind
	arg  string
}

var (
	ops       []op
	names     []string
	skipHMAC  bool
	verbosity = dtlog.DefaultVerbosity
)

// orderedString is a pflag.Value that appends every Set() call to ops in
// encounter order, the way a single getopt_long loop would.
type orderedString struct{ kind opKind }

func (o orderedString) String() string { return "" }
func (o orderedString) Type() string   { return "string" }
func (o orderedString) Set(v string) error {
	ops = append(ops, op{kind: o.kind, arg: v})
	return nil
}

// orderedBool is the --dump/--dump-shell counterpart: a flag that takes no
// value but still records its CLI position in ops.
type orderedBool struct{ kind opKind }

func (o orderedBool) String() string { return "false" }
func (o orderedBool) Type() string   { return "bool" }
func (o orderedBool) IsBoolFlag() bool { return true }
func (o orderedBool) Set(v string) error {
	if v == "false" {
		return nil
	}
	ops = append(ops, op{kind: o.kind})
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "dtstate",
	Short: "Read and write typed, redundantly-stored device-tree state variables",
	Long: `dtstate opens one or more state instances described by the live
device tree, executes --get/--set/--dump/--dump-shell operations against
them in the order given, and writes back any instance that was modified.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().VarP(orderedString{kind: opGet}, "get", "g", "print the value of <var> (or <state>.<var>) and a newline")
	rootCmd.Flags().VarP(orderedString{kind: opSet}, "set", "s", "update <var>=<value> (or <state>.<var>=<value>)")
	rootCmd.Flags().VarP(stringSliceFlag{&names}, "name", "n", "select a state (repeatable; default: \"state\")")
	rootCmd.Flags().VarP(orderedBool{kind: opDump}, "dump", "d", "print KEY=VALUE lines, with state prefix when multiple states are named")
	rootCmd.Flags().Var(orderedBool{kind: opDumpShell}, "dump-shell", "print shell-sourceable STATE_VAR=\"VALUE\" lines")
	rootCmd.Flags().BoolVarP(new(bool), "verbose", "v", false, "increase verbosity")
	rootCmd.Flags().BoolVarP(new(bool), "quiet", "q", false, "decrease verbosity")
	rootCmd.Flags().BoolVarP(&skipHMAC, "force", "f", false, "skip HMAC verification on load")
	rootCmd.Flags().Lookup("verbose").NoOptDefVal = "true"
	rootCmd.Flags().Lookup("quiet").NoOptDefVal = "true"
	rootCmd.Flags().Lookup("dump").NoOptDefVal = "true"
	rootCmd.Flags().Lookup("dump-shell").NoOptDefVal = "true"

	rootCmd.Flags().SortFlags = false

	cobra.OnInitialize(func() {
		v, _ := rootCmd.Flags().GetBool("verbose")
		q, _ := rootCmd.Flags().GetBool("quiet")
		if v {
			verbosity = dtlog.LevelDebug
		}
		if q {
			verbosity = dtlog.LevelErr
		}
		dtlog.SetVerbosity(verbosity)
	})
}

// stringSliceFlag is a pflag.Value adapter for a repeatable plain string
// flag (used for --name, which doesn't participate in CLI op ordering).
type stringSliceFlag struct{ values *[]string }

func (s stringSliceFlag) String() string { return "" }
func (s stringSliceFlag) Type() string   { return "stringArray" }
func (s stringSliceFlag) Set(v string) error {
	*s.values = append(*s.values, v)
	return nil
}

func execute() int {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		return 1
	}
	return 0
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "dtstate: "+format+"\n", args...)
}
