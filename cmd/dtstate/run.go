package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dtutils/state/internal/dterr"
	"github.com/dtutils/state/internal/lock"
	"github.com/dtutils/state/pkg/dtree"
)

func run() error {
	l, err := lock.Acquire(lock.DefaultPath)
	if err != nil {
		return err
	}
	defer l.Close()

	effectiveNames := names
	if len(effectiveNames) == 0 {
		effectiveNames = []string{"state"}
	}

	tree, err := dtree.LoadSystem()
	if err != nil {
		return err
	}

	opened := make(map[string]*openedState, len(effectiveNames))
	var order []string
	for _, name := range effectiveNames {
		st, err := openState(tree, name)
		if err != nil {
			return err
		}
		opened[name] = st
		order = append(order, name)
	}

	multi := len(order) > 1
	for _, o := range ops {
		if err := runOp(o, opened, order, multi); err != nil {
			return err
		}
	}

	for _, name := range order {
		st := opened[name]
		if !st.inst.Dirty {
			continue
		}
		if err := st.be.Save(st.inst); err != nil {
			return dterr.Wrap(dterr.IOError, err, "%s: saving state", name)
		}
	}

	return nil
}

func runOp(o op, opened map[string]*openedState, order []string, multi bool) error {
	switch o.kind {
	case opGet:
		stateName, varName := splitQualified(o.arg, order[0], multi)
		st, ok := opened[stateName]
		if !ok {
			return dterr.New(dterr.NotFound, "no such state %q", stateName)
		}
		val, err := st.inst.Get(varName)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, val)
		return nil
	case opSet:
		qualified, value, ok := strings.Cut(o.arg, "=")
		if !ok {
			return dterr.New(dterr.InvalidArgument, "usage: -s var=val")
		}
		stateName, varName := splitQualified(qualified, order[0], multi)
		st, ok := opened[stateName]
		if !ok {
			return dterr.New(dterr.NotFound, "no such state %q", stateName)
		}
		return st.inst.Set(varName, value)
	case opDump:
		for _, name := range order {
			lines, err := opened[name].inst.Dump(multi, false)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(os.Stdout, l)
			}
		}
		return nil
	case opDumpShell:
		for _, name := range order {
			lines, err := opened[name].inst.Dump(multi, true)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(os.Stdout, l)
			}
		}
		return nil
	}
	return nil
}

// splitQualified splits "<state>.<var>" into its parts. Qualification is
// only recognized when multiple states were named on the command line;
// with a single state, arg is always the (possibly itself dotted) var name
// and defaultState is implied, per §4.8.
func splitQualified(arg, defaultState string, multi bool) (stateName, varName string) {
	if !multi {
		return defaultState, arg
	}
	if state, v, ok := strings.Cut(arg, "."); ok {
		return state, v
	}
	return defaultState, arg
}
