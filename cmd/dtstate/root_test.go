package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlagParsingPreservesOperationOrder(t *testing.T) {
	ops = nil
	names = nil
	require.NoError(t, rootCmd.ParseFlags([]string{"--set", "a=1", "--get", "a", "--dump", "--get", "b"}))
	defer func() { ops = nil }()

	want := []op{
		{kind: opSet, arg: "a=1"},
		{kind: opGet, arg: "a"},
		{kind: opDump},
		{kind: opGet, arg: "b"},
	}
	require.Equal(t, want, ops)
}

func TestFlagParsingCollectsRepeatableNames(t *testing.T) {
	ops = nil
	names = nil
	require.NoError(t, rootCmd.ParseFlags([]string{"--name", "state", "--name", "eeprom"}))
	require.Equal(t, []string{"state", "eeprom"}, names)
}
