package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dtutils/state/pkg/dtree"
)

func TestSplitQualifiedSingleState(t *testing.T) {
	stateName, varName := splitQualified("network.hostname", "state", false)
	require.Equal(t, "state", stateName)
	require.Equal(t, "network.hostname", varName)
}

func TestSplitQualifiedMultiState(t *testing.T) {
	stateName, varName := splitQualified("eeprom.network.hostname", "state", true)
	require.Equal(t, "eeprom", stateName)
	require.Equal(t, "network.hostname", varName)
}

func TestSplitQualifiedMultiStateUnqualifiedFallsBackToDefault(t *testing.T) {
	stateName, varName := splitQualified("counter", "state", true)
	require.Equal(t, "state", stateName)
	require.Equal(t, "counter", varName)
}

func TestResolveStateNodeByAlias(t *testing.T) {
	root := dtree.NewNode("")
	aliases := dtree.NewNode("aliases")
	root.AttachChild(aliases)
	aliases.SetString("state", "/state")
	st := dtree.NewNode("state")
	root.AttachChild(st)

	tree := dtree.NewTree(root)
	n, err := resolveStateNode(tree, "state")
	require.NoError(t, err)
	require.Same(t, st, n)
}

func TestResolveStateNodeFallsBackToSlashPath(t *testing.T) {
	root := dtree.NewNode("")
	st := dtree.NewNode("state")
	root.AttachChild(st)

	tree := dtree.NewTree(root)
	n, err := resolveStateNode(tree, "state")
	require.NoError(t, err)
	require.Same(t, st, n)
}

func TestResolveStateNodeAbsolutePath(t *testing.T) {
	root := dtree.NewNode("")
	st := dtree.NewNode("custom")
	root.AttachChild(st)

	tree := dtree.NewTree(root)
	n, err := resolveStateNode(tree, "/custom")
	require.NoError(t, err)
	require.Same(t, st, n)
}

func TestResolveStateNodeNotFound(t *testing.T) {
	root := dtree.NewNode("")
	tree := dtree.NewTree(root)
	_, err := resolveStateNode(tree, "missing")
	require.Error(t, err, "expected not-found error")
}
