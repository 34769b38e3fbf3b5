// Package dtree implements the in-memory device-tree model the state engine
// is built on: nodes with ordered children and unordered, untyped (byte
// string) properties, phandle and alias resolution, typed property
// accessors, and codecs for the two on-disk device-tree forms the core
// cares about — a flattened blob (FDT) and a sysfs-style directory tree.
//
// Node identity is a pointer; there is no separate handle table. Properties
// are big-endian on the wire (device-tree convention); callers that need
// little-endian payload bytes (the raw backend) convert explicitly at that
// boundary.
package dtree
