// Package deps resolves the transitive dependency graph of a PyPI package
// without installing anything.
//
// The walker starts from one requirement string, picks the newest release
// satisfying the local constraints, extracts that release's declared
// dependencies from its distribution artifacts, and repeats breadth-first.
// Environment markers decide which conditional edges are traversed.
//
// This is not a dependency solver: there is no backtracking and no notion of
// "already chosen elsewhere". Each node picks the newest version satisfying
// its own constraints at the moment it is visited, so two subtrees
// constraining the same package differently can resolve to two different
// versions - and therefore two separate nodes.
package deps

import "time"

const (
	// DefaultPythonVersion is the runtime targeted when none is given.
	DefaultPythonVersion = "3.7.5"

	// DefaultWorkers bounds the pool doing index lookups and metadata fetches.
	DefaultWorkers = 10

	// DefaultCacheTTL is the default index response cache duration.
	DefaultCacheTTL = 24 * time.Hour
)

// Options configures a dependency walk.
type Options struct {
	PythonVersion string               // Target runtime, two or three components (default: 3.7.5)
	IncludeExtras bool                 // Traverse extra-gated dependencies regardless of activation
	Refresh       bool                 // Bypass the index response cache
	Workers       int                  // Worker pool size (default: 10)
	Environment   *Environment         // Marker environment override (default: derived from PythonVersion)
	Logger        func(string, ...any) // Progress/debug callback (optional)

	// OnResolve is called after each successful version selection. It runs
	// on worker goroutines, so implementations must be safe for concurrent
	// use. Optional.
	OnResolve func(name, version string)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.PythonVersion == "" {
		opts.PythonVersion = DefaultPythonVersion
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}

// DepNode is one resolved (package, version, extra) triple in the graph.
//
// Nodes are shared: a triple required from several parents resolves to one
// node referenced by several edges. The walker owns all nodes for its
// lifetime through an identity-keyed table; cycles across extras are broken
// by the Done flag, which guarantees a node's dependencies are fetched at
// most once.
type DepNode struct {
	Name     string
	Version  string
	Extra    string // active extra this node was resolved under ("" for none)
	HasSdist bool   // release publishes a source distribution
	HasBdist bool   // release publishes at least one wheel
	Deps     []*DepEdge
	Done     bool // dependencies have been fetched and recorded
}

// Key returns the identity triple of the node.
func (n *DepNode) Key() (name, version, extra string) {
	return n.Name, n.Version, n.Extra
}

// Label renders the node for display, e.g. "requests[socks]==2.28.1".
func (n *DepNode) Label() string {
	extra := ""
	if n.Extra != "" {
		extra = "[" + n.Extra + "]"
	}
	return n.Name + extra + "==" + n.Version
}

// DepEdge links a node to one of its dependencies. The constraint text is
// per-edge (two parents can require the same target differently); the target
// node is shared.
type DepEdge struct {
	Target      *DepNode
	Constraints string // human-readable specifier rendering ("" for any)
	Markers     string // raw marker expression including the leading ";" ("" for none)
}
