package deps

import (
	"context"

	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
	"github.com/wheelhouse-dev/wheelhouse/pkg/pypi"
)

// Index is the package index surface the walker needs. *pypi.Client
// implements it.
type Index interface {
	FetchPackage(ctx context.Context, name string, refresh bool) (*pypi.Package, error)
}

// Walker resolves the transitive dependency graph of one requirement.
//
// Work is split into two job kinds processed by a bounded worker pool:
// resolve (parse a requirement line, evaluate its markers, query the index,
// pick a version) and expand (extract a resolved release's declared
// dependencies). A single collector goroutine owns all graph state, so nodes
// and edges are mutated without locks. The first error cancels the walk;
// there is no partial result.
type Walker struct {
	index     Index
	extractor *Extractor
	opts      Options
	env       *Environment
}

// NewWalker builds a walker over the given index and artifact store.
func NewWalker(index Index, store ArtifactStore, opts Options) *Walker {
	opts = opts.WithDefaults()
	env := opts.Environment
	if env == nil {
		env = DefaultEnvironment(opts.PythonVersion)
	}
	return &Walker{
		index:     index,
		extractor: NewExtractor(store),
		opts:      opts,
		env:       env,
	}
}

type jobKind int

const (
	jobResolve jobKind = iota
	jobExpand
)

type job struct {
	kind jobKind

	// resolve
	line   string
	scope  ExtrasScope // parent's active extras, for marker evaluation
	parent *DepNode    // nil for the root requirement

	// expand
	node      *DepNode
	release   *pypi.Release
	nodeScope ExtrasScope // extras active inside node's own metadata
}

type result struct {
	job job
	err error

	// resolve
	req      *Requirement
	version  string
	release  *pypi.Release
	hasSdist bool
	hasBdist bool
	skipped  bool // markers evaluated false

	// expand
	lines []string
}

type nodeKey struct {
	name, version, extra string
}

// Walk resolves the full dependency graph of one requirement line, e.g.
// "requests[socks]>=2.0", and returns its root node.
//
// The root node carries no extra of its own; extras named on the root
// requirement are activated for the root's metadata instead of spawning
// per-extra sibling roots. Interior requirements with extras resolve to one
// node per extra, shared across all parents that need it.
func (w *Walker) Walk(ctx context.Context, requirement string) (*DepNode, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &walkState{
		jobs:    make(chan job),
		results: make(chan result),
		nodes:   make(map[nodeKey]*DepNode),
	}
	for i := 0; i < w.opts.Workers; i++ {
		go w.worker(ctx, st)
	}

	pending := 1
	st.enqueue(ctx, job{kind: jobResolve, line: requirement, scope: ExtrasScope{Any: w.opts.IncludeExtras}})

	for pending > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-st.results:
			pending--
			if res.err != nil {
				return nil, res.err
			}
			switch res.job.kind {
			case jobResolve:
				pending += w.collectResolve(ctx, st, res)
			case jobExpand:
				pending += w.collectExpand(ctx, st, res)
			}
		}
	}
	// The root requirement's own markers can exclude it, leaving nothing
	// to walk. That is not a graph.
	if st.root == nil {
		return nil, errors.New(errors.ErrCodeExcludedByMarkers,
			"requirement %q does not apply to this environment", requirement)
	}
	return st.root, nil
}

// walkState is the per-walk channel pair and graph table. It makes a Walker
// reusable: concurrent Walk calls do not share state.
type walkState struct {
	jobs    chan job
	results chan result
	nodes   map[nodeKey]*DepNode
	root    *DepNode
}

// enqueue hands a job to the pool without blocking the collector. The
// spawned goroutine gives up if the walk is cancelled.
func (st *walkState) enqueue(ctx context.Context, j job) {
	go func() {
		select {
		case st.jobs <- j:
		case <-ctx.Done():
		}
	}()
}

// collectResolve records a resolved requirement in the graph and schedules
// expansion for any node seen for the first time. Returns the number of jobs
// scheduled. Runs on the collector goroutine only.
func (w *Walker) collectResolve(ctx context.Context, st *walkState, res result) int {
	if res.skipped {
		return 0
	}

	if res.job.parent == nil {
		node := &DepNode{
			Name:     res.req.Name,
			Version:  res.version,
			HasSdist: res.hasSdist,
			HasBdist: res.hasBdist,
		}
		st.nodes[nodeKey{node.Name, node.Version, ""}] = node
		st.root = node
		scope := ExtrasScope{Extras: res.req.Extras, Any: w.opts.IncludeExtras}
		st.enqueue(ctx, job{kind: jobExpand, node: node, release: res.release, nodeScope: scope})
		return 1
	}

	extras := res.req.Extras
	if len(extras) == 0 {
		extras = []string{""}
	}

	scheduled := 0
	for _, extra := range extras {
		key := nodeKey{res.req.Name, res.version, extra}
		node, ok := st.nodes[key]
		if !ok {
			node = &DepNode{
				Name:     res.req.Name,
				Version:  res.version,
				Extra:    extra,
				HasSdist: res.hasSdist,
				HasBdist: res.hasBdist,
			}
			st.nodes[key] = node
			scope := ExtrasScope{Any: w.opts.IncludeExtras}
			if extra != "" {
				scope.Extras = []string{extra}
			}
			st.enqueue(ctx, job{kind: jobExpand, node: node, release: res.release, nodeScope: scope})
			scheduled++
		}
		res.job.parent.Deps = append(res.job.parent.Deps, &DepEdge{
			Target:      node,
			Constraints: res.req.Specifiers.String(),
			Markers:     res.req.Markers,
		})
	}
	return scheduled
}

// collectExpand turns a node's extracted requirement lines into resolve jobs.
// Runs on the collector goroutine only.
func (w *Walker) collectExpand(ctx context.Context, st *walkState, res result) int {
	res.job.node.Done = true
	for _, line := range res.lines {
		st.enqueue(ctx, job{
			kind:   jobResolve,
			line:   line,
			scope:  res.job.nodeScope,
			parent: res.job.node,
		})
	}
	return len(res.lines)
}

func (w *Walker) worker(ctx context.Context, st *walkState) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-st.jobs:
			var res result
			switch j.kind {
			case jobResolve:
				res = w.resolve(ctx, j)
			case jobExpand:
				res = w.expand(ctx, j)
			}
			select {
			case st.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Walker) resolve(ctx context.Context, j job) result {
	res := result{job: j}

	req, err := ParseRequirement(j.line)
	if err != nil {
		res.err = err
		return res
	}
	res.req = req

	ok, err := EvaluateMarkers(req.Markers, w.env, j.scope)
	if err != nil {
		res.err = err
		return res
	}
	if !ok {
		w.opts.Logger("skip %s (markers)", req.Name)
		res.skipped = true
		return res
	}

	pkg, err := w.index.FetchPackage(ctx, req.Name, w.opts.Refresh)
	if err != nil {
		res.err = err
		return res
	}

	version, err := SelectVersion(pkg, req.Specifiers, w.opts.PythonVersion)
	if err != nil {
		res.err = err
		return res
	}
	res.version = version
	res.release = pkg.Releases[version]
	for _, f := range res.release.Files {
		switch f.FileType {
		case pypi.SDist:
			res.hasSdist = true
		case pypi.Wheel:
			res.hasBdist = true
		}
	}
	w.opts.Logger("resolved %s -> %s", req.Name, version)
	if w.opts.OnResolve != nil {
		w.opts.OnResolve(req.Name, version)
	}
	return res
}

func (w *Walker) expand(ctx context.Context, j job) result {
	res := result{job: j}
	lines, err := w.extractor.Requires(ctx, j.node.Name, j.release)
	if err != nil {
		res.err = err
		return res
	}
	res.lines = lines
	w.opts.Logger("expanded %s==%s (%d requirements)", j.node.Name, j.node.Version, len(lines))
	return res
}
