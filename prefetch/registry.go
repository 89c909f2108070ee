package prefetch

import "sort"

// ArtifactRegistry maps an operation to the materialized view that serves it.
// Operations without an entry are not prefetch candidates.
type ArtifactRegistry struct {
	byOperation map[OperationID]string
}

// NewArtifactRegistry copies mapping; later changes to mapping are not observed.
// Entries with an empty artifact name are dropped.
func NewArtifactRegistry(mapping map[OperationID]string) *ArtifactRegistry {
	r := &ArtifactRegistry{byOperation: make(map[OperationID]string, len(mapping))}
	for op, name := range mapping {
		if name != "" {
			r.byOperation[op] = name
		}
	}
	return r
}

// Lookup returns the artifact serving op.
func (r *ArtifactRegistry) Lookup(op OperationID) (string, bool) {
	name, ok := r.byOperation[op]
	return name, ok
}

// Artifacts returns the distinct artifact names, sorted.
func (r *ArtifactRegistry) Artifacts() []string {
	seen := make(map[string]bool, len(r.byOperation))
	names := make([]string, 0, len(r.byOperation))
	for _, name := range r.byOperation {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of mapped operations.
func (r *ArtifactRegistry) Len() int { return len(r.byOperation) }
