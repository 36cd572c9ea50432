package graph

import (
	"context"
	"sort"
	"strings"
)

// ComputeClusters finds connected components in the file-to-file graph
// induced by cross-file references.
//
// Algorithm:
//  1. Build an undirected adjacency list: file A and file B are adjacent when
//     a usage in A has a candidate declaration site in B.
//  2. Find connected components via BFS.
//  3. For each component with >= 2 files, compute its edge density as the
//     cohesion score.
func ComputeClusters(ctx context.Context, store GraphReader) ([]ClusterNode, error) {
	files, err := store.Files(ctx)
	if err != nil {
		return nil, err
	}
	adj, err := buildAdjacency(ctx, store, files)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool, len(files))
	var clusters []ClusterNode
	for _, f := range files {
		if visited[f.Path] {
			continue
		}
		component := bfsComponent(f.Path, adj, visited)
		if len(component) < 2 {
			continue
		}
		sort.Strings(component)
		clusters = append(clusters, ClusterNode{
			Name:          clusterName(component),
			CohesionScore: computeCohesion(component, adj),
			Members:       component,
		})
	}
	return clusters, nil
}

// buildAdjacency makes one pass over every file's references.
func buildAdjacency(ctx context.Context, store GraphReader, files []SourceFile) (map[string]map[string]bool, error) {
	adj := make(map[string]map[string]bool, len(files))
	for _, f := range files {
		adj[f.Path] = make(map[string]bool)
	}

	for _, f := range files {
		refs, err := store.ReferencesIn(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			for _, t := range r.Targets {
				for _, site := range t.Sites {
					if site.File == f.Path || adj[site.File] == nil {
						continue
					}
					adj[f.Path][site.File] = true
					adj[site.File][f.Path] = true
				}
			}
		}
	}
	return adj, nil
}

// bfsComponent performs BFS from start on the adjacency list and returns
// all reachable nodes. It marks visited nodes as it goes.
func bfsComponent(start string, adj map[string]map[string]bool, visited map[string]bool) []string {
	var component []string
	queue := []string{start}
	visited[start] = true

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		component = append(component, node)
		for neighbor := range adj[node] {
			if !visited[neighbor] {
				visited[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
	}

	return component
}

// computeCohesion is the edge density of a component: the file pairs that
// reference each other over all possible pairs. A star of files hanging off
// one shared header scores low, a set of mutually dependent files scores 1.
func computeCohesion(component []string, adj map[string]map[string]bool) float64 {
	n := len(component)
	if n < 2 {
		return 0
	}
	memberSet := make(map[string]bool, n)
	for _, m := range component {
		memberSet[m] = true
	}

	internalEdges := 0
	for _, m := range component {
		for neighbor := range adj[m] {
			// Count each undirected edge once.
			if memberSet[neighbor] && m < neighbor {
				internalEdges++
			}
		}
	}
	return float64(internalEdges) / float64(n*(n-1)/2)
}

// clusterName is the members' common directory, or the first member when
// they share none.
func clusterName(members []string) string {
	if prefix := longestCommonPrefix(members); prefix != "" {
		return prefix
	}
	return members[0]
}

// longestCommonPrefix finds the longest common path prefix among a set of
// file paths. Returns an empty string if no common prefix is found.
func longestCommonPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	if len(paths) == 1 {
		return paths[0]
	}

	prefix := paths[0]
	for _, p := range paths[1:] {
		for !strings.HasPrefix(p, prefix) {
			trimmed := strings.TrimRight(prefix, "/")
			idx := strings.LastIndex(trimmed, "/")
			if idx < 0 {
				return ""
			}
			prefix = trimmed[:idx+1]
		}
	}

	// Ensure prefix ends at a directory boundary.
	if !strings.HasSuffix(prefix, "/") {
		idx := strings.LastIndex(prefix, "/")
		if idx < 0 {
			return ""
		}
		prefix = prefix[:idx+1]
	}
	return prefix
}
