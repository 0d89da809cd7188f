package face

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/coder/hnsw"

	"github.com/barrulus/clepho/internal/store"
)

// hnswMaxNeighbors (M) mirrors the teacher's database.HNSWMaxNeighbors
// constant (internal/database/constants.go); Ml is set to 1/M from it.
const hnswMaxNeighbors = 16

// ClusterEngine groups unassigned faces into FaceCluster rows using an
// HNSW approximate-nearest-neighbor graph plus connected-component
// extraction at a cosine-distance threshold, the clustering algorithm
// named but left unspecified by §3's FaceCluster ("produced by a
// clustering pass"). Grounded on the teacher's HNSWIndex
// (internal/database/hnsw_index.go) for graph construction/search, and on
// DuplicateEngine's perceptual pass (internal/dup) for the connected-
// component extraction shape.
type ClusterEngine struct {
	store store.FaceStore
}

// New returns a ClusterEngine over st.
func New(st store.FaceStore) *ClusterEngine {
	return &ClusterEngine{store: st}
}

// Cluster rebuilds face_clusters from scratch: it loads every unassigned
// face, builds a cosine-distance HNSW graph over their embeddings, and
// extracts connected components at maxDistance, each becoming a new
// FaceCluster. Faces already linked to a Person (§3: FaceStore.LinkFaceToPerson)
// are excluded, since a cluster only proposes groupings a user hasn't
// already resolved.
func (e *ClusterEngine) Cluster(ctx context.Context, maxDistance float64) ([]store.FaceCluster, error) {
	if err := e.store.DeleteFaceClusters(ctx); err != nil {
		return nil, fmt.Errorf("face: clear old clusters: %w", err)
	}

	faces, err := e.store.ListUnassignedFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("face: list unassigned faces: %w", err)
	}

	var withEmbedding []store.Face
	for _, f := range faces {
		if len(f.Embedding) > 0 {
			withEmbedding = append(withEmbedding, f)
		}
	}
	if len(withEmbedding) == 0 {
		return nil, nil
	}

	graph := hnsw.NewGraph[int64]()
	graph.M = hnswMaxNeighbors
	graph.Ml = 1.0 / float64(hnswMaxNeighbors)
	graph.Distance = hnsw.CosineDistance

	byID := make(map[int64]store.Face, len(withEmbedding))
	for _, f := range withEmbedding {
		vec := decodeEmbedding(f.Embedding)
		graph.Add(hnsw.MakeNode(f.ID, vec))
		byID[f.ID] = f
	}

	adjacency := make(map[int64][]int64, len(withEmbedding))
	for _, f := range withEmbedding {
		vec := decodeEmbedding(f.Embedding)
		neighbors := graph.Search(vec, hnswMaxNeighbors)
		for _, n := range neighbors {
			if n.Key == f.ID {
				continue
			}
			if cosineDistance(vec, n.Value) <= maxDistance {
				adjacency[f.ID] = append(adjacency[f.ID], n.Key)
				adjacency[n.Key] = append(adjacency[n.Key], f.ID)
			}
		}
	}

	visited := make(map[int64]bool, len(withEmbedding))
	var clusters []store.FaceCluster
	for _, f := range withEmbedding {
		if visited[f.ID] {
			continue
		}
		component := bfsComponent(f.ID, adjacency, visited)
		if len(component) < 2 {
			continue
		}
		id, err := e.store.CreateFaceCluster(ctx, component)
		if err != nil {
			return nil, fmt.Errorf("face: persist cluster: %w", err)
		}
		clusters = append(clusters, store.FaceCluster{ID: id, FaceIDs: component})
	}

	return clusters, nil
}

func bfsComponent(start int64, adjacency map[int64][]int64, visited map[int64]bool) []int64 {
	queue := []int64{start}
	visited[start] = true
	var component []int64
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		component = append(component, cur)
		for _, next := range adjacency[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return component
}

// decodeEmbedding converts an opaque store.Face.Embedding blob (written by
// the same little-endian float32 packing llm.EncodeVector uses) back into
// the float32 slice the HNSW graph and cosine distance operate on.
func decodeEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineDistance mirrors the teacher's database.CosineDistance
// (internal/database/cosine.go): 0 = identical, 2 = opposite.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return 1 - sim
}
