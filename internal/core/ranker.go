package core

import (
	"fmt"
	"sort"

	"github.com/localchat/ragchat/internal/utils"
)

const DefaultTopK = 4

// Rank scores every chunk against the query vector by cosine similarity and
// returns the k best, highest first. Equal scores keep their document order.
// k <= 0 returns every chunk.
func Rank(chunks []Chunk, chunkVectors [][]float32, queryVector []float32, k int) ([]ScoredChunk, error) {
	if len(chunks) != len(chunkVectors) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(chunkVectors), len(chunks))
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	for i, chunk := range chunks {
		similarity, err := utils.CosineSimilarity(chunkVectors[i], queryVector)
		if err != nil {
			return nil, fmt.Errorf("scoring chunk %d: %w", chunk.Index, err)
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: similarity})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}
