// Package vectorindex provides the vector index used for semantic search.
//
// Vectors are stored L2-normalised so cosine similarity is an inner product.
// The baseline is an exact flat scan. Once the live vector count passes a
// threshold, an inverted-file layer partitions vectors around k-means
// centroids and queries probe only the nearest partitions. Both modes share
// the driven.VectorIndex interface and the on-disk format.
//
// The index is single-writer, multi-reader: mutations take an exclusive
// lock and searches a shared one.
package vectorindex
