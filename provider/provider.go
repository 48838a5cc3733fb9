// Package provider defines the capability contracts for the external
// collaborators a RAG pipeline depends on: an embedding provider, a vector
// index, and a text-generation provider. Concrete integrations live outside
// this module; the resilience layer only ever sees these interfaces.
package provider

import "context"

// Document is a unit of indexed content.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// ScoredDocument is a search hit with its similarity score.
type ScoredDocument struct {
	Document Document
	Score    float64
}

// GenerateOptions tunes a single generation call. A nil *GenerateOptions
// means provider defaults.
type GenerateOptions struct {
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

// Embedder turns text into vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed returns one vector per input text, positionally aligned.
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex stores and searches embedded documents.
type VectorIndex interface {
	// Store indexes a single document under its vector.
	Store(ctx context.Context, doc Document, vector []float32) error

	// BatchStore indexes docs[i] under vectors[i]. Implementations must
	// reject mismatched lengths.
	BatchStore(ctx context.Context, docs []Document, vectors [][]float32) error

	// Search returns up to limit documents nearest to vector, optionally
	// restricted to documents whose metadata matches every filter entry.
	// A nil filter means no restriction.
	Search(ctx context.Context, vector []float32, limit int, filter map[string]string) ([]ScoredDocument, error)

	// Delete removes the document with the given ID.
	Delete(ctx context.Context, id string) error

	// Clear removes every document from the index.
	Clear(ctx context.Context) error
}

// Generator produces text from a prompt.
type Generator interface {
	// Generate returns the completion for prompt. opts may be nil.
	Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error)
}
