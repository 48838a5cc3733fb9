package resilience

import "fmt"

// Error codes carried by the typed operation errors. These form a public
// contract — callers and log pipelines match on these stable strings. Do not
// rename or remove existing codes.
const (
	CodeEmbeddingFailed   = "RAG_EMBEDDING_FAILED"
	CodeVectorStoreFailed = "RAG_VECTOR_STORE_FAILED"
	CodeGenerationFailed  = "RAG_GENERATION_FAILED"
	CodeProcessingFailed  = "RAG_PROCESSING_FAILED"
	CodeExecutionFailed   = "RAG_EXECUTION_FAILED"
)

// EmbeddingError reports that an embedding operation failed after fallback
// exhaustion. Cause is the original primary error.
type EmbeddingError struct {
	Op    string
	Cause error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s: embedding operation %q: %v", CodeEmbeddingFailed, e.Op, e.Cause)
}

func (e *EmbeddingError) Unwrap() error { return e.Cause }

// VectorStoreError reports that a vector index operation failed after
// fallback exhaustion. Cause is the original primary error.
type VectorStoreError struct {
	Op    string
	Cause error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("%s: vector store operation %q: %v", CodeVectorStoreFailed, e.Op, e.Cause)
}

func (e *VectorStoreError) Unwrap() error { return e.Cause }

// GenerationError reports that a text-generation operation failed after
// fallback exhaustion. Cause is the original primary error.
type GenerationError struct {
	Op    string
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: generation operation %q: %v", CodeGenerationFailed, e.Op, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// ProcessingError reports a document-processing failure. It is the usual
// target of the error mapper passed to ExecuteOperation.
type ProcessingError struct {
	Op    string
	Cause error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: processing operation %q: %v", CodeProcessingFailed, e.Op, e.Cause)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// ExecutionError is the catch-all for generic operations run without an
// error mapper.
type ExecutionError struct {
	Op    string
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: operation %q: %v", CodeExecutionFailed, e.Op, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }
