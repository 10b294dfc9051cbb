package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// recordNamespace scopes record ids so the same (document, ordinal) pair maps
// to the same key in every backend.
var recordNamespace = uuid.MustParse("8d0f3f4e-5c55-4a55-9b8a-6d8f1f7c2a10")

type DocumentSource struct {
	URI        string    `json:"uri"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Document is loaded text awaiting chunking. ID is the base file name.
type Document struct {
	ID     string         `json:"id"`
	Text   string         `json:"-"`
	Source DocumentSource `json:"source"`
}

// Chunk is a window over a document. Start and End are offsets in the
// chunker's unit (runes or tokens).
type Chunk struct {
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
}

func (c Chunk) RecordID() string { return RecordID(c.DocumentID, c.Ordinal) }

type EmbeddingRecord struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Ordinal    int               `json:"ordinal"`
	Vector     []float32         `json:"vector"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RecordID derives the stable key for a chunk. Re-ingesting a document with
// the same name replaces its records rather than duplicating them.
func RecordID(documentID string, ordinal int) string {
	return uuid.NewSHA1(recordNamespace, []byte(documentID+"|"+strconv.Itoa(ordinal))).String()
}

// NewRecord pairs a chunk with its vector.
func NewRecord(c Chunk, vector []float32, source string) EmbeddingRecord {
	meta := map[string]string{
		"document_id": c.DocumentID,
		"ordinal":     strconv.Itoa(c.Ordinal),
	}
	if source != "" {
		meta["source"] = source
	}
	return EmbeddingRecord{
		ID:         c.RecordID(),
		DocumentID: c.DocumentID,
		Ordinal:    c.Ordinal,
		Vector:     vector,
		Text:       c.Text,
		Metadata:   meta,
	}
}

type RetrievalResult struct {
	RecordID   string  `json:"record_id"`
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Retrieval is ordered by non-increasing Score.
type Retrieval []RetrievalResult

func (r Retrieval) Texts() []string {
	out := make([]string, 0, len(r))
	for _, res := range r {
		out = append(out, res.Text)
	}
	return out
}

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// DocumentOutcome records what happened to one document within a run.
type DocumentOutcome struct {
	DocumentID string        `json:"document_id"`
	Status     OutcomeStatus `json:"status"`
	Chunks     int           `json:"chunks"`
	Records    int           `json:"records"`
	Error      string        `json:"error,omitempty"`
}

func Succeeded(documentID string, chunks, records int) DocumentOutcome {
	return DocumentOutcome{DocumentID: documentID, Status: OutcomeSucceeded, Chunks: chunks, Records: records}
}

func Failed(documentID string, cause error) DocumentOutcome {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return DocumentOutcome{DocumentID: documentID, Status: OutcomeFailed, Error: msg}
}

func (o DocumentOutcome) String() string {
	if o.Status == OutcomeFailed {
		return fmt.Sprintf("%s: failed (%s)", o.DocumentID, o.Error)
	}
	return fmt.Sprintf("%s: %s chunks=%d records=%d", o.DocumentID, o.Status, o.Chunks, o.Records)
}
