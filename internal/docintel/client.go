package docintel

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is a permanent extraction failure: the document
// cannot be processed regardless of retries.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Ref identifies a submitted document held by the collaborator.
type Ref struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// PastTarget is one historical sustainability target found in a document.
type PastTarget struct {
	Metric   string `json:"metric"`
	Achieved bool   `json:"achieved"`
}

// Extraction is the structured content the document intelligence service
// pulled from one document. Pointer fields are nil when the document does
// not contain that evidence.
type Extraction struct {
	DocumentID        string       `json:"documentId"`
	DocType           string       `json:"docType"`
	BaselineValue     *float64     `json:"baselineValue,omitempty"`
	BaselineYear      *int         `json:"baselineYear,omitempty"`
	BaselineAudited   *bool        `json:"baselineAudited,omitempty"`
	GovernanceSignals []string     `json:"governanceSignals,omitempty"`
	CapexCommitmentM  *float64     `json:"capexCommitmentM,omitempty"`
	PastTargets       []PastTarget `json:"pastTargets,omitempty"`
}

// Client is the document intelligence collaborator contract.
type Client interface {
	// ExtractDocument returns structured content for one document.
	// Transient extraction errors are retryable; ErrUnsupportedFormat
	// is permanent.
	ExtractDocument(ctx context.Context, ref Ref) (Extraction, error)
}
