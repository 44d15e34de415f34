// Package audit records decision records for state-mutating actions.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"

	"github.com/fentz26/taskforge/internal/models"
)

// Actions recorded by taskforge.
const (
	ActionGenerate = "task.generate"
	ActionDeliver  = "task.deliver"
	ActionAccept   = "submission.accept"
	ActionReject   = "submission.reject"
	ActionEvaluate = "submission.evaluate"
)

// Outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Sink persists decision records. *store.Store satisfies it.
type Sink interface {
	WritePDR(action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	sink Sink
}

// NewPDRWriter creates a new PDR writer. A nil sink yields a writer that
// records nothing.
func NewPDRWriter(s Sink) *PDRWriter {
	return &PDRWriter{sink: s}
}

// Record writes a PDR entry. The inputs are hashed, never stored.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, taskID, details string) (*models.PDREntry, error) {
	if w == nil || w.sink == nil {
		return nil, nil
	}
	return w.sink.WritePDR(action, HashInputs(inputs), outcome, taskID, details)
}

// Log is Record for callers that cannot act on a failed write.
func (w *PDRWriter) Log(action string, inputs interface{}, outcome, taskID, details string) {
	if _, err := w.Record(action, inputs, outcome, taskID, details); err != nil {
		log.Printf("audit: failed to record %s for %s: %v", action, taskID, err)
	}
}

// HashInputs returns the hex SHA-256 of the JSON encoding of inputs.
func HashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
