package transform

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AuditLog records dropped records to an append-only JSON-lines file so
// exclusions stay reviewable after the run. A nil AuditLog is a valid no-op.
type AuditLog struct {
	mu sync.Mutex
	f  *os.File
	n  int
}

type auditEntry struct {
	Time   time.Time `json:"time"`
	Reason string    `json:"reason"`
	Record []string  `json:"record"`
}

// NewAuditLog opens (or creates) the audit file for appending.
func NewAuditLog(path string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "transform: open audit log %s", path)
	}
	return &AuditLog{f: f}, nil
}

// Record appends one dropped record. Write failures are logged, not
// propagated: an unwritable audit file must not abort the transform.
func (a *AuditLog) Record(reason string, record []string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	line, err := json.Marshal(auditEntry{Time: time.Now().UTC(), Reason: reason, Record: record})
	if err == nil {
		_, err = a.f.Write(append(line, '\n'))
	}
	if err != nil {
		zap.L().Warn("audit write failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	a.n++
}

// Count reports how many records have been written.
func (a *AuditLog) Count() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	return a.f.Close()
}
