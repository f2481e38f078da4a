package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/apiaryhq/swarm-vault-go/model"
	"go.uber.org/zap"
)

// Log is the append-only record of every attempted fund movement. Appends are
// synced to disk before returning so an operation never reports success ahead
// of its forensic record. No component mutates or truncates the file.
type Log struct {
	path string
	log  *zap.Logger

	mu sync.Mutex
	f  *os.File
}

func Open(path string, log *zap.Logger) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("cannot open audit log: %w", err)
	}
	return &Log{path: path, log: log, f: f}, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) Append(record model.AuditRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("cannot encode audit record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.Write(line); err != nil {
		return fmt.Errorf("cannot append audit record: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("cannot sync audit log: %w", err)
	}
	return nil
}

func (l *Log) Query(filter Filter) ([]model.AuditRecord, error) {
	return QueryFile(l.path, filter)
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Filter narrows a query; zero-valued fields match everything. Limit keeps
// only the most recent matches.
type Filter struct {
	Action      model.AuditAction
	Status      model.TransferStatus
	WalletIndex *int
	OperationId string
	Since       time.Time
	Limit       int
}

func (f Filter) matches(r model.AuditRecord) bool {
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.WalletIndex != nil && r.WalletIndex != *f.WalletIndex {
		return false
	}
	if f.OperationId != "" && r.OperationId != f.OperationId {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// QueryFile reads records without taking an append handle, so review tooling
// can inspect a log it has no intention of writing to.
func QueryFile(path string, filter Filter) ([]model.AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot open audit log: %w", err)
	}
	defer f.Close()

	var records []model.AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record model.AuditRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("malformed audit record on line %d: %w", lineNo, err)
		}
		if filter.matches(record) {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read audit log: %w", err)
	}

	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[len(records)-filter.Limit:]
	}
	return records, nil
}
