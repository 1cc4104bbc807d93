package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Aidin1998/txconsole/common/dbutil"
	"github.com/Aidin1998/txconsole/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventType defines types of audit events
type EventType string

const (
	EventStatusUpdated EventType = "transaction.status_updated"
	EventApproved      EventType = "transaction.approved"
	EventCancelled     EventType = "transaction.cancelled"
	EventVerified      EventType = "transaction.verified"
	EventFlagged       EventType = "transaction.flagged"
	EventUnflagged     EventType = "transaction.unflagged"
)

// EventOutcome is the result of the audited action
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
)

// Event is one audited moderation action
type Event struct {
	ID           string       `json:"id" gorm:"primaryKey;size:36"`
	Seq          int64        `json:"seq" gorm:"uniqueIndex;not null"`
	EventType    EventType    `json:"event_type" gorm:"size:64;not null;index"`
	ActorID      string       `json:"actor_id" gorm:"size:128;not null;index"`
	SourceKind   string       `json:"source_kind" gorm:"size:32;not null;index:idx_audit_record"`
	RecordID     uint64       `json:"record_id" gorm:"not null;index:idx_audit_record"`
	Outcome      EventOutcome `json:"outcome" gorm:"size:16;not null"`
	FromStatus   *string      `json:"from_status,omitempty" gorm:"size:16"`
	ToStatus     *string      `json:"to_status,omitempty" gorm:"size:16"`
	Override     bool         `json:"override"`
	Details      string       `json:"details,omitempty" gorm:"type:text"`
	Error        *string      `json:"error,omitempty" gorm:"type:text"`
	Hash         string       `json:"hash" gorm:"size:64;not null"`
	PreviousHash *string      `json:"previous_hash,omitempty" gorm:"size:64"`
	Timestamp    time.Time    `json:"timestamp" gorm:"not null;index"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (Event) TableName() string { return "audit_events" }

// Config defines audit logging configuration
type Config struct {
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func DefaultConfig() Config {
	return Config{QueueSize: 1024, BatchSize: 50, FlushInterval: 2 * time.Second}
}

// Service writes audit events asynchronously. A single writer goroutine owns
// the hash chain, so events are chained in the order they were queued.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	config Config

	queue     chan *Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// owned by the writer goroutine
	batch    []*Event
	lastHash string
	lastSeq  int64
}

// NewService creates the audit service and starts its writer
func NewService(db *gorm.DB, logger *zap.Logger, config Config) *Service {
	def := DefaultConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = def.FlushInterval
	}

	s := &Service{
		db:     db,
		logger: logger.Named("audit"),
		config: config,
		queue:  make(chan *Event, config.QueueSize),
		done:   make(chan struct{}),
		batch:  make([]*Event, 0, config.BatchSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record queues an event. It never blocks; a full queue drops the event.
func (s *Service) Record(_ context.Context, event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	// postgres keeps microseconds; hashing must survive a round trip
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Microsecond)

	select {
	case <-s.done:
		s.logger.Warn("audit service closed, dropping event", zap.String("event_type", string(event.EventType)))
		metrics.ObserveAudit(fmt.Errorf("closed"))
	case s.queue <- event:
	default:
		s.logger.Warn("audit queue full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("source", event.SourceKind),
			zap.Uint64("record_id", event.RecordID))
		metrics.ObserveAudit(fmt.Errorf("queue full"))
	}
}

func (s *Service) loadChainHead() {
	var last Event
	err := s.db.Order("seq DESC").Limit(1).Find(&last).Error
	if err != nil {
		s.logger.Warn("failed to load previous audit hash", zap.Error(err))
		return
	}
	s.lastHash = last.Hash
	s.lastSeq = last.Seq
}

func (s *Service) run() {
	defer s.wg.Done()
	s.loadChainHead()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.queue:
			s.append(event)
			if len(s.batch) >= s.config.BatchSize {
				s.flush()
			}
		case <-ticker.C:
			s.flush()
		case <-s.done:
			for {
				select {
				case event := <-s.queue:
					s.append(event)
				default:
					s.flush()
					return
				}
			}
		}
	}
}

func (s *Service) append(event *Event) {
	s.lastSeq++
	event.Seq = s.lastSeq
	if s.lastHash != "" {
		prev := s.lastHash
		event.PreviousHash = &prev
	}
	hash, err := CalculateHash(event)
	if err != nil {
		s.logger.Error("failed to hash audit event", zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	event.Hash = hash
	s.lastHash = hash
	s.batch = append(s.batch, event)
}

func (s *Service) flush() {
	if len(s.batch) == 0 {
		return
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&s.batch).Error
	})
	metrics.ObserveAudit(err)
	if err != nil {
		s.logger.Error("failed to store audit batch", zap.Int("batch_size", len(s.batch)), zap.Error(err))
		// the chain head moved past events that were never stored
		s.loadChainHead()
	} else {
		s.logger.Debug("audit batch committed", zap.Int("batch_size", len(s.batch)))
	}
	s.batch = s.batch[:0]
}

// Close flushes queued events and stops the writer
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// CalculateHash hashes the event content together with the previous hash
func CalculateHash(event *Event) (string, error) {
	data, err := json.Marshal(struct {
		ID           string
		Seq          int64
		EventType    EventType
		ActorID      string
		SourceKind   string
		RecordID     uint64
		Outcome      EventOutcome
		FromStatus   *string
		ToStatus     *string
		Override     bool
		Details      string
		Timestamp    string
		PreviousHash *string
	}{
		ID:           event.ID,
		Seq:          event.Seq,
		EventType:    event.EventType,
		ActorID:      event.ActorID,
		SourceKind:   event.SourceKind,
		RecordID:     event.RecordID,
		Outcome:      event.Outcome,
		FromStatus:   event.FromStatus,
		ToStatus:     event.ToStatus,
		Override:     event.Override,
		Details:      event.Details,
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		PreviousHash: event.PreviousHash,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// History returns the audit trail of one record, oldest first
func (s *Service) History(ctx context.Context, sourceKind string, recordID uint64) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("source_kind = ? AND record_id = ?", sourceKind, recordID).
		Order("seq ASC").
		Find(&events).Error
	if err != nil {
		return nil, dbutil.WrapError(err)
	}
	return events, nil
}

// VerifyIntegrity walks the chain between two sequence numbers (inclusive,
// zero to means the end) and reports broken links.
func (s *Service) VerifyIntegrity(ctx context.Context, fromSeq, toSeq int64) (*IntegrityReport, error) {
	q := s.db.WithContext(ctx).Where("seq >= ?", fromSeq)
	if toSeq > 0 {
		q = q.Where("seq <= ?", toSeq)
	}
	var events []Event
	if err := q.Order("seq ASC").Find(&events).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}

	report := &IntegrityReport{
		TotalEvents: len(events),
		Issues:      make([]IntegrityIssue, 0),
		GeneratedAt: time.Now().UTC(),
	}

	var prevHash string
	for i := range events {
		event := &events[i]
		expected, err := CalculateHash(event)
		switch {
		case err != nil:
			report.Issues = append(report.Issues, IntegrityIssue{EventID: event.ID, Seq: event.Seq, IssueType: "hash_calculation_error"})
		case event.Hash != expected:
			report.Issues = append(report.Issues, IntegrityIssue{EventID: event.ID, Seq: event.Seq, IssueType: "hash_mismatch"})
		case i > 0 && (event.PreviousHash == nil || *event.PreviousHash != prevHash):
			report.Issues = append(report.Issues, IntegrityIssue{EventID: event.ID, Seq: event.Seq, IssueType: "chain_break"})
		default:
			report.ValidEvents++
		}
		prevHash = event.Hash
	}
	report.InvalidEvents = report.TotalEvents - report.ValidEvents
	return report, nil
}

// IntegrityReport contains the results of an integrity check
type IntegrityReport struct {
	TotalEvents   int              `json:"total_events"`
	ValidEvents   int              `json:"valid_events"`
	InvalidEvents int              `json:"invalid_events"`
	Issues        []IntegrityIssue `json:"issues"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// IntegrityIssue represents an integrity violation
type IntegrityIssue struct {
	EventID   string `json:"event_id"`
	Seq       int64  `json:"seq"`
	IssueType string `json:"issue_type"`
}
