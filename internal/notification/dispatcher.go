package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Aidin1998/txconsole/common/dbutil"
	"github.com/Aidin1998/txconsole/pkg/metrics"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Directory resolves which operators receive an event
type Directory interface {
	Recipients(ctx context.Context, permission string) ([]models.Operator, error)
}

// OperatorDirectory reads active operators from the operators table
type OperatorDirectory struct {
	db *gorm.DB
}

func NewOperatorDirectory(db *gorm.DB) *OperatorDirectory {
	return &OperatorDirectory{db: db}
}

func (d *OperatorDirectory) Recipients(ctx context.Context, permission string) ([]models.Operator, error) {
	var candidates []models.Operator
	err := d.db.WithContext(ctx).
		Where("active = ? AND permissions LIKE ?", true, "%"+permission+"%").
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, dbutil.WrapError(err)
	}
	out := candidates[:0]
	for _, op := range candidates {
		if op.HasPermission(permission) {
			out = append(out, op)
		}
	}
	return out, nil
}

type Config struct {
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Topic      string        `mapstructure:"topic"`
	Permission string        `mapstructure:"permission"`
}

func DefaultConfig() Config {
	return Config{
		Workers:    2,
		QueueSize:  256,
		Timeout:    5 * time.Second,
		Topic:      "transactions.moderation",
		Permission: "transactions.moderate",
	}
}

// Dispatcher hands events to a bounded queue drained by worker goroutines
type Dispatcher struct {
	publishers []Publisher
	directory  Directory
	logger     *zap.Logger
	config     Config

	queue    chan Event
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewDispatcher(publishers []Publisher, directory Directory, logger *zap.Logger, config Config) *Dispatcher {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Topic == "" {
		config.Topic = def.Topic
	}
	if config.Permission == "" {
		config.Permission = def.Permission
	}
	return &Dispatcher{
		publishers: publishers,
		directory:  directory,
		logger:     logger.Named("notification"),
		config:     config,
		queue:      make(chan Event, config.QueueSize),
		done:       make(chan struct{}),
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("notification dispatcher started",
		zap.Int("workers", d.config.Workers),
		zap.Int("publishers", len(d.publishers)))
}

// Stop drains queued events and waits for the workers
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}

// Notify queues the event and returns immediately. A full queue drops it.
func (d *Dispatcher) Notify(_ context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case d.queue <- event:
	default:
		metrics.ObserveNotification(string(event.Type), fmt.Errorf("queue full"))
		d.logger.Warn("notification queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("source", event.SourceKind),
			zap.Uint64("record_id", event.RecordID))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification delivery panicked", zap.Any("panic", r), zap.String("event_id", event.ID))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()

	if d.directory != nil {
		operators, err := d.directory.Recipients(ctx, d.config.Permission)
		if err != nil {
			d.logger.Warn("failed to resolve notification recipients", zap.String("event_id", event.ID), zap.Error(err))
		}
		for _, op := range operators {
			event.Recipients = append(event.Recipients, Recipient{OperatorID: op.ID, Email: op.Email, Name: op.Name})
		}
	}
	if len(event.Recipients) == 0 {
		d.logger.Debug("no recipients for notification", zap.String("event_type", string(event.Type)))
	}

	var failed []string
	for i, publisher := range d.publishers {
		if err := publisher.PublishEvent(ctx, d.config.Topic, &event); err != nil {
			failed = append(failed, fmt.Sprintf("%d", i))
			d.logger.Error("failed to publish notification",
				zap.Int("publisher_index", i),
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}

	var outcome error
	if len(d.publishers) > 0 && len(failed) == len(d.publishers) {
		outcome = fmt.Errorf("all publishers failed")
	}
	metrics.ObserveNotification(string(event.Type), outcome)

	d.logger.Info("dispatched notification",
		zap.String("event_type", string(event.Type)),
		zap.String("source", event.SourceKind),
		zap.Uint64("record_id", event.RecordID),
		zap.Int("recipients", len(event.Recipients)),
		zap.Int("publishers_failed", len(failed)),
		zap.String("failed_publishers", strings.Join(failed, ",")),
		zap.Int("publishers_total", len(d.publishers)))
}
