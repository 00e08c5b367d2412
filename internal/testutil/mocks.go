package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/cassiomorais/taskboard/internal/domain/outbox"
	"github.com/cassiomorais/taskboard/internal/domain/task"
	busredis "github.com/cassiomorais/taskboard/internal/infrastructure/redis"
	"github.com/google/uuid"
)

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of the transaction
// manager port. Participants registered via AddParticipant see their staged
// writes discarded when fn fails, mimicking a database rollback.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error

	participants []TxParticipant
}

// TxParticipant is a mock store that can stage and roll back writes.
type TxParticipant interface {
	beginTx()
	commitTx()
	rollbackTx()
}

func NewMockTransactionManager(participants ...TxParticipant) *MockTransactionManager {
	return &MockTransactionManager{participants: participants}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	for _, p := range m.participants {
		p.beginTx()
	}
	if err := fn(ctx); err != nil {
		for _, p := range m.participants {
			p.rollbackTx()
		}
		return err
	}
	for _, p := range m.participants {
		p.commitTx()
	}
	return nil
}

// --- Outbox Store Mock ---

// MockOutboxStore is an in-memory implementation of outbox.Store. Claimed
// rows stay invisible to further claims until resolved, mirroring the
// skip-locked behavior of the real store.
type MockOutboxStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*outbox.Record
	claimed map[uuid.UUID]bool
	staged  []*outbox.Record
	inTx    bool

	EnqueueFunc      func(ctx context.Context, e outbox.Event) (*outbox.Record, error)
	ClaimPendingFunc func(ctx context.Context, batchSize int) ([]*outbox.Record, error)
	MarkSentFunc     func(ctx context.Context, id uuid.UUID) error
	RescheduleFunc   func(ctx context.Context, id uuid.UUID, nextAvailableAt time.Time) error
}

func NewMockOutboxStore() *MockOutboxStore {
	return &MockOutboxStore{
		records: make(map[uuid.UUID]*outbox.Record),
		claimed: make(map[uuid.UUID]bool),
	}
}

func (m *MockOutboxStore) beginTx() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inTx = true
	m.staged = nil
}

func (m *MockOutboxStore) commitTx() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.staged {
		m.records[rec.ID] = rec
	}
	m.inTx = false
	m.staged = nil
}

func (m *MockOutboxStore) rollbackTx() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inTx = false
	m.staged = nil
}

func (m *MockOutboxStore) Enqueue(ctx context.Context, e outbox.Event) (*outbox.Record, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueueLocked(e)
}

func (m *MockOutboxStore) EnqueueBatch(ctx context.Context, events []outbox.Event) ([]*outbox.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e.DedupKey == "" {
			continue
		}
		if _, dup := seen[e.DedupKey]; dup {
			return nil, domainErrors.ErrDuplicateEvent
		}
		seen[e.DedupKey] = struct{}{}
		if m.dedupTakenLocked(e.DedupKey) {
			return nil, domainErrors.ErrDuplicateEvent
		}
	}

	recs := make([]*outbox.Record, 0, len(events))
	for _, e := range events {
		rec, err := m.enqueueLocked(e)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (m *MockOutboxStore) enqueueLocked(e outbox.Event) (*outbox.Record, error) {
	if e.DedupKey != "" && m.dedupTakenLocked(e.DedupKey) {
		return nil, domainErrors.ErrDuplicateEvent
	}
	rec, err := outbox.NewRecord(e)
	if err != nil {
		return nil, err
	}
	if m.inTx {
		m.staged = append(m.staged, rec)
	} else {
		m.records[rec.ID] = rec
	}
	return rec, nil
}

func (m *MockOutboxStore) dedupTakenLocked(key string) bool {
	for _, rec := range m.records {
		if rec.DedupKey == key {
			return true
		}
	}
	for _, rec := range m.staged {
		if rec.DedupKey == key {
			return true
		}
	}
	return false
}

func (m *MockOutboxStore) ClaimPending(ctx context.Context, batchSize int) ([]*outbox.Record, error) {
	if m.ClaimPendingFunc != nil {
		return m.ClaimPendingFunc(ctx, batchSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var eligible []*outbox.Record
	for _, rec := range m.records {
		if rec.Eligible(now) && !m.claimed[rec.ID] {
			eligible = append(eligible, rec)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].OccurredAt.Before(eligible[j].OccurredAt)
	})
	if len(eligible) > batchSize {
		eligible = eligible[:batchSize]
	}
	for _, rec := range eligible {
		m.claimed[rec.ID] = true
	}
	return eligible, nil
}

func (m *MockOutboxStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	if m.MarkSentFunc != nil {
		return m.MarkSentFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return domainErrors.ErrOutboxNotFound
	}
	if rec.State == outbox.StatePending {
		now := time.Now().UTC()
		rec.State = outbox.StateSent
		rec.SentAt = &now
		rec.ProcessedAt = &now
	}
	delete(m.claimed, id)
	return nil
}

func (m *MockOutboxStore) MarkDeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return domainErrors.ErrOutboxNotFound
	}
	if rec.State == outbox.StatePending {
		now := time.Now().UTC()
		rec.State = outbox.StateDeadLetter
		rec.LastError = reason
		rec.ProcessedAt = &now
	}
	delete(m.claimed, id)
	return nil
}

func (m *MockOutboxStore) Reschedule(ctx context.Context, id uuid.UUID, nextAvailableAt time.Time) error {
	if m.RescheduleFunc != nil {
		return m.RescheduleFunc(ctx, id, nextAvailableAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return domainErrors.ErrOutboxNotFound
	}
	if rec.State == outbox.StatePending {
		rec.Attempts++
		rec.AvailableAt = nextAvailableAt
	}
	delete(m.claimed, id)
	return nil
}

// Get returns a stored record by id, or nil.
func (m *MockOutboxStore) Get(id uuid.UUID) *outbox.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// All returns every committed record.
func (m *MockOutboxStore) All() []*outbox.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]*outbox.Record, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	return recs
}

// --- Bus Mock ---

// PublishedMessage is one message captured by MockBus.
type PublishedMessage struct {
	Topic     string
	Payload   []byte
	EventType string
	TraceID   string
	Reason    string
}

// MockBus captures publishes, including dead-letter mirrors.
type MockBus struct {
	mu       sync.Mutex
	messages []PublishedMessage
	dlq      []PublishedMessage

	PublishFunc func(ctx context.Context, topic string, payload []byte, eventType, traceID string) error
}

func NewMockBus() *MockBus {
	return &MockBus{}
}

func (m *MockBus) Publish(ctx context.Context, topic string, payload []byte, eventType, traceID string) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, topic, payload, eventType, traceID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, PublishedMessage{
		Topic:     topic,
		Payload:   payload,
		EventType: eventType,
		TraceID:   traceID,
	})
	return nil
}

func (m *MockBus) PublishDeadLetter(ctx context.Context, eventType string, payload []byte, reason, traceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, PublishedMessage{
		Topic:     eventType + "-dlq",
		Payload:   payload,
		EventType: eventType,
		TraceID:   traceID,
		Reason:    reason,
	})
	return nil
}

func (m *MockBus) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.messages...)
}

func (m *MockBus) DeadLetters() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.dlq...)
}

// --- Stream Mock ---

// MockStream feeds a fixed set of messages to a consumer and records acks.
// Read returns each message once; once drained it blocks until the context
// is cancelled. Delivered messages stay in a pending list until acked,
// mirroring a consumer group's pending entries list, and ClaimStale hands
// them out again.
type MockStream struct {
	mu      sync.Mutex
	queue   []busredis.Message
	pending []pendingEntry
	acked   []string
	stream  string

	ReadFunc       func(ctx context.Context) ([]busredis.Message, error)
	ClaimStaleFunc func(ctx context.Context, minIdle time.Duration) ([]busredis.Message, error)
}

type pendingEntry struct {
	msg         busredis.Message
	deliveredAt time.Time
}

func NewMockStream(stream string, messages ...busredis.Message) *MockStream {
	return &MockStream{stream: stream, queue: messages}
}

func (m *MockStream) Stream() string {
	return m.stream
}

func (m *MockStream) Read(ctx context.Context) ([]busredis.Message, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx)
	}
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := m.queue
	m.queue = nil
	now := time.Now()
	for _, msg := range batch {
		m.pending = append(m.pending, pendingEntry{msg: msg, deliveredAt: now})
	}
	m.mu.Unlock()
	return batch, nil
}

func (m *MockStream) Ack(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, messageID)
	for i, e := range m.pending {
		if e.msg.ID == messageID {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	return nil
}

// ClaimStale returns delivered-but-unacked messages idle for at least
// minIdle, resetting their idle time like a real claim does.
func (m *MockStream) ClaimStale(ctx context.Context, minIdle time.Duration) ([]busredis.Message, error) {
	if m.ClaimStaleFunc != nil {
		return m.ClaimStaleFunc(ctx, minIdle)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var msgs []busredis.Message
	for i, e := range m.pending {
		if now.Sub(e.deliveredAt) >= minIdle {
			msgs = append(msgs, e.msg)
			m.pending[i].deliveredAt = now
		}
	}
	return msgs, nil
}

// Acked returns the ids acknowledged so far.
func (m *MockStream) Acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

// PendingIDs returns the ids delivered but not yet acknowledged.
func (m *MockStream) PendingIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pending))
	for _, e := range m.pending {
		ids = append(ids, e.msg.ID)
	}
	return ids
}

// --- Dead Letter Repository Mock ---

// MockDeadLetterRepository is an in-memory implementation of
// deadletter.Repository.
type MockDeadLetterRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*deadletter.Record

	SaveFunc         func(ctx context.Context, rec *deadletter.Record) error
	MarkReplayedFunc func(ctx context.Context, id uuid.UUID) error
}

func NewMockDeadLetterRepository() *MockDeadLetterRepository {
	return &MockDeadLetterRepository{records: make(map[uuid.UUID]*deadletter.Record)}
}

func (m *MockDeadLetterRepository) Save(ctx context.Context, rec *deadletter.Record) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *MockDeadLetterRepository) GetByID(ctx context.Context, id uuid.UUID) (*deadletter.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domainErrors.ErrDeadLetterNotFound
	}
	return rec, nil
}

func (m *MockDeadLetterRepository) List(ctx context.Context, filter deadletter.Filter, limit int) ([]*deadletter.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []*deadletter.Record
	for _, rec := range m.records {
		if filter.EventType != "" && rec.EventType != filter.EventType {
			continue
		}
		if filter.Reason != "" && !strings.Contains(strings.ToLower(rec.Reason), strings.ToLower(filter.Reason)) {
			continue
		}
		if filter.From != nil && rec.DeadLetteredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && rec.DeadLetteredAt.After(*filter.To) {
			continue
		}
		if filter.OnlyUnreplayed && rec.IsReplayed {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].DeadLetteredAt.Before(recs[j].DeadLetteredAt)
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (m *MockDeadLetterRepository) MarkReplayed(ctx context.Context, id uuid.UUID) error {
	if m.MarkReplayedFunc != nil {
		return m.MarkReplayedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domainErrors.ErrDeadLetterNotFound
	}
	if !rec.IsReplayed {
		now := time.Now().UTC()
		rec.IsReplayed = true
		rec.ReplayedAt = &now
	}
	return nil
}

// Count returns the number of stored records.
func (m *MockDeadLetterRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// --- Task Repository Mock ---

// MockTaskRepository is an in-memory implementation of task.Repository.
type MockTaskRepository struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*task.Task

	CreateFunc func(ctx context.Context, t *task.Task) error
	UpdateFunc func(ctx context.Context, t *task.Task) error
}

func NewMockTaskRepository() *MockTaskRepository {
	return &MockTaskRepository{tasks: make(map[uuid.UUID]*task.Task)}
}

func (m *MockTaskRepository) Create(ctx context.Context, t *task.Task) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domainErrors.ErrTaskNotFound
	}
	return t, nil
}

func (m *MockTaskRepository) Update(ctx context.Context, t *task.Task) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return domainErrors.ErrTaskNotFound
	}
	m.tasks[t.ID] = t
	return nil
}
