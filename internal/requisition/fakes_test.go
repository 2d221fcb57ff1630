package requisition

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.Mutex
	records  map[string]Requisition
	failNext error
	// beforeReplace runs once before the next versioned write, outside the lock.
	beforeReplace func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]Requisition)}
}

func (m *memoryStore) Create(ctx context.Context, req Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.records[req.ID]; ok {
		return ErrConflict
	}
	m.records[req.ID] = req.Clone()
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id string) (Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.records[id]
	if !ok {
		return Requisition{}, ErrNotFound
	}
	return req.Clone(), nil
}

func (m *memoryStore) List(ctx context.Context, filter Filter) ([]Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Requisition
	for _, req := range m.records {
		if filter.Match(req) {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) Replace(ctx context.Context, req Requisition, expectedVersion int64) error {
	m.runHook()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	current, ok := m.records[req.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	req.ReminderCount = current.ReminderCount
	m.records[req.ID] = req.Clone()
	return nil
}

func (m *memoryStore) SaveSplit(ctx context.Context, parent Requisition, expectedVersion int64, children []Requisition) error {
	m.runHook()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	current, ok := m.records[parent.ID]
	switch {
	case expectedVersion == 0 && ok:
		return ErrConflict
	case expectedVersion != 0 && !ok:
		return ErrNotFound
	case expectedVersion != 0 && current.Version != expectedVersion:
		return ErrConflict
	}
	for _, child := range children {
		if _, exists := m.records[child.ID]; exists {
			return ErrConflict
		}
	}
	m.records[parent.ID] = parent.Clone()
	for _, child := range children {
		m.records[child.ID] = child.Clone()
	}
	return nil
}

func (m *memoryStore) IncrementReminder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	req.ReminderCount++
	m.records[id] = req
	return nil
}

func (m *memoryStore) put(req Requisition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[req.ID] = req.Clone()
}

func (m *memoryStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memoryStore) runHook() {
	m.mu.Lock()
	hook := m.beforeReplace
	m.beforeReplace = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) titled(title string) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notification
	for _, msg := range n.sent {
		if msg.Title == title {
			out = append(out, msg)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

type memoryDirectory struct {
	users     []User
	passwords map[string]string
}

func (d *memoryDirectory) UsersByRole(ctx context.Context, role Role) ([]User, error) {
	var out []User
	for _, u := range d.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *memoryDirectory) Reverify(ctx context.Context, userID, password string) (User, error) {
	for _, u := range d.users {
		if u.ID == userID {
			if d.passwords[userID] != password {
				return User{}, ErrForbidden
			}
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

type memoryPending struct {
	mu      sync.Mutex
	pending map[string]PendingSignature
}

func newMemoryPending() *memoryPending {
	return &memoryPending{pending: make(map[string]PendingSignature)}
}

func (p *memoryPending) Save(ctx context.Context, pending PendingSignature, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[pending.ID] = pending
	return nil
}

func (p *memoryPending) Get(ctx context.Context, id string) (PendingSignature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, ok := p.pending[id]
	if !ok {
		return PendingSignature{}, ErrPendingNotFound
	}
	return pending, nil
}

func (p *memoryPending) Take(ctx context.Context, id string) (PendingSignature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, ok := p.pending[id]
	if !ok {
		return PendingSignature{}, ErrPendingNotFound
	}
	delete(p.pending, id)
	return pending, nil
}

type memoryBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{blobs: make(map[string][]byte)}
}

func (b *memoryBlobs) Put(ctx context.Context, name, contentType string, body io.Reader) (StoredBlob, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return StoredBlob{}, err
	}
	sum := sha256.Sum256(data)
	ref := "mem:" + hex.EncodeToString(sum[:])
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[ref] = data
	return StoredBlob{Ref: ref, Checksum: hex.EncodeToString(sum[:]), Size: int64(len(data))}, nil
}

func (b *memoryBlobs) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[ref]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type countingMetrics struct {
	mu            sync.Mutex
	actions       map[string]int
	notifyFailure int
}

func (c *countingMetrics) ObserveAction(t Type, action Action, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.actions == nil {
		c.actions = make(map[string]int)
	}
	c.actions[string(action)+"/"+outcome]++
}

func (c *countingMetrics) ObserveNotificationFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyFailure++
}

var (
	requester     = User{ID: "req-1", Name: "Ada Requester", Role: RoleRequester}
	chairman      = User{ID: "chair-1", Name: "Chidi Chairman", Role: RoleChairman}
	auditor       = User{ID: "aud-1", Name: "Amaka Auditor", Role: RoleAuditor}
	secondAuditor = User{ID: "aud-2", Name: "Bola Second Auditor", Role: RoleAuditor}
	storeKeeper   = User{ID: "store-1", Name: "Sade Store", Role: RoleStore}
	pharmacist    = User{ID: "pharm-1", Name: "Tobi Pharmacy", Role: RolePharmacy}
	finance       = User{ID: "hof-1", Name: "Femi Finance", Role: RoleFinance}
)

type harness struct {
	svc      *Service
	store    *memoryStore
	notifier *recordingNotifier
	pending  *memoryPending
	blobs    *memoryBlobs
	metrics  *countingMetrics
	clock    time.Time
	ids      int
}

func newHarness(policy Policy) *harness {
	policy.SecondAuditorID = secondAuditor.ID
	h := &harness{
		store:    newMemoryStore(),
		notifier: &recordingNotifier{},
		pending:  newMemoryPending(),
		blobs:    newMemoryBlobs(),
		metrics:  &countingMetrics{},
		clock:    time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	dir := &memoryDirectory{
		users:     []User{requester, chairman, auditor, secondAuditor, storeKeeper, pharmacist, finance},
		passwords: map[string]string{},
	}
	for _, u := range dir.users {
		dir.passwords[u.ID] = "pw-" + u.ID
	}
	h.svc = NewService(h.store, NewWorkflow(policy),
		WithNotifier(h.notifier),
		WithDirectory(dir),
		WithPendingStore(h.pending),
		WithAttachments(h.blobs),
		WithMetrics(h.metrics),
		WithClock(func() time.Time {
			h.clock = h.clock.Add(time.Minute)
			return h.clock
		}),
		WithIDGenerator(func() string {
			h.ids++
			return "REQ-" + string(rune('0'+h.ids))
		}),
	)
	return h
}

// act runs cmd to completion, signing with the actor's password when needed.
func (h *harness) act(actor User, id string, action Action, payload Payload) (Outcome, error) {
	out, err := h.svc.Begin(context.Background(), actor, Command{RequisitionID: id, Action: action, Payload: payload})
	if err != nil || out.Status == OutcomeCommitted {
		return out, err
	}
	return h.svc.ConfirmSignature(context.Background(), actor, out.Pending.ID, SignatureInput{Password: "pw-" + actor.ID})
}
