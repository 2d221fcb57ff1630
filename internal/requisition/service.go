package requisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSignatureTTL    = 15 * time.Minute
	defaultConflictRetries = 2
)

// Service orchestrates requisition workflows.
type Service struct {
	store        Store
	workflow     *Workflow
	notifier     Notifier
	attachments  AttachmentStore
	directory    Directory
	pending      PendingStore
	metrics      Metrics
	logger       *slog.Logger
	signatureTTL time.Duration
	retries      int
	now          func() time.Time
	newID        func() string
}

// Option configures Service.
type Option func(*Service)

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithAttachments sets the blob store used for uploads and signature images.
func WithAttachments(a AttachmentStore) Option { return func(s *Service) { s.attachments = a } }

// WithDirectory sets the identity provider.
func WithDirectory(d Directory) Option { return func(s *Service) { s.directory = d } }

// WithPendingStore sets where actions wait for signatures.
func WithPendingStore(p PendingStore) Option { return func(s *Service) { s.pending = p } }

// WithMetrics sets the workflow metrics sink.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSignatureTTL bounds how long a pending signature stays valid.
func WithSignatureTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.signatureTTL = ttl
		}
	}
}

// WithConflictRetries sets how often a stale write is retried against fresh state.
func WithConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator overrides requisition id generation.
func WithIDGenerator(fn func() string) Option { return func(s *Service) { s.newID = fn } }

// NewService constructs the workflow orchestrator.
func NewService(store Store, workflow *Workflow, opts ...Option) *Service {
	s := &Service{
		store:        store,
		workflow:     workflow,
		logger:       slog.Default(),
		signatureTTL: defaultSignatureTTL,
		retries:      defaultConflictRetries,
		now:          time.Now,
		newID:        func() string { return generateNumber("REQ") },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Workflow exposes the routing table.
func (s *Service) Workflow() *Workflow { return s.workflow }

// Create stores a new requisition at its type's entry stage, splitting it by
// supplier when the type's policy asks for it.
func (s *Service) Create(ctx context.Context, actor User, in CreateInput) (Outcome, error) {
	if actor.ID == "" {
		return Outcome{}, &AuthorizationError{Role: actor.Role, Action: ActionCreate}
	}
	if !in.Type.Valid() {
		return Outcome{}, invalid("type", "unknown requisition type")
	}
	department := strings.TrimSpace(in.Department)
	if department == "" {
		return Outcome{}, invalid("department", "department is required")
	}
	urgency, err := normalizeUrgency(in.Urgency)
	if err != nil {
		return Outcome{}, err
	}
	items, total, err := buildItems(in.Type, in.Items, in.Amount)
	if err != nil {
		s.observe(in.Type, ActionCreate, "invalid")
		return Outcome{}, err
	}
	attachments, err := s.ingest(ctx, actor, in.Uploads)
	if err != nil {
		return Outcome{}, err
	}

	now := s.now().UTC()
	entry := s.workflow.EntryStage(in.Type)
	req := Requisition{
		ID:            s.newID(),
		Type:          in.Type,
		Requester:     Party{ID: actor.ID, Name: actor.Name},
		Department:    department,
		Urgency:       urgency,
		Title:         strings.TrimSpace(in.Title),
		Stage:         entry,
		Items:         items,
		TotalCost:     total,
		PaymentStatus: PaymentUnpaid,
		Attachments:   attachments,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	req.AuditTrail = Append(nil, NewEntry(actor, ActionCreate, "", entry, "", nil, now))

	if s.workflow.SplitsOnCreate(in.Type) {
		if split, ok := SplitBySupplier(req, items, actor, entry, now, nil); ok {
			if err := s.store.SaveSplit(ctx, split.Parent, 0, split.Children); err != nil {
				s.observe(in.Type, ActionCreate, "failed")
				return Outcome{}, persistenceError("create split", err)
			}
			s.observe(in.Type, ActionCreate, "split")
			s.logger.InfoContext(ctx, "requisition created and split",
				slog.String("requisition", req.ID), slog.Int("children", len(split.Children)))
			s.notifySplit(ctx, actor, split)
			parent := split.Parent
			return Outcome{Status: OutcomeCommitted, Requisition: &parent, Children: split.Children}, nil
		}
	}

	if err := s.store.Create(ctx, req); err != nil {
		s.observe(in.Type, ActionCreate, "failed")
		return Outcome{}, persistenceError("create", err)
	}
	s.observe(in.Type, ActionCreate, "committed")
	s.logger.InfoContext(ctx, "requisition created",
		slog.String("requisition", req.ID), slog.String("type", string(req.Type)), slog.String("stage", string(req.Stage)))
	s.notifyApprovers(ctx, req, "Approval Required")
	return Outcome{Status: OutcomeCommitted, Requisition: &req}, nil
}

// Begin evaluates cmd. Actions that need a signature are held and returned as
// pending; everything else is committed immediately.
func (s *Service) Begin(ctx context.Context, actor User, cmd Command) (Outcome, error) {
	if cmd.Action == ActionRecordPayment {
		return Outcome{}, invalid("action", "payments are recorded through RecordPayment")
	}
	req, err := s.store.Get(ctx, cmd.RequisitionID)
	if err != nil {
		return Outcome{}, err
	}
	tr, err := s.workflow.Resolve(req, cmd.Action, actor)
	if err != nil {
		s.observe(req.Type, cmd.Action, "refused")
		return Outcome{}, err
	}
	payload, err := preparePayload(req, tr, cmd.Payload)
	if err != nil {
		s.observe(req.Type, cmd.Action, "invalid")
		return Outcome{}, err
	}
	payload.Attachments, err = s.ingest(ctx, actor, cmd.Payload.Uploads)
	if err != nil {
		return Outcome{}, err
	}
	cmd.Payload = payload

	if !tr.Effects.Has(EffectRequireSignature) {
		return s.commit(ctx, actor, cmd, req, req.Stage, nil)
	}
	if s.pending == nil {
		return Outcome{}, errors.New("requisition: signatures are not configured")
	}
	now := s.now().UTC()
	pending := PendingSignature{
		ID:            uuid.NewString(),
		RequisitionID: req.ID,
		Command:       cmd,
		Actor:         actor,
		Stage:         req.Stage,
		Version:       req.Version,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.signatureTTL),
	}
	if err := s.pending.Save(ctx, pending, s.signatureTTL); err != nil {
		return Outcome{}, fmt.Errorf("requisition: hold pending signature: %w", err)
	}
	s.observe(req.Type, cmd.Action, "pending")
	return Outcome{Status: OutcomePending, Pending: &pending}, nil
}

// ConfirmSignature signs and commits a pending action.
func (s *Service) ConfirmSignature(ctx context.Context, actor User, pendingID string, in SignatureInput) (Outcome, error) {
	if s.pending == nil {
		return Outcome{}, ErrPendingNotFound
	}
	pending, err := s.pending.Get(ctx, pendingID)
	if err != nil {
		return Outcome{}, err
	}
	if pending.Actor.ID != actor.ID {
		return Outcome{}, &AuthorizationError{UserID: actor.ID, Role: actor.Role, Action: pending.Command.Action, Stage: pending.Stage}
	}
	sig, err := s.sign(ctx, actor, pendingID, in)
	if err != nil {
		return Outcome{}, err
	}
	if pending, err = s.pending.Take(ctx, pendingID); err != nil {
		return Outcome{}, err
	}
	req, err := s.store.Get(ctx, pending.RequisitionID)
	if err != nil {
		return Outcome{}, err
	}
	return s.commit(ctx, actor, pending.Command, req, pending.Stage, sig)
}

// commit applies cmd to req and persists it, retrying stale writes only while
// the stage the actor saw is still current.
func (s *Service) commit(ctx context.Context, actor User, cmd Command, req Requisition, seen Stage, sig *Signature) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		if req.Stage != seen {
			s.observe(req.Type, cmd.Action, "conflict")
			return Outcome{}, fmt.Errorf("%w: requisition moved from %s to %s", ErrConflict, seen, req.Stage)
		}
		tr, err := s.workflow.Resolve(req, cmd.Action, actor)
		if err != nil {
			s.observe(req.Type, cmd.Action, "refused")
			return Outcome{}, err
		}
		next, split, err := s.apply(req, tr, actor, cmd.Payload, sig)
		if err != nil {
			s.observe(req.Type, cmd.Action, "invalid")
			return Outcome{}, err
		}
		if split != nil {
			err = s.store.SaveSplit(ctx, split.Parent, req.Version, split.Children)
		} else {
			err = s.store.Replace(ctx, next, req.Version)
		}
		if err == nil {
			s.observe(req.Type, cmd.Action, "committed")
			s.logger.InfoContext(ctx, "requisition transition",
				slog.String("requisition", req.ID),
				slog.String("action", string(cmd.Action)),
				slog.String("from", string(req.Stage)),
				slog.String("to", string(next.Stage)),
				slog.String("actor", actor.ID))
			if split != nil {
				s.notifySplit(ctx, actor, *split)
				return Outcome{Status: OutcomeCommitted, Requisition: &next, Children: split.Children}, nil
			}
			s.afterCommit(ctx, actor, next, tr, cmd.Payload.Comment)
			return Outcome{Status: OutcomeCommitted, Requisition: &next}, nil
		}
		if !errors.Is(err, ErrConflict) {
			s.observe(req.Type, cmd.Action, "failed")
			return Outcome{}, persistenceError(strings.ToLower(string(cmd.Action)), err)
		}
		if attempt >= s.retries {
			s.observe(req.Type, cmd.Action, "conflict")
			return Outcome{}, err
		}
		s.logger.InfoContext(ctx, "requisition write conflict, retrying",
			slog.String("requisition", req.ID), slog.Int("attempt", attempt+1))
		if req, err = s.store.Get(ctx, req.ID); err != nil {
			return Outcome{}, err
		}
	}
}

// apply computes the next state on a clone of req. It never touches req.
func (s *Service) apply(req Requisition, tr Transition, actor User, payload Payload, sig *Signature) (Requisition, *SplitResult, error) {
	now := s.now().UTC()
	next := req.Clone()
	attachments, err := mergeAttachments(next.Attachments, payload.Attachments)
	if err != nil {
		return Requisition{}, nil, err
	}
	next.Attachments = attachments
	if tr.Action == ActionEdit {
		if payload.Title != "" {
			next.Title = payload.Title
		}
		if payload.Department != "" {
			next.Department = payload.Department
		}
		if payload.Urgency != "" {
			next.Urgency = payload.Urgency
		}
	}
	if tr.Effects.Has(EffectReplaceItems) {
		switch {
		case req.Type.IsEmergency() && payload.Amount != nil:
			next.Items, next.TotalCost, err = buildItems(req.Type, nil, *payload.Amount)
			if err != nil {
				return Requisition{}, nil, err
			}
		case payload.Items != nil:
			next.Items = cloneItems(payload.Items)
			next.TotalCost = TotalOf(next.Items)
		}
	}
	next.Version = req.Version + 1
	next.UpdatedAt = now

	entry := NewEntry(actor, tr.Recorded(), req.Stage, tr.To, payload.Comment, sig, now)
	if tr.Effects.Has(EffectCheckSplit) {
		base := next
		splitSig := sig
		if tr.Action == ActionEdit {
			// resubmission is logged before the split so the children carry it
			base.AuditTrail = Append(base.AuditTrail, entry)
			base.Stage = tr.To
			splitSig = nil
		}
		if split, ok := SplitBySupplier(base, base.Items, actor, tr.To, now, splitSig); ok {
			return split.Parent, &split, nil
		}
	}
	next.AuditTrail = Append(next.AuditTrail, entry)
	next.Stage = tr.To
	if next.Stage == StageApproved {
		Reconcile(&next)
	}
	return next, nil, nil
}

// RecordPayment appends a payment to an approved requisition.
func (s *Service) RecordPayment(ctx context.Context, actor User, id string, in PaymentInput) (Requisition, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	var receipt *Attachment
	if in.Receipt != nil {
		// validate before storing the receipt blob
		if _, err := RecordPayment(req, in, actor, s.now().UTC()); err != nil {
			s.observe(req.Type, ActionRecordPayment, "invalid")
			return Requisition{}, err
		}
		stored, err := s.ingest(ctx, actor, []Upload{*in.Receipt})
		if err != nil {
			return Requisition{}, err
		}
		receipt = &stored[0]
		in.ReceiptRef = receipt.Ref
	}

	for attempt := 0; ; attempt++ {
		next, err := RecordPayment(req, in, actor, s.now().UTC())
		if err != nil {
			s.observe(req.Type, ActionRecordPayment, "invalid")
			return Requisition{}, err
		}
		if receipt != nil {
			if next.Attachments, err = mergeAttachments(next.Attachments, []Attachment{*receipt}); err != nil {
				return Requisition{}, err
			}
		}
		next.Version = req.Version + 1
		err = s.store.Replace(ctx, next, req.Version)
		if err == nil {
			s.observe(req.Type, ActionRecordPayment, "committed")
			s.logger.InfoContext(ctx, "payment recorded",
				slog.String("requisition", req.ID),
				slog.Float64("amount", next.AmountPaid-req.AmountPaid),
				slog.String("status", string(next.PaymentStatus)))
			s.notifyPayment(ctx, next)
			return next, nil
		}
		if !errors.Is(err, ErrConflict) {
			s.observe(req.Type, ActionRecordPayment, "failed")
			return Requisition{}, persistenceError("record payment", err)
		}
		if attempt >= s.retries {
			s.observe(req.Type, ActionRecordPayment, "conflict")
			return Requisition{}, err
		}
		if req, err = s.store.Get(ctx, id); err != nil {
			return Requisition{}, err
		}
	}
}

// Get returns one requisition. Viewing is never restricted by stage.
func (s *Service) Get(ctx context.Context, id string) (Requisition, error) {
	return s.store.Get(ctx, id)
}

// List returns requisitions matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Requisition, error) {
	return s.store.List(ctx, filter)
}

// LegalActions loads a requisition and reports what actor may do with it.
func (s *Service) LegalActions(ctx context.Context, actor User, id string) (Requisition, []Action, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return Requisition{}, nil, err
	}
	return req, s.workflow.LegalActions(req, actor), nil
}

// SendReminders nudges the approvers of requisitions idle for longer than after.
func (s *Service) SendReminders(ctx context.Context, after time.Duration) (int, error) {
	stale, err := s.store.List(ctx, Filter{ActiveOnly: true, UpdatedBefore: s.now().UTC().Add(-after)})
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, req := range stale {
		if err := s.store.IncrementReminder(ctx, req.ID); err != nil {
			s.logger.WarnContext(ctx, "increment reminder", slog.String("requisition", req.ID), slog.Any("error", err))
			continue
		}
		s.notifyApprovers(ctx, req, "Approval Reminder")
		sent++
	}
	return sent, nil
}

func (s *Service) afterCommit(ctx context.Context, actor User, req Requisition, tr Transition, comment string) {
	if tr.Effects.Has(EffectNotifyNextApprovers) {
		s.notifyApprovers(ctx, req, "Approval Required")
	}
	if !tr.Effects.Has(EffectNotifyRequester) {
		return
	}
	var title, verb string
	switch req.Stage {
	case StageApproved:
		title, verb = "Requisition Approved", "approved"
	case StageRejected:
		title, verb = "Requisition Rejected", "rejected"
	case StageReturned:
		title, verb = "Requisition Returned", "returned to you for changes"
	default:
		title, verb = "Requisition Updated", "moved to "+Label(req.Stage)
	}
	body := fmt.Sprintf("%s %s was %s by %s.", Label(req.Type), req.ID, verb, actor.Name)
	if comment = strings.TrimSpace(comment); comment != "" {
		body += " Comment: " + comment
	}
	severity := tr.Severity
	if severity == "" {
		severity = SeverityInfo
	}
	s.notify(ctx, Notification{Recipient: req.Requester.ID, Title: title, Body: body, RelatedID: req.ID, Severity: severity})
}

func (s *Service) notifySplit(ctx context.Context, actor User, split SplitResult) {
	ids := make([]string, 0, len(split.Children))
	for _, child := range split.Children {
		ids = append(ids, child.ID)
	}
	body := fmt.Sprintf("%s was split by supplier into %s by %s.", split.Parent.ID, strings.Join(ids, ", "), actor.Name)
	s.notify(ctx, Notification{Recipient: split.Parent.Requester.ID, Title: "Requisition Split", Body: body, RelatedID: split.Parent.ID, Severity: SeverityInfo})
	for _, child := range split.Children {
		s.notifyApprovers(ctx, child, "Approval Required")
	}
}

func (s *Service) notifyApprovers(ctx context.Context, req Requisition, title string) {
	body := fmt.Sprintf("%s %s from %s (%s) is waiting for you at %s.",
		Label(req.Type), req.ID, req.Requester.Name, FormatAmount(req.TotalCost), Label(req.Stage))
	for _, user := range s.approvers(ctx, req) {
		s.notify(ctx, Notification{Recipient: user.ID, Title: title, Body: body, RelatedID: req.ID, Severity: SeverityInfo})
	}
}

func (s *Service) notifyPayment(ctx context.Context, req Requisition) {
	severity := SeverityInfo
	if req.PaymentStatus == PaymentFullyPaid {
		severity = SeveritySuccess
	}
	body := fmt.Sprintf("Payment recorded on %s. Paid %s of %s, outstanding %s.",
		req.ID, FormatAmount(req.AmountPaid), FormatAmount(req.TotalCost), FormatAmount(req.Outstanding()))
	s.notify(ctx, Notification{Recipient: req.Requester.ID, Title: "Payment Recorded", Body: body, RelatedID: req.ID, Severity: severity})
}

// approvers resolves the identities that hold req's current stage.
func (s *Service) approvers(ctx context.Context, req Requisition) []User {
	if s.directory == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []User
	for _, role := range StageRoles(req.Stage) {
		users, err := s.directory.UsersByRole(ctx, role)
		if err != nil {
			s.logger.WarnContext(ctx, "resolve approvers", slog.String("role", string(role)), slog.Any("error", err))
			continue
		}
		for _, user := range users {
			if seen[user.ID] || !s.workflow.Holds(req, user) {
				continue
			}
			seen[user.ID] = true
			out = append(out, user)
		}
	}
	return out
}

// notify is fire-and-forget: failures are logged and counted, never returned.
func (s *Service) notify(ctx context.Context, n Notification) {
	if s.notifier == nil || n.Recipient == "" {
		return
	}
	if n.At.IsZero() {
		n.At = s.now().UTC()
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("recipient", n.Recipient), slog.String("requisition", n.RelatedID), slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.ObserveNotificationFailure()
		}
	}
}

func (s *Service) observe(t Type, action Action, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAction(t, action, outcome)
	}
}

// ingest stores uploads concurrently; the action proceeds only once all of them finished.
func (s *Service) ingest(ctx context.Context, actor User, uploads []Upload) ([]Attachment, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if s.attachments == nil {
		return nil, invalid("attachments", "attachments are not accepted")
	}
	names := make(map[string]bool, len(uploads))
	for _, up := range uploads {
		name := strings.TrimSpace(up.Name)
		if name == "" || up.Body == nil {
			return nil, invalid("attachments", "every attachment needs a name and content")
		}
		if names[name] {
			return nil, invalid("attachments", "duplicate attachment name "+name)
		}
		names[name] = true
	}

	now := s.now().UTC()
	out := make([]Attachment, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		g.Go(func() error {
			name := strings.TrimSpace(up.Name)
			blob, err := s.attachments.Put(gctx, name, up.ContentType, up.Body)
			if err != nil {
				return fmt.Errorf("store attachment %s: %w", name, err)
			}
			out[i] = Attachment{
				Name:        name,
				Ref:         blob.Ref,
				ContentType: up.ContentType,
				Checksum:    blob.Checksum,
				Size:        blob.Size,
				AddedBy:     actor.ID,
				AddedAt:     now,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, persistenceError("ingest attachments", err)
	}
	return out, nil
}

// mergeAttachments adds new attachments; a name may only ever hold one content.
func mergeAttachments(existing, added []Attachment) ([]Attachment, error) {
	out := append([]Attachment(nil), existing...)
	for _, att := range added {
		duplicate := false
		for _, current := range out {
			if current.Name != att.Name {
				continue
			}
			if current.Checksum != att.Checksum {
				return nil, invalid("attachments", "an attachment named "+att.Name+" already exists")
			}
			duplicate = true
		}
		if !duplicate {
			out = append(out, att)
		}
	}
	return out, nil
}

func preparePayload(req Requisition, tr Transition, in Payload) (Payload, error) {
	out := Payload{
		Comment:    strings.TrimSpace(in.Comment),
		Title:      strings.TrimSpace(in.Title),
		Department: strings.TrimSpace(in.Department),
	}
	if tr.Effects.Has(EffectRequireComment) && out.Comment == "" {
		return Payload{}, invalid("comment", "a comment is required to "+strings.ToLower(Label(tr.Action)))
	}
	if in.Urgency != "" {
		urgency, err := normalizeUrgency(in.Urgency)
		if err != nil {
			return Payload{}, err
		}
		out.Urgency = urgency
	}
	if !tr.Effects.Has(EffectReplaceItems) {
		return out, nil
	}
	switch {
	case req.Type.IsEmergency():
		if in.Amount != nil {
			amount := safeNumber(*in.Amount)
			if amount <= 0 {
				return Payload{}, invalid("amount", "amount must be greater than zero")
			}
			out.Amount = &amount
		}
	case in.Items != nil:
		items, err := normalizeItems(req.Type, in.Items)
		if err != nil {
			return Payload{}, err
		}
		out.Items = items
	case tr.Action == ActionUpdateItems:
		return Payload{}, invalid("items", "items are required")
	}
	return out, nil
}

func buildItems(t Type, items []Item, amount float64) ([]Item, float64, error) {
	if t.IsEmergency() {
		amount = round2(safeNumber(amount))
		if amount <= 0 {
			return nil, 0, invalid("amount", "emergency requests need an amount greater than zero")
		}
		lump := Item{Name: Label(t), Quantity: 1, UnitCost: amount, Detail: GeneralDetail{}}
		return []Item{lump}, amount, nil
	}
	normalized, err := normalizeItems(t, items)
	if err != nil {
		return nil, 0, err
	}
	return normalized, TotalOf(normalized), nil
}

// normalizeItems sanitizes items and enforces the detail kind of t.
func normalizeItems(t Type, items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, invalid("items", "at least one item is required")
	}
	kind := KindFor(t)
	out := make([]Item, len(items))
	for i, item := range items {
		item = SanitizeItem(item)
		field := fmt.Sprintf("items[%d]", i)
		if item.Name == "" {
			return nil, invalid(field+".name", "item name is required")
		}
		switch {
		case item.Detail == nil:
			item.Detail = zeroDetail(kind)
		case item.Detail.Kind() != kind:
			return nil, invalid(field+".kind", fmt.Sprintf("%s details are not accepted on %s", Label(item.Detail.Kind()), Label(t)))
		}
		if d, ok := item.Detail.(HistologyDetail); ok && d.PatientName == "" {
			return nil, invalid(field+".patient_name", "patient name is required")
		}
		out[i] = item
	}
	return out, nil
}

func zeroDetail(kind ItemKind) ItemDetail {
	switch kind {
	case KindPharmacy:
		return PharmacyDetail{}
	case KindHistology:
		return HistologyDetail{}
	default:
		return GeneralDetail{}
	}
}

func normalizeUrgency(u Urgency) (Urgency, error) {
	switch Urgency(strings.ToUpper(string(u))) {
	case "":
		return UrgencyRoutine, nil
	case UrgencyRoutine, UrgencyUrgent, UrgencyCritical:
		return Urgency(strings.ToUpper(string(u))), nil
	}
	return "", invalid("urgency", "unknown urgency "+string(u))
}

func persistenceError(op string, err error) error {
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102"), strings.ToUpper(uuid.NewString()[:6]))
}
