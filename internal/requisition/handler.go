package requisition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/reqflow/internal/platform/httpx"
)

const (
	maxUploadBytes     = 32 << 20
	defaultListLimit   = 100
	defaultInboxLimit  = 50
	spreadsheetMIME    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	registerFileName   = "requisitions.xlsx"
	payloadFormField   = "payload"
	attachmentsField   = "attachments"
	signatureFileField = "signature"
	receiptFileField   = "receipt"
	importFileField    = "file"
)

// DocumentRenderer produces the printable form of a requisition.
type DocumentRenderer interface {
	Render(ctx context.Context, req Requisition) ([]byte, error)
}

// Spreadsheet exports the register and reads line items from workbooks.
type Spreadsheet interface {
	WriteRegister(w io.Writer, reqs []Requisition) error
	ReadItems(r io.Reader) ([]RawItem, error)
}

// Inbox lists delivered notifications for a recipient, newest first.
type Inbox interface {
	Recent(ctx context.Context, recipient string, limit int) ([]Notification, error)
}

// Handler exposes the requisition engine over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	documents DocumentRenderer
	sheets    Spreadsheet
	inbox     Inbox
	validator *validator.Validate
}

// NewHandler builds Handler instance. documents, sheets and inbox may be nil;
// their endpoints then answer 501.
func NewHandler(logger *slog.Logger, service *Service, documents DocumentRenderer, sheets Spreadsheet, inbox Inbox) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		documents: documents,
		sheets:    sheets,
		inbox:     inbox,
		validator: validator.New(),
	}
}

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requireActor)
		r.Get("/requisitions", h.handleList)
		r.Post("/requisitions", h.handleCreate)
		r.Get("/requisitions/export", h.handleExport)
		r.Get("/requisitions/{id}", h.handleGet)
		r.Get("/requisitions/{id}/actions", h.handleLegalActions)
		r.Post("/requisitions/{id}/actions", h.handleAction)
		r.Post("/requisitions/{id}/payments", h.handlePayment)
		r.Get("/requisitions/{id}/document", h.handleDocument)
		r.Post("/signatures/{pendingID}", h.handleConfirmSignature)
		r.Post("/items/import", h.handleImportItems)
		r.Get("/notifications", h.handleNotifications)
	})
}

func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ActorFromContext(r.Context()); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no acting user on request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// createRequest is the wire form of CreateInput. Numbers are decoded loosely
// and sanitized, so "" or "abc" become 0 instead of failing the request.
type createRequest struct {
	Type       Type      `json:"type" validate:"required"`
	Department string    `json:"department" validate:"required,max=120"`
	Urgency    Urgency   `json:"urgency" validate:"omitempty,oneof=ROUTINE URGENT CRITICAL"`
	Title      string    `json:"title" validate:"max=200"`
	Items      []RawItem `json:"items"`
	Amount     Number    `json:"amount"`
}

func (c createRequest) input() CreateInput {
	return CreateInput{
		Type:       c.Type,
		Department: c.Department,
		Urgency:    c.Urgency,
		Title:      c.Title,
		Items:      ItemsFromRaw(c.Items),
		Amount:     c.Amount.Float(),
	}
}

type actionRequest struct {
	Action     Action    `json:"action" validate:"required"`
	Comment    string    `json:"comment"`
	Items      []RawItem `json:"items"`
	Amount     *Number   `json:"amount"`
	Title      string   `json:"title" validate:"max=200"`
	Department string   `json:"department" validate:"max=120"`
	Urgency    Urgency  `json:"urgency" validate:"omitempty,oneof=ROUTINE URGENT CRITICAL"`
}

type signatureRequest struct {
	Password string `json:"password"`
}

type legalActionsResponse struct {
	RequisitionID string   `json:"requisition_id"`
	Stage         Stage    `json:"stage"`
	Version       int64    `json:"version"`
	Actions       []Action `json:"actions"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	reqs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []Requisition{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requisitions": reqs, "count": len(reqs)})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	var body createRequest
	uploads, done, err := decodeBody(r, &body, attachmentsField)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	defer done()
	if !h.valid(w, body) {
		return
	}
	in := body.input()
	in.Uploads = uploads
	out, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handleLegalActions(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	req, actions, err := h.service.LegalActions(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if actions == nil {
		actions = []Action{}
	}
	httpx.JSON(w, http.StatusOK, legalActionsResponse{
		RequisitionID: req.ID,
		Stage:         req.Stage,
		Version:       req.Version,
		Actions:       actions,
	})
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	var body actionRequest
	uploads, done, err := decodeBody(r, &body, attachmentsField)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	defer done()
	if !h.valid(w, body) {
		return
	}
	cmd := Command{
		RequisitionID: chi.URLParam(r, "id"),
		Action:        Action(strings.ToUpper(strings.TrimSpace(string(body.Action)))),
		Payload: Payload{
			Comment:    body.Comment,
			Items:      ItemsFromRaw(body.Items),
			Amount:     amountOf(body.Amount),
			Title:      body.Title,
			Department: body.Department,
			Urgency:    body.Urgency,
			Uploads:    uploads,
		},
	}
	out, err := h.service.Begin(r.Context(), actor, cmd)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOutcome(w, out)
}

func amountOf(n *Number) *float64 {
	if n == nil {
		return nil
	}
	v := n.Float()
	return &v
}

func (h *Handler) handleConfirmSignature(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	var body signatureRequest
	uploads, done, err := decodeBody(r, &body, signatureFileField)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	defer done()
	in := SignatureInput{Password: body.Password}
	if len(uploads) > 0 {
		in.Image = &uploads[0]
	}
	out, err := h.service.ConfirmSignature(r.Context(), actor, chi.URLParam(r, "pendingID"), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOutcome(w, out)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	var in PaymentInput
	uploads, done, err := decodeBody(r, &in, receiptFileField)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	defer done()
	if !h.valid(w, in) {
		return
	}
	if len(uploads) > 0 {
		in.Receipt = &uploads[0]
	}
	req, err := h.service.RecordPayment(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "document rendering is not configured")
		return
	}
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	pdf, err := h.documents.Render(r.Context(), req)
	if err != nil {
		h.logger.Error("render requisition", slog.String("requisition", req.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "the document could not be generated")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+req.ID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.sheets == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "spreadsheet export is not configured")
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	filter.Limit = 0
	reqs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := h.sheets.WriteRegister(&buf, reqs); err != nil {
		h.logger.Error("export register", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "the register could not be generated")
		return
	}
	w.Header().Set("Content-Type", spreadsheetMIME)
	w.Header().Set("Content-Disposition", `attachment; filename="`+registerFileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleImportItems(w http.ResponseWriter, r *http.Request) {
	if h.sheets == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "spreadsheet import is not configured")
		return
	}
	var ignored struct{}
	uploads, done, err := decodeBody(r, &ignored, importFileField)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	defer done()
	if len(uploads) == 0 {
		httpx.ValidationProblem(w, "upload a workbook in the \"file\" field", map[string]string{importFileField: "required"})
		return
	}
	raws, err := h.sheets.ReadItems(uploads[0].Body)
	if err != nil {
		httpx.ValidationProblem(w, err.Error(), map[string]string{importFileField: "unreadable workbook"})
		return
	}
	items := ItemsFromRaw(raws)
	if items == nil {
		items = []Item{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "notification inbox is not configured")
		return
	}
	actor, _ := ActorFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	items, err := h.inbox.Recent(r.Context(), actor.ID, limit)
	if err != nil {
		h.logger.Error("list notifications", slog.String("user", actor.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "notifications could not be loaded")
		return
	}
	if items == nil {
		items = []Notification{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) respondOutcome(w http.ResponseWriter, out Outcome) {
	status := http.StatusOK
	if out.Status == OutcomePending {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, out)
}

// valid runs struct validation and writes a 400 problem when it fails.
func (h *Handler) valid(w http.ResponseWriter, v any) bool {
	err := h.validator.Struct(v)
	if err == nil {
		return true
	}
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fieldErr := range verrs {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}
	}
	httpx.ValidationProblem(w, "Nothing was saved: please correct the highlighted fields.", fields)
	return false
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := httpx.StatusFor(toHTTPError(err))
	if status == http.StatusInternalServerError {
		h.logger.Error("requisition request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		httpx.ValidationProblem(w, UserMessage(err), map[string]string{verr.Field: verr.Message})
		return
	}
	httpx.Problem(w, status, title, UserMessage(err))
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return httpx.ErrValidation
	case errors.Is(err, ErrForbidden):
		return httpx.ErrForbidden
	case errors.Is(err, ErrPendingNotFound), errors.Is(err, ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrConflict):
		return httpx.ErrConflict
	default:
		return err
	}
}

func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		Type:        Type(strings.ToUpper(q.Get("type"))),
		Stage:       Stage(strings.ToUpper(q.Get("stage"))),
		RequesterID: q.Get("requester"),
		ParentID:    q.Get("parent"),
		ActiveOnly:  q.Get("active") == "true",
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return Filter{}, invalid("type", "unknown requisition type")
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	filter.Limit = limit
	return filter, nil
}

// decodeBody reads a JSON body, or a multipart form whose "payload" field holds
// the JSON, and opens the files posted under fileField. done releases them.
func decodeBody(r *http.Request, target any, fileField string) ([]Upload, func(), error) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.ContentLength == 0 {
			return nil, noop, nil
		}
		return nil, noop, httpx.DecodeJSON(r, target)
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, noop, err
	}
	form := r.MultipartForm
	cleanup := func() { _ = form.RemoveAll() }
	if raw := r.FormValue(payloadFormField); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(target); err != nil {
			cleanup()
			return nil, noop, err
		}
	}
	var (
		uploads []Upload
		files   []multipart.File
	)
	release := func() {
		for _, f := range files {
			_ = f.Close()
		}
		cleanup()
	}
	for _, fh := range form.File[fileField] {
		f, err := fh.Open()
		if err != nil {
			release()
			return nil, noop, err
		}
		files = append(files, f)
		uploads = append(uploads, Upload{
			Name:        fh.Filename,
			ContentType: uploadType(fh),
			Body:        f,
		})
	}
	return uploads, release, nil
}

func uploadType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
