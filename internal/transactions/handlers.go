package transactions

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Aidin1998/txconsole/api/responses"
	"github.com/Aidin1998/txconsole/common/auth"
	"github.com/Aidin1998/txconsole/internal/transactions/export"
	"github.com/Aidin1998/txconsole/internal/transactions/moderation"
	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler provides HTTP handlers for the transaction console
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger.Named("transactions_http")}
}

// StatusRequest changes the status of one record
type StatusRequest struct {
	Type     string  `json:"type" binding:"omitempty,txtype"`
	Status   string  `json:"status" binding:"required,txstatus"`
	Notes    *string `json:"notes" binding:"omitempty,max=2000"`
	Override bool    `json:"override"`
}

// FlagRequest flags or unflags one record
type FlagRequest struct {
	Type   string  `json:"type" binding:"omitempty,txtype"`
	Reason *string `json:"reason" binding:"omitempty,max=2000"`
}

// NotesRequest is the body of approve
type NotesRequest struct {
	Type  string  `json:"type" binding:"omitempty,txtype"`
	Notes *string `json:"notes" binding:"omitempty,max=2000"`
}

// CancelRequest is the body of cancel
type CancelRequest struct {
	Type   string  `json:"type" binding:"omitempty,txtype"`
	Reason *string `json:"reason" binding:"omitempty,max=2000"`
}

// VerifyRequest carries the proof of settlement: an on-chain hash for crypto
// ledgers or a bank reference for fiat transfers.
type VerifyRequest struct {
	Type   string  `json:"type" binding:"omitempty,txtype"`
	Proof  string  `json:"proof" binding:"omitempty,max=256"`
	TxHash string  `json:"txHash" binding:"omitempty,max=256"`
	Notes  *string `json:"notes" binding:"omitempty,max=2000"`
}

type BulkStatusRequest struct {
	TransactionIDs []moderation.BulkItem `json:"transactionIds" binding:"required,min=1,dive"`
	Status         string                `json:"status" binding:"required,txstatus"`
	Notes          *string               `json:"notes" binding:"omitempty,max=2000"`
	Override       bool                  `json:"override"`
}

type BulkFlagRequest struct {
	TransactionIDs []moderation.BulkItem `json:"transactionIds" binding:"required,min=1,dive"`
	Reason         *string               `json:"reason" binding:"omitempty,max=2000"`
}

// ListTransactions returns the unified, paginated listing
// @Summary List transactions
// @Description Merged listing over conversions, wallet transfers and fiat transfers
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page (max 100)" default(20)
// @Param type query string false "all|incoming|outgoing|conversion|buy_sell|wallet_transfer|fiat_transfer"
// @Param status query string false "pending|processing|completed|failed|cancelled"
// @Param currency query string false "Asset or currency code"
// @Param asset query string false "crypto|fiat"
// @Param dateFrom query string false "RFC3339 or YYYY-MM-DD"
// @Param dateTo query string false "RFC3339 or YYYY-MM-DD, inclusive"
// @Param flagged query bool false "Only flagged or unflagged records"
// @Param search query string false "Free text search"
// @Param sortBy query string false "created_at|amount|status" default(created_at)
// @Param sortOrder query string false "asc|desc" default(desc)
// @Success 200 {object} responses.PaginatedResponse
// @Failure 400 {object} errors.ProblemDetails
// @Failure 503 {object} errors.ProblemDetails
// @Router /transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	sort, err := source.ParseSort(c.Query("sortBy"), c.Query("sortOrder"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	page, err := positiveQuery(c, "page", 1)
	if err != nil {
		_ = c.Error(err)
		return
	}
	limit, err := positiveQuery(c, "limit", h.service.Options().DefaultPageLimit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.service.List(c.Request.Context(), ListQuery{Filter: filter, Sort: sort, Page: page, Limit: limit})
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Paginated(c, res.Records, responses.CreatePaginationMeta(res.Page, res.Limit, res.Total), res.Unavailable)
}

// GetStats returns aggregated counts and volumes
// @Summary Transaction statistics
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param type query string false "Listing type filter"
// @Param dateFrom query string false "RFC3339 or YYYY-MM-DD"
// @Param dateTo query string false "RFC3339 or YYYY-MM-DD, inclusive"
// @Success 200 {object} StatsSummary
// @Failure 400 {object} errors.ProblemDetails
// @Router /transactions/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	summary, err := h.service.Stats(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Success(c, summary)
}

// GetTransaction returns one record
// @Summary Get transaction
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Record id"
// @Param type query string false "transaction_history|wallet_transfer|fiat_transfer"
// @Success 200 {object} models.UnifiedTransaction
// @Failure 400 {object} errors.ProblemDetails
// @Failure 404 {object} errors.ProblemDetails
// @Router /transactions/{id} [get]
func (h *Handler) GetTransaction(c *gin.Context) {
	target, err := parseTarget(c, "")
	if err != nil {
		_ = c.Error(err)
		return
	}
	rec, err := h.service.Get(c.Request.Context(), target)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Success(c, rec)
}

// GetTransactionUser resolves the end user of a record
// @Summary Get transaction user
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Record id"
// @Param type query string false "transaction_history|wallet_transfer|fiat_transfer"
// @Success 200 {object} models.User
// @Failure 404 {object} errors.ProblemDetails
// @Router /transactions/{id}/user [get]
func (h *Handler) GetTransactionUser(c *gin.Context) {
	target, err := parseTarget(c, "")
	if err != nil {
		_ = c.Error(err)
		return
	}
	user, err := h.service.User(c.Request.Context(), target)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Success(c, user)
}

// GetTransactionAudit returns the audit trail of a record
// @Summary Get transaction audit trail
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Record id"
// @Param type query string false "transaction_history|wallet_transfer|fiat_transfer"
// @Success 200 {array} audit.Event
// @Failure 404 {object} errors.ProblemDetails
// @Router /transactions/{id}/audit [get]
func (h *Handler) GetTransactionAudit(c *gin.Context) {
	target, err := parseTarget(c, "")
	if err != nil {
		_ = c.Error(err)
		return
	}
	events, err := h.service.History(c.Request.Context(), target)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Success(c, events)
}

// VerifyAuditChain checks the audit hash chain
// @Summary Verify audit chain integrity
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param fromSeq query int false "First sequence number" default(0)
// @Param toSeq query int false "Last sequence number, 0 for the end" default(0)
// @Success 200 {object} audit.IntegrityReport
// @Router /transactions/audit/integrity [get]
func (h *Handler) VerifyAuditChain(c *gin.Context) {
	from, err := int64Query(c, "fromSeq")
	if err != nil {
		_ = c.Error(err)
		return
	}
	to, err := int64Query(c, "toSeq")
	if err != nil {
		_ = c.Error(err)
		return
	}
	report, err := h.service.VerifyAudit(c.Request.Context(), from, to)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Success(c, report)
}

// UpdateStatus sets the status of one record
// @Summary Update transaction status
// @Tags Moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Record id"
// @Param request body StatusRequest true "New status"
// @Success 200 {object} models.UnifiedTransaction
// @Failure 400 {object} errors.ProblemDetails
// @Failure 404 {object} errors.ProblemDetails
// @Failure 409 {object} errors.ProblemDetails
// @Router /transactions/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	h.moderate(c, req.Type, func(actor models.Actor, target moderation.Target) (*models.UnifiedTransaction, error) {
		return h.service.UpdateStatus(c.Request.Context(), actor, moderation.StatusCommand{
			Target:   target,
			Status:   models.Status(req.Status),
			Notes:    req.Notes,
			Override: req.Override,
		})
	})
}

// Approve completes one record
// @Summary Approve transaction
// @Tags Moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Record id"
// @Param request body NotesRequest false "Optional notes"
// @Success 200 {object} models.UnifiedTransaction
// @Failure 400 {object} errors.ProblemDetails
// @Failure 404 {object} errors.ProblemDetails
// @Router /transactions/{id}/approve [post]
func (h *Handler) Approve(c *gin.Context) {
	var req NotesRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	h.moderate(c, req.Type, func(actor models.Actor, target moderation.Target) (*models.UnifiedTransaction, error) {
		return h.service.Approve(c.Request.Context(), actor, target, req.Notes)
	})
}

// Cancel cancels one record
// @Summary Cancel transaction
// @Tags Moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Record id"
// @Param request body CancelRequest false "Optional reason"
// @Success 200 {object} models.UnifiedTransaction
// @Failure 400 {object} errors.ProblemDetails
// @Failure 404 {object} errors.ProblemDetails
// @Router /transactions/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	h.moderate(c, req.Type, func(actor models.Actor, target moderation.Target) (*models.UnifiedTransaction, error) {
		return h.service.Cancel(c.Request.Context(), actor, target, req.Reason)
	})
}

// Verify completes one record against a proof of settlement
// @Summary Verify transaction
// @Tags Moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Record id"
// @Param request body VerifyRequest true "Proof and notes"
// @Success 200 {object} models.UnifiedTransaction
// @Failure 400 {object} errors.ProblemDetails
// @Failure 404 {object} errors.ProblemDetails
// @Router /transactions/{id}/verify [post]
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	proof := req.Proof
	if proof == "" {
		proof = req.TxHash
	}
	h.moderate(c, req.Type, func(actor models.Actor, target moderation.Target) (*models.UnifiedTransaction, error) {
		return h.service.Verify(c.Request.Context(), actor, moderation.VerifyCommand{Target: target, Proof: proof, Notes: req.Notes})
	})
}

// Flag flags one record
// @Summary Flag transaction
// @Tags Moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Record id"
// @Param request body FlagRequest false "Optional reason"
// @Success 200 {object} models.UnifiedTransaction
// @Failure 400 {object} errors.ProblemDetails
// @Failure 404 {object} errors.ProblemDetails
// @Router /transactions/{id}/flag [post]
func (h *Handler) Flag(c *gin.Context) {
	var req FlagRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	h.moderate(c, req.Type, func(actor models.Actor, target moderation.Target) (*models.UnifiedTransaction, error) {
		return h.service.Flag(c.Request.Context(), actor, target, req.Reason)
	})
}

// Unflag clears the flag of one record
// @Summary Unflag transaction
// @Tags Moderation
// @Produce json
// @Security BearerAuth
// @Param id path int true "Record id"
// @Param type query string false "transaction_history|wallet_transfer|fiat_transfer"
// @Success 200 {object} models.UnifiedTransaction
// @Failure 404 {object} errors.ProblemDetails
// @Router /transactions/{id}/flag [delete]
func (h *Handler) Unflag(c *gin.Context) {
	var req FlagRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	h.moderate(c, req.Type, func(actor models.Actor, target moderation.Target) (*models.UnifiedTransaction, error) {
		return h.service.Unflag(c.Request.Context(), actor, target)
	})
}

// BulkUpdateStatus sets one status on many records
// @Summary Bulk status update
// @Description Items are independent; failures are reported per item
// @Tags Moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BulkStatusRequest true "Items and status"
// @Success 200 {object} moderation.BulkStatusResult
// @Failure 400 {object} errors.ProblemDetails
// @Router /transactions/bulk/status [post]
func (h *Handler) BulkUpdateStatus(c *gin.Context) {
	var req BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	actor, _ := auth.ActorFrom(c)
	res, err := h.service.BulkUpdateStatus(c.Request.Context(), actor, req.TransactionIDs, models.Status(req.Status), req.Notes, req.Override)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Success(c, res)
}

// BulkFlag flags many records
// @Summary Bulk flag
// @Tags Moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BulkFlagRequest true "Items and reason"
// @Success 200 {object} moderation.BulkFlagResult
// @Failure 400 {object} errors.ProblemDetails
// @Router /transactions/bulk/flag [post]
func (h *Handler) BulkFlag(c *gin.Context) {
	var req BulkFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	actor, _ := auth.ActorFrom(c)
	res, err := h.service.BulkFlag(c.Request.Context(), actor, req.TransactionIDs, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Success(c, res)
}

// ExportTransactions downloads the filtered listing
// @Summary Export transactions
// @Description Same filters as the listing. X-Export-Truncated is true when more records matched than were exported
// @Tags Transactions
// @Produce text/csv
// @Produce json
// @Security BearerAuth
// @Param format query string false "csv|json" default(csv)
// @Success 200 {file} file
// @Header 200 {integer} X-Total-Count "Records matching the filter"
// @Header 200 {integer} X-Exported-Count "Records in the file"
// @Header 200 {boolean} X-Export-Truncated "Whether the file is incomplete"
// @Failure 400 {object} errors.ProblemDetails
// @Router /transactions/export [get]
func (h *Handler) ExportTransactions(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	sort, err := source.ParseSort(c.Query("sortBy"), c.Query("sortOrder"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	snap, err := h.service.Export(c.Request.Context(), filter, sort)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", `attachment; filename="`+format.FileName(snap.TakenAt)+`"`)
	c.Header("X-Total-Count", strconv.FormatInt(snap.Total, 10))
	c.Header("X-Exported-Count", strconv.Itoa(len(snap.Records)))
	c.Header("X-Export-Truncated", strconv.FormatBool(snap.Truncated))
	if len(snap.Unavailable) > 0 {
		kinds := make([]string, 0, len(snap.Unavailable))
		for _, k := range snap.Unavailable {
			kinds = append(kinds, k.APIType())
		}
		c.Header("X-Unavailable-Sources", strings.Join(kinds, ","))
	}
	c.Status(http.StatusOK)

	if err := export.Write(c.Writer, format, snap.Records); err != nil {
		h.logger.Error("export write failed", zap.String("format", string(format)), zap.Error(err))
	}
}

func (h *Handler) moderate(c *gin.Context, bodyType string, apply func(models.Actor, moderation.Target) (*models.UnifiedTransaction, error)) {
	target, err := parseTarget(c, bodyType)
	if err != nil {
		_ = c.Error(err)
		return
	}
	actor, _ := auth.ActorFrom(c)
	rec, err := apply(actor, target)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Success(c, rec)
}

func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dst)
}

// parseTarget reads :id and the record type from the body or ?type=.
func parseTarget(c *gin.Context, bodyType string) (moderation.Target, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return moderation.Target{}, errors.Invalid.Explain("id must be a positive integer").WithField("numeric", "id", "must be a positive integer")
	}
	typ := bodyType
	if typ == "" {
		typ = c.Query("type")
	}
	target := moderation.Target{ID: id}
	if typ != "" {
		kind, ok := models.ParseSourceKind(typ)
		if !ok {
			return target, errors.Invalid.Explain("unknown type %q", typ).WithField("txtype", "type", "unknown type")
		}
		target.Kind = kind
	}
	return target, nil
}

func parseFilter(c *gin.Context) (source.Filter, error) {
	var f source.Filter
	var err error

	if f.Type, err = source.ParseTypeFilter(c.Query("type")); err != nil {
		return f, err
	}
	if f.Asset, err = source.ParseAssetClass(c.Query("asset")); err != nil {
		return f, err
	}
	if s := strings.TrimSpace(c.Query("status")); s != "" && !strings.EqualFold(s, "all") {
		status := models.Status(strings.ToLower(s))
		f.Status = &status
	}
	if cur := strings.TrimSpace(c.Query("currency")); cur != "" && !strings.EqualFold(cur, "all") {
		f.Currency = strings.ToUpper(cur)
	}
	if f.DateFrom, err = parseDate(c.Query("dateFrom"), "dateFrom", false); err != nil {
		return f, err
	}
	if f.DateTo, err = parseDate(c.Query("dateTo"), "dateTo", true); err != nil {
		return f, err
	}
	if raw := strings.TrimSpace(c.Query("flagged")); raw != "" {
		flagged, perr := strconv.ParseBool(raw)
		if perr != nil {
			return f, errors.Invalid.Explain("flagged must be true or false").WithField("boolean", "flagged", "must be true or false")
		}
		f.Flagged = &flagged
	}
	f.Search = strings.TrimSpace(c.Query("search"))
	return f, f.Validate()
}

const dateOnly = "2006-01-02"

// parseDate accepts RFC3339 or a calendar date. A calendar date used as an
// upper bound covers the whole day.
func parseDate(raw, field string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		return nil, errors.Invalid.Explain("%s must be RFC3339 or YYYY-MM-DD", field).WithField("datetime", field, "invalid date")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func positiveQuery(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.Invalid.Explain("%s must be a positive integer", name).WithField("min", name, "must be a positive integer")
	}
	return n, nil
}

func int64Query(c *gin.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.Invalid.Explain("%s must be a non-negative integer", name).WithField("min", name, "must be a non-negative integer")
	}
	return n, nil
}
