package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wingman/internal/fingerprint"
	"wingman/internal/metrics"
	"wingman/internal/models/db_models"
	"wingman/internal/models/request_models"
	"wingman/internal/models/response_models"
	"wingman/internal/pricing"
	"wingman/internal/repositories"
	"wingman/pkg/jobqueue"
	"wingman/pkg/utils"
)

const (
	idempotencyScopeAnalysis = "analysis"
	recoverBatchSize         = 100
)

// Failure reasons stored on the record. They are shown to clients, so they
// never carry provider error text.
const (
	FailureProvider    = "ai_provider_error"
	FailureTimeout     = "ai_timeout"
	FailureUnparseable = "unparseable_output"
	FailurePersistence = "persistence_error"
	FailureDispatch    = "dispatch_failed"
)

type AnalysisSettings struct {
	Pricing        pricing.Config
	CacheRetention time.Duration
	IdempotencyTTL time.Duration
	AITimeout      time.Duration
	Temperature    float32
}

type AnalysisServiceInterface interface {
	Submit(ctx context.Context, accountID uuid.UUID, req request_models.CreateAnalysisRequest) (*response_models.AnalysisSubmitResponse, error)
	Quote(ctx context.Context, accountID uuid.UUID, req request_models.CreateAnalysisRequest) (*response_models.AnalysisQuoteResponse, error)
	Get(ctx context.Context, accountID, analysisID uuid.UUID) (*response_models.AnalysisStatusResponse, error)

	// Process is the jobqueue handler: it calls the AI provider for one
	// queued analysis and finalizes it as done or failed.
	Process(ctx context.Context, analysisID string) error
	RecoverQueued(ctx context.Context) (int, error)
}

type AnalysisService struct {
	db          *gorm.DB
	accounts    repositories.AccountRepository
	analyses    repositories.AnalysisRepository
	idempotency repositories.IdempotencyRepository
	ledger      LedgerServiceInterface
	quota       QuotaServiceInterface
	completion  utils.CompletionClientInterface
	dispatcher  jobqueue.Dispatcher
	settings    AnalysisSettings
	metrics     *metrics.Metrics
	clock       utils.Clock
	logger      *zap.Logger
	validate    *validator.Validate
}

func NewAnalysisService(
	db *gorm.DB,
	accounts repositories.AccountRepository,
	analyses repositories.AnalysisRepository,
	idempotency repositories.IdempotencyRepository,
	ledger LedgerServiceInterface,
	quota QuotaServiceInterface,
	completion utils.CompletionClientInterface,
	dispatcher jobqueue.Dispatcher,
	settings AnalysisSettings,
	m *metrics.Metrics,
	clock utils.Clock,
	logger *zap.Logger,
) AnalysisServiceInterface {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &AnalysisService{
		db:          db,
		accounts:    accounts,
		analyses:    analyses,
		idempotency: idempotency,
		ledger:      ledger,
		quota:       quota,
		completion:  completion,
		dispatcher:  dispatcher,
		settings:    settings,
		metrics:     m,
		clock:       clock,
		logger:      logger.Named("analysis"),
		validate:    v,
	}
}

// analysisPlan is everything decided before money moves.
type analysisPlan struct {
	input    pricing.Input
	route    pricing.Route
	quote    pricing.Quote
	freeTier bool
}

func (s *AnalysisService) Submit(ctx context.Context, accountID uuid.UUID, req request_models.CreateAnalysisRequest) (*response_models.AnalysisSubmitResponse, error) {
	if err := s.validateShape(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey == "" {
		return s.submit(ctx, accountID, req)
	}

	now := s.clock()
	claim, claimed, err := s.idempotency.Claim(ctx, accountID, idempotencyScopeAnalysis, req.IdempotencyKey,
		now.Unix(), now.Add(s.settings.IdempotencyTTL).Unix())
	if err != nil {
		return nil, utils.DBError("claim idempotency key", err)
	}
	if !claimed {
		if claim.Status != db_models.IdempotencyCompleted {
			return nil, utils.ErrIdempotencyInProgress
		}
		var replay response_models.AnalysisSubmitResponse
		if err := json.Unmarshal(claim.Response, &replay); err != nil {
			return nil, fmt.Errorf("decode stored response: %w", err)
		}
		s.logger.Info("idempotent replay",
			zap.String("account_id", accountID.String()),
			zap.String("analysis_id", replay.AnalysisID.String()))
		return &replay, nil
	}

	resp, err := s.submit(ctx, accountID, req)
	bg := context.WithoutCancel(ctx)
	if err != nil {
		if relErr := s.idempotency.Release(bg, claim.ID); relErr != nil {
			s.logger.Warn("failed to release idempotency key", zap.String("key", req.IdempotencyKey), zap.Error(relErr))
		}
		return nil, err
	}

	stored, mErr := json.Marshal(resp)
	if mErr == nil {
		mErr = s.idempotency.Complete(bg, claim.ID, datatypes.JSON(stored))
	}
	if mErr != nil {
		s.logger.Warn("failed to store idempotent response", zap.String("key", req.IdempotencyKey), zap.Error(mErr))
	}
	return resp, nil
}

func (s *AnalysisService) submit(ctx context.Context, accountID uuid.UUID, req request_models.CreateAnalysisRequest) (*response_models.AnalysisSubmitResponse, error) {
	account, err := s.quota.EnsureFresh(ctx, accountID)
	if err != nil {
		return nil, err
	}

	p, err := s.plan(account, req)
	if err != nil {
		return nil, err
	}
	if p.freeTier && s.quota.FreeRemaining(account) == 0 {
		return nil, &utils.QuotaExhaustedError{Limit: s.settings.Pricing.FreeMonthlyLimit, Used: account.FreeMonthlyUses}
	}

	fp := fingerprint.Compute(fingerprint.Params{
		AccountID: account.ID.String(),
		Text:      p.input.Text,
		Images:    p.input.Images,
		Mode:      string(p.route.Mode),
		Model:     p.route.ModelID(),
		Deep:      p.input.Toggles.Deep,
		Explain:   p.input.Toggles.Explain,
	})

	now := s.clock()
	if !req.Recompute {
		since := now.Add(-s.settings.CacheRetention).Unix()
		cached, err := s.analyses.FindCached(ctx, account.ID, fp, since)
		if err != nil {
			return nil, utils.DBError("cache lookup", err)
		}
		if cached != nil {
			s.metrics.CacheHit(string(account.Tier), string(cached.ResolvedMode))
			s.logger.Info("analysis served from cache",
				zap.String("account_id", account.ID.String()),
				zap.String("analysis_id", cached.ID.String()))
			return &response_models.AnalysisSubmitResponse{
				AnalysisID:       cached.ID,
				Status:           string(cached.Status),
				CreditsCharged:   0,
				CreditsRemaining: account.Balance,
				ResolvedMode:     cached.ResolvedMode,
				ResolvedModel:    cached.ResolvedModel,
				CacheHit:         true,
				Result:           cached.Result,
			}, nil
		}
	}

	record := &db_models.AnalysisRequest{
		BaseModel:       db_models.BaseModel{ID: uuid.New(), CreatedAt: now.Unix()},
		AccountID:       account.ID,
		Images:          datatypes.JSONSlice[string](p.input.Images),
		RequestedMode:   req.Mode,
		ResolvedMode:    p.route.Mode,
		ResolvedModel:   p.route.ModelID(),
		Tier:            account.Tier,
		DeepToggle:      p.input.Toggles.Deep,
		ExplainToggle:   p.input.Toggles.Explain,
		EstimatedTokens: p.quote.EstimatedTokens,
		Fingerprint:     fp,
		Status:          db_models.AnalysisQueued,
	}
	if p.input.Text != "" {
		text := p.input.Text
		record.InputText = &text
	}

	balance := account.Balance
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.freeTier {
			ok, err := s.accounts.WithTx(tx).MarkFreeUse(ctx, account.ID, s.settings.Pricing.FreeMonthlyLimit, now.Unix())
			if err != nil {
				return utils.DBError("mark free use", err)
			}
			if !ok {
				limit := s.settings.Pricing.FreeMonthlyLimit
				return &utils.QuotaExhaustedError{Limit: limit, Used: limit}
			}
			record.UsedFreeQuota = true
		} else {
			spend, err := s.ledger.WithTx(tx).Reserve(ctx, account.ID, p.quote.TotalCreditsRequired, db_models.LedgerActionSpend, map[string]any{
				"analysis_id": record.ID.String(),
				"mode":        p.route.Mode,
				"model":       record.ResolvedModel,
				"breakdown":   p.quote.Breakdown,
			})
			if err != nil {
				return err
			}
			record.CreditsCharged = p.quote.TotalCreditsRequired
			record.LedgerEntryID = &spend.EntryID
			balance = spend.Balance
		}

		if err := s.analyses.WithTx(tx).Create(ctx, record); err != nil {
			return utils.DBError("create analysis", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.CreditsCharged(string(account.Tier), record.CreditsCharged)

	if err := s.dispatcher.Enqueue(ctx, record.ID.String()); err != nil {
		s.logger.Error("failed to dispatch analysis",
			zap.String("analysis_id", record.ID.String()),
			zap.Error(err))
		_ = s.fail(ctx, record, FailureDispatch)
		return nil, fmt.Errorf("%w: %w", utils.ErrQueueUnavailable, err)
	}

	s.logger.Info("analysis queued",
		zap.String("account_id", account.ID.String()),
		zap.String("analysis_id", record.ID.String()),
		zap.String("tier", string(account.Tier)),
		zap.String("mode", string(record.ResolvedMode)),
		zap.String("model", record.ResolvedModel),
		zap.Int64("credits", record.CreditsCharged),
		zap.Int("estimated_tokens", record.EstimatedTokens))

	return &response_models.AnalysisSubmitResponse{
		AnalysisID:       record.ID,
		Status:           string(record.Status),
		CreditsCharged:   record.CreditsCharged,
		CreditsRemaining: balance,
		ResolvedMode:     record.ResolvedMode,
		ResolvedModel:    record.ResolvedModel,
		Breakdown:        p.quote.Breakdown,
		EstimatedTokens:  record.EstimatedTokens,
		FreeQuotaUsed:    record.UsedFreeQuota,
	}, nil
}

func (s *AnalysisService) Quote(ctx context.Context, accountID uuid.UUID, req request_models.CreateAnalysisRequest) (*response_models.AnalysisQuoteResponse, error) {
	if err := s.validateShape(req); err != nil {
		return nil, err
	}
	account, err := s.quota.EnsureFresh(ctx, accountID)
	if err != nil {
		return nil, err
	}
	p, err := s.plan(account, req)
	if err != nil {
		return nil, err
	}

	return &response_models.AnalysisQuoteResponse{
		ResolvedMode:       p.route.Mode,
		ResolvedModel:      p.route.ModelID(),
		CreditsRequired:    p.quote.TotalCreditsRequired,
		Breakdown:          p.quote.Breakdown,
		EstimatedTokens:    p.quote.EstimatedTokens,
		Balance:            account.Balance,
		FreeQuotaRemaining: s.quota.FreeRemaining(account),
	}, nil
}

func (s *AnalysisService) Get(ctx context.Context, accountID, analysisID uuid.UUID) (*response_models.AnalysisStatusResponse, error) {
	if _, err := s.quota.EnsureFresh(ctx, accountID); err != nil {
		return nil, err
	}

	record, err := s.analyses.FindByIDForAccount(ctx, analysisID, accountID)
	if err != nil {
		return nil, utils.DBError("find analysis", err)
	}
	if record == nil {
		return nil, utils.ErrAnalysisNotFound
	}

	resp := &response_models.AnalysisStatusResponse{
		AnalysisID:     record.ID,
		Status:         string(record.Status),
		ResolvedMode:   record.ResolvedMode,
		ResolvedModel:  record.ResolvedModel,
		CreditsCharged: record.CreditsCharged,
		Refunded:       record.RefundEntryID != nil,
		TokensActual:   record.TokensActual,
		FailureReason:  record.FailureReason,
		CreatedAt:      utils.FormatRFC3339(utils.FromUnixSeconds(record.CreatedAt)),
	}
	if record.Status == db_models.AnalysisDone {
		resp.Result = record.Result
	}
	if record.CompletedAt != nil {
		resp.CompletedAt = utils.FormatRFC3339(utils.FromUnixSeconds(*record.CompletedAt))
	}
	return resp, nil
}

func (s *AnalysisService) Process(ctx context.Context, analysisID string) error {
	id, err := uuid.Parse(analysisID)
	if err != nil {
		return fmt.Errorf("bad analysis id %q: %w", analysisID, err)
	}

	record, err := s.analyses.FindByID(ctx, id)
	if err != nil {
		// still queued; RecoverQueued will pick it up again
		return utils.DBError("load analysis", err)
	}
	if record == nil {
		s.logger.Warn("queued analysis not found", zap.String("analysis_id", analysisID))
		return nil
	}
	if record.Status != db_models.AnalysisQueued {
		return nil
	}

	text := ""
	if record.InputText != nil {
		text = *record.InputText
	}
	prompt := BuildPrompt(record.ResolvedMode, record.ExplainToggle, text, len(record.Images))
	provider, model := pricing.SplitModel(record.ResolvedModel)

	aiCtx, cancel := context.WithTimeout(ctx, s.settings.AITimeout)
	started := time.Now()
	res, err := s.completion.Complete(aiCtx, utils.CompletionRequest{
		Provider:     provider,
		Model:        model,
		SystemPrompt: prompt.System,
		Prompt:       prompt.User,
		Images:       record.Images,
		MaxTokens:    s.settings.Pricing.MaxOutputTokens[record.ResolvedMode],
		Temperature:  s.settings.Temperature,
	})
	timedOut := errors.Is(aiCtx.Err(), context.DeadlineExceeded)
	cancel()
	s.metrics.AIRequest(provider, model, err, time.Since(started))

	if err != nil {
		reason := FailureProvider
		if timedOut {
			reason = FailureTimeout
		}
		s.logger.Warn("ai provider failed",
			zap.String("analysis_id", analysisID),
			zap.String("provider", provider),
			zap.String("model", model),
			zap.Error(err))
		return s.fail(ctx, record, reason)
	}

	payload, err := parseAnalysis(res.Content)
	if err != nil {
		s.logger.Warn("unparseable ai output",
			zap.String("analysis_id", analysisID),
			zap.Int("content_len", len(res.Content)),
			zap.Error(err))
		return s.fail(ctx, record, FailureUnparseable)
	}

	done, err := s.analyses.MarkDone(ctx, record.ID, payload, res.TokensUsed, s.clock().Unix())
	if err != nil {
		s.logger.Error("failed to store analysis result", zap.String("analysis_id", analysisID), zap.Error(err))
		return s.fail(ctx, record, FailurePersistence)
	}
	if !done {
		return nil
	}

	s.metrics.AnalysisFinished(string(db_models.AnalysisDone), string(record.ResolvedMode))
	s.logger.Info("analysis done",
		zap.String("analysis_id", analysisID),
		zap.Int("tokens_actual", res.TokensUsed),
		zap.Int("estimated_tokens", record.EstimatedTokens))
	return nil
}

// fail moves a queued analysis to failed and gives back whatever it took:
// credits through a refund entry that references the spend, or the free use.
// The status change and the compensation commit together, so a record is
// refunded at most once.
func (s *AnalysisService) fail(ctx context.Context, record *db_models.AnalysisRequest, reason string) error {
	ctx = context.WithoutCancel(ctx)
	now := s.clock().Unix()

	var refund *LedgerResult
	transitioned := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.analyses.WithTx(tx).MarkFailed(ctx, record.ID, reason, now)
		if err != nil {
			return utils.DBError("mark analysis failed", err)
		}
		if !ok {
			return nil
		}
		transitioned = true

		if record.CreditsCharged > 0 && record.LedgerEntryID != nil {
			refund, err = s.ledger.WithTx(tx).Refund(ctx, record.AccountID, record.CreditsCharged, *record.LedgerEntryID, map[string]any{
				"analysis_id": record.ID.String(),
				"reason":      reason,
			})
			if err != nil {
				return err
			}
			if err := s.analyses.WithTx(tx).SetRefundEntry(ctx, record.ID, refund.EntryID); err != nil {
				return utils.DBError("link refund entry", err)
			}
		}
		if record.UsedFreeQuota {
			if err := s.accounts.WithTx(tx).UnmarkFreeUse(ctx, record.AccountID); err != nil {
				return utils.DBError("restore free use", err)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.ReconciliationRequired()
		s.logger.Error("manual reconciliation required",
			zap.String("analysis_id", record.ID.String()),
			zap.String("account_id", record.AccountID.String()),
			zap.Int64("credits", record.CreditsCharged),
			zap.Bool("free_quota", record.UsedFreeQuota),
			zap.Stringer("spend_entry_id", uuidOrNil(record.LedgerEntryID)),
			zap.String("reason", reason),
			zap.Error(err))
		return err
	}
	if !transitioned {
		return nil
	}

	s.metrics.AnalysisFinished(string(db_models.AnalysisFailed), string(record.ResolvedMode))
	fields := []zap.Field{
		zap.String("analysis_id", record.ID.String()),
		zap.String("reason", reason),
	}
	if refund != nil {
		s.metrics.CreditsRefunded(string(record.Tier), record.CreditsCharged)
		fields = append(fields,
			zap.Int64("refunded", record.CreditsCharged),
			zap.String("refund_entry_id", refund.EntryID.String()))
	}
	s.logger.Info("analysis failed", fields...)
	return nil
}

// RecoverQueued re-dispatches analyses still queued from before this process
// started. Process ignores ids that finish in the meantime.
func (s *AnalysisService) RecoverQueued(ctx context.Context) (int, error) {
	cutoff := s.clock().Add(-s.settings.AITimeout).Unix()
	stuck, err := s.analyses.ListQueued(ctx, cutoff, recoverBatchSize)
	if err != nil {
		return 0, utils.DBError("list queued analyses", err)
	}

	n := 0
	for _, r := range stuck {
		if err := s.dispatcher.Enqueue(ctx, r.ID.String()); err != nil {
			s.logger.Warn("failed to re-dispatch analysis", zap.String("analysis_id", r.ID.String()), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("re-dispatched queued analyses", zap.Int("count", n))
	}
	return n, nil
}

func (s *AnalysisService) validateShape(req request_models.CreateAnalysisRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &utils.ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag() + " check"}
		}
		return &utils.ValidationError{Field: "request", Reason: err.Error()}
	}

	text := strings.TrimSpace(req.Text())
	cfg := s.settings.Pricing
	if text == "" && len(req.Images) == 0 {
		return &utils.ValidationError{Field: "input_text", Reason: "text or at least one image is required"}
	}
	if utf8.RuneCountInString(text) > cfg.MaxInputChars {
		return &utils.ValidationError{Field: "input_text", Reason: "too long", MaxChars: cfg.MaxInputChars}
	}
	if len(req.Images) > cfg.MaxImages {
		return &utils.ValidationError{Field: "images", Reason: fmt.Sprintf("at most %d images allowed", cfg.MaxImages)}
	}
	return nil
}

// plan checks tier capability, then runs the router and the calculator.
func (s *AnalysisService) plan(account *db_models.Account, req request_models.CreateAnalysisRequest) (*analysisPlan, error) {
	cfg := s.settings.Pricing
	policy := cfg.Policy(account.Tier)

	if req.Mode == pricing.ModeDeep && !policy.SupportsDeepMode {
		return nil, &utils.ValidationError{
			Field:  "mode",
			Reason: fmt.Sprintf("deep mode is not available on the %s tier", account.Tier),
		}
	}

	toggles := req.Toggles
	if !policy.SupportsToggle {
		toggles = pricing.Toggles{}
	}
	in := pricing.Input{
		Text:    strings.TrimSpace(req.Text()),
		Images:  req.Images,
		Toggles: toggles,
	}

	route := pricing.ResolveMode(cfg, account.Tier, pricing.RouteInput{
		TextLen:       in.TextLen(),
		HasImages:     len(in.Images) > 0,
		Toggles:       toggles,
		RequestedMode: req.Mode,
	})
	quote := pricing.Calculate(cfg, account.Tier, route.Mode, in)

	return &analysisPlan{
		input:    in,
		route:    route,
		quote:    quote,
		freeTier: account.Tier == pricing.TierFree,
	}, nil
}

// parseAnalysis repairs and checks model output. The stored form is compact
// so replays of a stored response compare byte for byte.
func parseAnalysis(content string) (datatypes.JSON, error) {
	repaired, err := utils.RepairJSON(content)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrUnparseableJSON, err)
	}
	summary, _ := obj["summary"].(string)
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("%w: missing summary", utils.ErrUnparseableJSON)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(repaired)); err != nil {
		return nil, err
	}
	return datatypes.JSON(buf.Bytes()), nil
}

func uuidOrNil(id *uuid.UUID) fmt.Stringer {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
