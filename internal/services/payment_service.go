package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"event-registration/internal/lib/logger/sl"
	"event-registration/internal/services/gateway"
	"event-registration/internal/status"
	"event-registration/internal/store"
	"event-registration/models"
	"event-registration/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStore is the persistence the orchestrator needs.
type PaymentStore interface {
	CreatePayerWithRegistrations(ctx context.Context, payer models.PayerDraft, regs []models.RegistrationDraft) (*models.CreatedPayer, error)
	AttachReference(ctx context.Context, payerID string, registrationIDs []string, reference string) error
	TransitionPayer(ctx context.Context, payerID string, from, to models.PayerStatus, opts store.TransitionOptions) (bool, error)
	TransitionRegistrationsForPayer(ctx context.Context, payerID string, to models.RegistrationStatus, paymentID string) (int64, error)
	RecordUnderpayment(ctx context.Context, payerID string, amountPaid decimal.Decimal) error
	FindPayerByID(ctx context.Context, id string) (*models.Payer, error)
	FindPayerByReference(ctx context.Context, reference string) (*models.Payer, error)
	FindEvent(ctx context.Context, id string) (*models.Event, error)
	CountPersons(ctx context.Context, ids []string) (int64, error)
}

// Correlator resolves a gateway reference to a payer id without a DB lookup.
type Correlator interface {
	Put(ctx context.Context, reference, payerID string, ttl time.Duration) error
	Get(ctx context.Context, reference string) (string, error)
	Delete(ctx context.Context, reference string) error
}

type GatewayResolver interface {
	Gateway(provider gateway.Provider) (gateway.Gateway, error)
	Primary() (gateway.Gateway, error)
}

type PaymentConfig struct {
	PublicURL       string
	Currency        string
	ReferencePrefix string
	CorrelationTTL  time.Duration
}

const statusUpdateType = "payment_status"

// PaymentService drives a payer from pending to a terminal state. Every
// verification trigger goes through Verify, whose outcome is decided by a
// guarded store transition, so repeated or concurrent calls are safe.
type PaymentService struct {
	store     PaymentStore
	cache     Correlator
	gateways  GatewayResolver
	publisher StatusPublisher
	cfg       PaymentConfig
	log       *slog.Logger

	newReference func() string
}

func NewPaymentService(
	st PaymentStore,
	cache Correlator,
	gateways GatewayResolver,
	publisher StatusPublisher,
	cfg PaymentConfig,
	log *slog.Logger,
) *PaymentService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if cfg.ReferencePrefix == "" {
		cfg.ReferencePrefix = "EVT"
	}
	if cfg.CorrelationTTL <= 0 {
		cfg.CorrelationTTL = 3 * time.Minute
	}

	s := &PaymentService{
		store:     st,
		cache:     cache,
		gateways:  gateways,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
	s.newReference = func() string {
		return fmt.Sprintf("%s-%s", s.cfg.ReferencePrefix, uuid.NewString())
	}
	return s
}

// Initiate validates the request, records a pending payer with one
// registration per person and opens a checkout with the chosen gateway.
// When the gateway fails the records stay pending and the reaper removes them.
func (s *PaymentService) Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResult, error) {
	const op = "services.PaymentService.Initiate"

	personIDs, err := normalizeInitiate(&req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gw, err := s.resolveGateway(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	provider := string(gw.Provider())

	if err := s.validateReferences(ctx, req.EventID, personIDs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	drafts := make([]models.RegistrationDraft, 0, len(personIDs))
	for _, id := range personIDs {
		drafts = append(drafts, models.RegistrationDraft{EventID: req.EventID, PersonID: id})
	}

	created, err := s.store.CreatePayerWithRegistrations(ctx, models.PayerDraft{
		Name:           req.Name,
		Email:          req.Email,
		ExpectedAmount: req.Amount,
		Currency:       s.cfg.Currency,
		Provider:       provider,
	}, drafts)
	if err != nil {
		monitoring.TrackInitiation(provider, "error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reference := s.newReference()
	log := s.log.With(
		slog.String("op", op),
		slog.String("payer_id", created.PayerID),
		slog.String("reference", reference),
		slog.String("provider", provider),
	)

	checkout, err := gw.Initialize(ctx, &gateway.InitRequest{
		Reference:   reference,
		Amount:      req.Amount,
		Currency:    s.cfg.Currency,
		Email:       req.Email,
		Name:        req.Name,
		CallbackURL: s.callbackURL(provider),
		Metadata: map[string]string{
			"payer_id": created.PayerID,
			"event_id": req.EventID,
		},
	})
	if err != nil {
		log.Error("failed to initialize checkout", sl.Err(err))
		monitoring.TrackInitiation(provider, "error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Some gateways answer with their own reference; that is the one echoed
	// back on callbacks and webhooks.
	if checkout.Reference != "" {
		reference = checkout.Reference
	}

	if err := s.store.AttachReference(ctx, created.PayerID, created.RegistrationIDs, reference); err != nil {
		log.Error("failed to attach reference", slog.String("gateway_reference", reference), sl.Err(err))
		monitoring.TrackInitiation(provider, "error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Put(ctx, reference, created.PayerID, s.cfg.CorrelationTTL); err != nil {
		log.Warn("failed to cache correlation", slog.String("gateway_reference", reference), sl.Err(err))
	}

	monitoring.TrackInitiation(provider, "ok")
	log.Info("payment initiated", slog.Int("registrations", len(created.RegistrationIDs)))

	return &models.InitiateResult{
		PayerID:         created.PayerID,
		RegistrationIDs: created.RegistrationIDs,
		Reference:       reference,
		CheckoutURL:     checkout.CheckoutURL,
		Provider:        provider,
	}, nil
}

// Verify asks the payer's gateway for the transaction state and applies it.
// It is shared by the browser redirect, status polling and webhooks.
func (s *PaymentService) Verify(ctx context.Context, reference string) (*models.VerificationResult, error) {
	const op = "services.PaymentService.Verify"

	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%s: %w", op, status.NewValidationError("reference", "is required"))
	}

	payer, err := s.resolvePayer(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("payer_id", payer.ID),
		slog.String("reference", reference),
		slog.String("provider", payer.Provider),
	)

	if payer.Status.IsTerminal() {
		monitoring.TrackVerification(payer.Provider, monitoring.OutcomeAlreadyProcessed)
		return terminalResult(payer, reference), nil
	}

	gw, err := s.gateways.Gateway(gateway.Provider(payer.Provider))
	if err != nil {
		log.Error("payer provider is not configured", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	v, err := gw.Verify(ctx, reference)
	if err != nil {
		log.Error("gateway verification failed", sl.Err(err))
		monitoring.TrackVerification(payer.Provider, monitoring.OutcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.apply(ctx, log, payer, reference, v)
}

// HandleWebhook authenticates a gateway notification before anything else.
// Deliveries with a bad signature have no side effects.
func (s *PaymentService) HandleWebhook(ctx context.Context, provider string, body []byte, headers http.Header) (*models.WebhookResult, error) {
	const op = "services.PaymentService.HandleWebhook"

	p, err := gateway.ParseProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gw, err := s.gateways.Gateway(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	event, err := gw.ParseWebhook(body, headers)
	if err != nil {
		if errors.Is(err, status.ErrSignatureInvalid) {
			s.log.Warn("rejected webhook", slog.String("provider", provider), sl.Err(err))
			monitoring.TrackWebhook(provider, monitoring.WebhookRejected)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &models.WebhookResult{
		Provider:   string(p),
		Event:      event.Event,
		Reference:  event.Reference,
		Actionable: event.Actionable,
	}

	if !event.Actionable || event.Reference == "" {
		monitoring.TrackWebhook(provider, monitoring.WebhookIgnored)
		return result, nil
	}

	v, err := s.Verify(ctx, event.Reference)
	if err != nil {
		if errors.Is(err, status.ErrUnknownTransaction) {
			// Notifications for payments made outside this service are acknowledged.
			s.log.Warn("webhook for unknown reference",
				slog.String("provider", provider),
				slog.String("reference", event.Reference),
			)
			monitoring.TrackWebhook(provider, monitoring.WebhookIgnored)
			return result, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	monitoring.TrackWebhook(provider, monitoring.WebhookAccepted)
	result.Verification = v
	return result, nil
}

// Cancel abandons a pending payment. Settled payers are reported as they are.
// The gateway is asked first: a captured payment is verified instead of
// cancelled, and a payer is only cancelled when the gateway reports no
// success or does not know the transaction.
func (s *PaymentService) Cancel(ctx context.Context, reference string) (*models.VerificationResult, error) {
	const op = "services.PaymentService.Cancel"

	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%s: %w", op, status.NewValidationError("reference", "is required"))
	}

	payer, err := s.resolvePayer(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payer.Status.IsTerminal() {
		return terminalResult(payer, reference), nil
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("payer_id", payer.ID),
		slog.String("reference", reference),
		slog.String("provider", payer.Provider),
	)

	gw, err := s.gateways.Gateway(gateway.Provider(payer.Provider))
	if err != nil {
		log.Error("payer provider is not configured", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	v, err := gw.Verify(ctx, reference)
	switch {
	case err == nil && v.Succeeded:
		log.Warn("cancel requested for a captured payment, verifying instead")
		return s.apply(ctx, log, payer, reference, v)
	case err != nil && !errors.Is(err, status.ErrGatewayRejected):
		// Whether money moved is unknown; the payer stays pending.
		log.Error("gateway verification before cancel failed", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	applied, err := s.store.TransitionPayer(ctx, payer.ID, models.PayerPending, models.PayerCancelled, store.TransitionOptions{})
	if err != nil {
		log.Error("failed to cancel payer", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		return s.currentResult(ctx, payer.ID, reference)
	}

	n, err := s.store.TransitionRegistrationsForPayer(ctx, payer.ID, models.RegistrationCancelled, "")
	if err != nil {
		log.Error("payer cancelled but registrations not updated", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, &status.PartialUpdateError{PayerID: payer.ID, Reference: reference, Err: err})
	}

	s.finish(ctx, log, payer.ID, reference, models.PayerCancelled)
	log.Info("payment cancelled")

	return &models.VerificationResult{
		Status:               models.VerificationCancelled,
		PayerID:              payer.ID,
		Reference:            reference,
		RegistrationsUpdated: n,
	}, nil
}

// apply settles a pending payer according to the gateway's answer. A
// verification that has not reached a final state leaves the payer pending.
func (s *PaymentService) apply(ctx context.Context, log *slog.Logger, payer *models.Payer, reference string, v *gateway.Verification) (*models.VerificationResult, error) {
	const op = "services.PaymentService.apply"

	if v.Pending {
		log.Debug("payment not final yet", slog.String("gateway_status", v.RawStatus))
		monitoring.TrackVerification(payer.Provider, monitoring.OutcomePending)
		return &models.VerificationResult{
			Status:    models.VerificationPending,
			PayerID:   payer.ID,
			Reference: reference,
		}, nil
	}

	if !v.Succeeded {
		return s.settleFailed(ctx, log, payer, reference, v.RawStatus)
	}

	if v.AmountPaid.LessThan(payer.ExpectedAmount) {
		if err := s.store.RecordUnderpayment(ctx, payer.ID, v.AmountPaid); err != nil {
			log.Error("failed to record underpayment", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Warn("payment below expected amount",
			slog.String("expected", payer.ExpectedAmount.String()),
			slog.String("paid", v.AmountPaid.String()),
		)
		monitoring.TrackVerification(payer.Provider, monitoring.OutcomeUnderpaid)
		return &models.VerificationResult{
			Status:    models.VerificationSuccess,
			Valid:     false,
			PayerID:   payer.ID,
			Reference: reference,
		}, nil
	}

	applied, err := s.store.TransitionPayer(ctx, payer.ID, models.PayerPending, models.PayerVerified, store.TransitionOptions{
		AmountPaid: decimal.NewNullDecimal(v.AmountPaid),
	})
	if err != nil {
		log.Error("failed to mark payer verified", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		// Another trigger settled the payer between our read and the update.
		monitoring.TrackVerification(payer.Provider, monitoring.OutcomeAlreadyProcessed)
		return s.currentResult(ctx, payer.ID, reference)
	}

	n, err := s.store.TransitionRegistrationsForPayer(ctx, payer.ID, models.RegistrationPaid, v.TransactionID)
	if err != nil {
		log.Error("payer verified but registrations not updated", sl.Err(err))
		monitoring.TrackVerification(payer.Provider, monitoring.OutcomePartialUpdate)
		return nil, fmt.Errorf("%s: %w", op, &status.PartialUpdateError{
			PayerID:   payer.ID,
			Reference: reference,
			Err:       err,
		})
	}

	s.finish(ctx, log, payer.ID, reference, models.PayerVerified)
	monitoring.TrackVerification(payer.Provider, monitoring.OutcomeVerified)
	log.Info("payment verified",
		slog.String("transaction_id", v.TransactionID),
		slog.Int64("registrations", n),
	)

	return &models.VerificationResult{
		Status:               models.VerificationSuccess,
		Valid:                true,
		PayerID:              payer.ID,
		Reference:            reference,
		RegistrationsUpdated: n,
	}, nil
}

// Reconcile brings a settled payer's registrations in line with its status.
// It repairs the state left behind by a PartialUpdateError.
func (s *PaymentService) Reconcile(ctx context.Context, payerID string) (*models.VerificationResult, error) {
	const op = "services.PaymentService.Reconcile"

	payer, err := s.store.FindPayerByID(ctx, payerID)
	if err != nil {
		if errors.Is(err, store.ErrPayerNotFound) {
			return nil, fmt.Errorf("%s: %w", op, status.ErrUnknownTransaction)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !payer.Status.IsTerminal() {
		return nil, fmt.Errorf("%s: %w", op, status.NewValidationError("payer_id", "is still pending"))
	}

	n, err := s.store.TransitionRegistrationsForPayer(ctx, payer.ID, models.RegistrationStatusFor(payer.Status), "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("payer reconciled",
		slog.String("payer_id", payer.ID),
		slog.String("reference", payer.TransactionRef),
		slog.String("status", string(payer.Status)),
		slog.Int64("registrations", n),
	)

	result := terminalResult(payer, payer.TransactionRef)
	result.AlreadyProcessed = false
	result.RegistrationsUpdated = n
	return result, nil
}

func (s *PaymentService) settleFailed(ctx context.Context, log *slog.Logger, payer *models.Payer, reference, rawStatus string) (*models.VerificationResult, error) {
	const op = "services.PaymentService.Verify"

	applied, err := s.store.TransitionPayer(ctx, payer.ID, models.PayerPending, models.PayerFailed, store.TransitionOptions{})
	if err != nil {
		log.Error("failed to mark payer failed", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		monitoring.TrackVerification(payer.Provider, monitoring.OutcomeAlreadyProcessed)
		return s.currentResult(ctx, payer.ID, reference)
	}

	n, err := s.store.TransitionRegistrationsForPayer(ctx, payer.ID, models.RegistrationCancelled, "")
	if err != nil {
		log.Error("payer failed but registrations not updated", sl.Err(err))
		monitoring.TrackVerification(payer.Provider, monitoring.OutcomePartialUpdate)
		return nil, fmt.Errorf("%s: %w", op, &status.PartialUpdateError{PayerID: payer.ID, Reference: reference, Err: err})
	}

	s.finish(ctx, log, payer.ID, reference, models.PayerFailed)
	monitoring.TrackVerification(payer.Provider, monitoring.OutcomeFailed)
	log.Info("payment failed", slog.String("gateway_status", rawStatus))

	return &models.VerificationResult{
		Status:               models.VerificationFailed,
		PayerID:              payer.ID,
		Reference:            reference,
		RegistrationsUpdated: n,
	}, nil
}

// resolvePayer tries the correlation cache first and falls back to the store.
func (s *PaymentService) resolvePayer(ctx context.Context, reference string) (*models.Payer, error) {
	payerID, err := s.cache.Get(ctx, reference)
	switch {
	case err == nil:
		monitoring.TrackCorrelationLookup("hit")
		payer, err := s.store.FindPayerByID(ctx, payerID)
		if err == nil {
			return payer, nil
		}
		if !errors.Is(err, store.ErrPayerNotFound) {
			return nil, err
		}
	case errors.Is(err, status.ErrCorrelationMiss):
		monitoring.TrackCorrelationLookup("miss")
	default:
		monitoring.TrackCorrelationLookup("error")
		s.log.Warn("correlation lookup failed, using store",
			slog.String("reference", reference),
			sl.Err(err),
		)
	}

	payer, err := s.store.FindPayerByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, store.ErrPayerNotFound) {
			return nil, status.ErrUnknownTransaction
		}
		return nil, err
	}
	return payer, nil
}

func (s *PaymentService) currentResult(ctx context.Context, payerID, reference string) (*models.VerificationResult, error) {
	payer, err := s.store.FindPayerByID(ctx, payerID)
	if err != nil {
		return nil, fmt.Errorf("services.PaymentService.currentResult: %w", err)
	}
	return terminalResult(payer, reference), nil
}

// finish runs the best-effort side effects of a terminal transition.
func (s *PaymentService) finish(ctx context.Context, log *slog.Logger, payerID, reference string, to models.PayerStatus) {
	if err := s.cache.Delete(ctx, reference); err != nil {
		log.Warn("failed to delete correlation", sl.Err(err))
	}

	if err := s.publisher.Publish(ctx, models.StatusUpdate{
		Type:      statusUpdateType,
		PayerID:   payerID,
		Reference: reference,
		Status:    to,
	}); err != nil {
		log.Warn("failed to publish status update", sl.Err(err))
	}
}

func (s *PaymentService) resolveGateway(provider string) (gateway.Gateway, error) {
	if strings.TrimSpace(provider) == "" {
		return s.gateways.Primary()
	}
	p, err := gateway.ParseProvider(provider)
	if err != nil {
		return nil, err
	}
	return s.gateways.Gateway(p)
}

func (s *PaymentService) validateReferences(ctx context.Context, eventID string, personIDs []string) error {
	event, err := s.store.FindEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			return status.NewValidationError("event_id", "does not exist")
		}
		return err
	}
	if !event.PaidEvent {
		return status.NewValidationError("event_id", "is not a paid event")
	}

	n, err := s.store.CountPersons(ctx, personIDs)
	if err != nil {
		return err
	}
	if n != int64(len(personIDs)) {
		return status.NewValidationError("person_ids", "contains unknown persons")
	}
	return nil
}

func (s *PaymentService) callbackURL(provider string) string {
	return fmt.Sprintf("%s/api/v1/payments/%s/callback", strings.TrimRight(s.cfg.PublicURL, "/"), provider)
}

// terminalResult reports a settled payer without touching anything.
func terminalResult(payer *models.Payer, reference string) *models.VerificationResult {
	result := &models.VerificationResult{
		PayerID:          payer.ID,
		Reference:        reference,
		AlreadyProcessed: true,
	}
	switch payer.Status {
	case models.PayerVerified:
		result.Status = models.VerificationSuccess
		result.Valid = true
	case models.PayerCancelled:
		result.Status = models.VerificationCancelled
	default:
		result.Status = models.VerificationFailed
	}
	return result
}

// normalizeInitiate trims the request in place and returns the unique person
// ids in their original order.
func normalizeInitiate(req *models.InitiateRequest) ([]string, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.EventID = strings.TrimSpace(req.EventID)

	if req.Name == "" {
		return nil, status.NewValidationError("name", "is required")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		return nil, status.NewValidationError("email", "is not a valid address")
	}
	req.Email = addr.Address
	if !req.Amount.IsPositive() {
		return nil, status.NewValidationError("amount", "must be greater than zero")
	}
	if req.EventID == "" {
		return nil, status.NewValidationError("event_id", "is required")
	}

	seen := make(map[string]struct{}, len(req.PersonIDs))
	ids := make([]string, 0, len(req.PersonIDs))
	for _, id := range req.PersonIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, status.NewValidationError("person_ids", "must contain at least one person")
	}
	return ids, nil
}
