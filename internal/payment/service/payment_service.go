package service

import (
	"context"
	"maps"
	"strings"
	"time"

	"courier/internal/payment/models"
	id "courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/requestcontext"
)

// CreatePaymentRequest carries the input of CreatePayment. Amount is in minor
// units of Currency; an empty Currency means models.DefaultCurrency.
type CreatePaymentRequest struct {
	OrderID       id.OrderID
	UserID        id.UserID
	Amount        int64
	Currency      string
	PaymentMethod string
	Metadata      map[string]string
}

func (r CreatePaymentRequest) validate() error {
	switch {
	case r.OrderID.IsZero():
		return dErrors.New(dErrors.CodeValidation, "order id is required")
	case r.UserID.IsZero():
		return dErrors.New(dErrors.CodeValidation, "user id is required")
	case r.Amount <= 0:
		return dErrors.Newf(dErrors.CodeValidation, "amount must be positive, got %d", r.Amount)
	case strings.TrimSpace(r.PaymentMethod) == "":
		return dErrors.New(dErrors.CodeValidation, "payment method is required")
	case r.Currency != "" && !isCurrencyCode(r.Currency):
		return dErrors.Newf(dErrors.CodeValidation, "currency %q is not an ISO 4217 code", r.Currency)
	}
	return nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// CreatePayment opens a payment stream in pending status.
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (state models.State, err error) {
	if err := req.validate(); err != nil {
		return models.State{}, err
	}
	paymentID := s.newID()
	ctx, finish := s.start(ctx, "create", paymentID)
	defer func() { finish(err) }()

	evt := models.PaymentCreated{
		PaymentID:     paymentID,
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Metadata:      maps.Clone(req.Metadata),
	}
	state, err = s.append(ctx, "create", paymentID, models.Empty(), evt, requestcontext.Now(ctx).UTC())
	if err != nil {
		return models.State{}, err
	}
	s.logger.InfoContext(ctx, "payment created",
		"aggregate_id", paymentID.String(), "order_id", req.OrderID.String(), "amount", req.Amount, "currency", state.Currency)
	return state, nil
}

// GetPayment folds the stream without appending.
func (s *Service) GetPayment(ctx context.Context, paymentID id.PaymentID) (models.State, error) {
	state, err := s.load(ctx, paymentID)
	if err != nil {
		return models.State{}, err
	}
	if !state.Exists() {
		return models.State{}, dErrors.New(dErrors.CodeNotFound, "payment not found")
	}
	return state, nil
}

func (s *Service) AuthorizePayment(ctx context.Context, paymentID id.PaymentID, paymentIntentID string) (models.State, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return models.State{}, dErrors.New(dErrors.CodeValidation, "payment intent id is required")
	}
	return s.execute(ctx, "authorize", paymentID, func(state models.State, _ time.Time) (models.Event, error) {
		if err := s.checkTransition(state.Status, models.StatusAuthorized); err != nil {
			return nil, err
		}
		return models.PaymentAuthorized{PaymentIntentID: paymentIntentID}, nil
	})
}

func (s *Service) CapturePayment(ctx context.Context, paymentID id.PaymentID, chargeID string) (models.State, error) {
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return models.State{}, dErrors.New(dErrors.CodeValidation, "charge id is required")
	}
	return s.execute(ctx, "capture", paymentID, func(state models.State, _ time.Time) (models.Event, error) {
		if err := s.checkTransition(state.Status, models.StatusCaptured); err != nil {
			return nil, err
		}
		return models.PaymentCaptured{ChargeID: chargeID}, nil
	})
}

// RefundPayment refunds a captured payment. A nil amount refunds the full
// amount; a partial amount must be positive and no larger than the payment.
func (s *Service) RefundPayment(ctx context.Context, paymentID id.PaymentID, refundID string, amount *int64) (models.State, error) {
	refundID = strings.TrimSpace(refundID)
	if refundID == "" {
		return models.State{}, dErrors.New(dErrors.CodeValidation, "refund id is required")
	}
	return s.execute(ctx, "refund", paymentID, func(state models.State, _ time.Time) (models.Event, error) {
		if amount != nil && (*amount <= 0 || *amount > state.Amount) {
			return nil, dErrors.Newf(dErrors.CodeValidation, "refund amount %d outside 1..%d", *amount, state.Amount)
		}
		if err := s.checkTransition(state.Status, models.StatusRefunded); err != nil {
			return nil, err
		}
		evt := models.PaymentRefunded{RefundID: refundID}
		if amount != nil {
			v := *amount
			evt.Amount = &v
		}
		return evt, nil
	})
}

func (s *Service) FailPayment(ctx context.Context, paymentID id.PaymentID, reason string) (models.State, error) {
	return s.execute(ctx, "fail", paymentID, func(state models.State, _ time.Time) (models.Event, error) {
		if err := s.checkTransition(state.Status, models.StatusFailed); err != nil {
			return nil, err
		}
		return models.PaymentFailed{Reason: strings.TrimSpace(reason)}, nil
	})
}

func (s *Service) VoidPayment(ctx context.Context, paymentID id.PaymentID) (models.State, error) {
	return s.execute(ctx, "void", paymentID, func(state models.State, _ time.Time) (models.Event, error) {
		if err := s.checkTransition(state.Status, models.StatusVoided); err != nil {
			return nil, err
		}
		return models.PaymentVoided{}, nil
	})
}

func (s *Service) checkTransition(from, to models.Status) error {
	if s.permissive {
		return nil
	}
	return models.CheckTransition(from, to)
}
