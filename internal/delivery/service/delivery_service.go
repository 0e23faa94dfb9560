package service

import (
	"context"
	"strings"
	"time"

	"courier/internal/delivery/models"
	id "courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/requestcontext"
)

// CreateDeliveryRequest carries the input of CreateDelivery.
type CreateDeliveryRequest struct {
	OrderID               id.OrderID
	PickupAddress         string
	DeliveryAddress       string
	EstimatedDeliveryTime *time.Time
	Notes                 string
}

func (r CreateDeliveryRequest) validate() error {
	switch {
	case r.OrderID.IsZero():
		return dErrors.New(dErrors.CodeValidation, "order id is required")
	case strings.TrimSpace(r.PickupAddress) == "":
		return dErrors.New(dErrors.CodeValidation, "pickup address is required")
	case strings.TrimSpace(r.DeliveryAddress) == "":
		return dErrors.New(dErrors.CodeValidation, "delivery address is required")
	}
	return nil
}

// CreateDelivery starts a new delivery stream at version 0.
func (s *Service) CreateDelivery(ctx context.Context, req CreateDeliveryRequest) (state models.State, err error) {
	if err := req.validate(); err != nil {
		return models.State{}, err
	}
	deliveryID := s.newID()
	ctx, finish := s.start(ctx, "create", deliveryID)
	defer func() { finish(err) }()

	evt := models.DeliveryCreated{
		DeliveryID:            deliveryID,
		OrderID:               req.OrderID,
		PickupAddress:         strings.TrimSpace(req.PickupAddress),
		DeliveryAddress:       strings.TrimSpace(req.DeliveryAddress),
		EstimatedDeliveryTime: req.EstimatedDeliveryTime,
		Notes:                 req.Notes,
	}
	state, err = s.append(ctx, "create", deliveryID, models.Empty(), evt, requestcontext.Now(ctx).UTC())
	if err != nil {
		return models.State{}, err
	}
	s.logger.InfoContext(ctx, "delivery created",
		"aggregate_id", deliveryID.String(), "order_id", req.OrderID.String())
	return state, nil
}

// GetDelivery folds the stream without appending.
func (s *Service) GetDelivery(ctx context.Context, deliveryID id.DeliveryID) (models.State, error) {
	state, err := s.load(ctx, deliveryID)
	if err != nil {
		return models.State{}, err
	}
	if !state.Exists() {
		return models.State{}, dErrors.New(dErrors.CodeNotFound, "delivery not found")
	}
	return state, nil
}

// AssignDelivery hands the delivery to a courier.
func (s *Service) AssignDelivery(ctx context.Context, deliveryID id.DeliveryID, deliveryPersonID string) (models.State, error) {
	deliveryPersonID = strings.TrimSpace(deliveryPersonID)
	if deliveryPersonID == "" {
		return models.State{}, dErrors.New(dErrors.CodeValidation, "delivery person id is required")
	}
	return s.execute(ctx, "assign", deliveryID, func(state models.State, _ time.Time) (models.Event, error) {
		if err := s.checkTransition(state.Status, models.StatusAssigned); err != nil {
			return nil, err
		}
		return models.DeliveryAssigned{DeliveryPersonID: deliveryPersonID}, nil
	})
}

// UpdateDeliveryStatus overrides the status directly.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, deliveryID id.DeliveryID, status string) (models.State, error) {
	next, err := models.ParseStatus(status)
	if err != nil {
		return models.State{}, err
	}
	return s.execute(ctx, "update_status", deliveryID, func(state models.State, _ time.Time) (models.Event, error) {
		if err := s.checkTransition(state.Status, next); err != nil {
			return nil, err
		}
		return models.DeliveryStatusChanged{Status: next}, nil
	})
}

// UpdateDeliveryLocation records a courier position. The first update after
// assignment moves the delivery to in_progress.
func (s *Service) UpdateDeliveryLocation(ctx context.Context, deliveryID id.DeliveryID, lat, lng float64) (models.State, error) {
	loc, err := models.NewLocation(lat, lng)
	if err != nil {
		return models.State{}, err
	}
	return s.execute(ctx, "update_location", deliveryID, func(state models.State, _ time.Time) (models.Event, error) {
		if !s.permissive {
			if err := models.CheckTracking(state.Status); err != nil {
				return nil, err
			}
		}
		return models.DeliveryLocationUpdated{Location: loc}, nil
	})
}

// CompleteDelivery marks the delivery delivered. actualTime defaults to the
// request time.
func (s *Service) CompleteDelivery(ctx context.Context, deliveryID id.DeliveryID, actualTime *time.Time) (models.State, error) {
	return s.execute(ctx, "complete", deliveryID, func(state models.State, now time.Time) (models.Event, error) {
		if err := s.checkTransition(state.Status, models.StatusCompleted); err != nil {
			return nil, err
		}
		at := now
		if actualTime != nil {
			at = actualTime.UTC()
		}
		return models.DeliveryCompleted{ActualDeliveryTime: at}, nil
	})
}

// CancelDelivery cancels a non-terminal delivery.
func (s *Service) CancelDelivery(ctx context.Context, deliveryID id.DeliveryID, reason string) (models.State, error) {
	return s.execute(ctx, "cancel", deliveryID, func(state models.State, _ time.Time) (models.Event, error) {
		if err := s.checkTransition(state.Status, models.StatusCancelled); err != nil {
			return nil, err
		}
		return models.DeliveryCancelled{Reason: strings.TrimSpace(reason)}, nil
	})
}

func (s *Service) checkTransition(from, to models.Status) error {
	if s.permissive {
		return nil
	}
	return models.CheckTransition(from, to)
}
