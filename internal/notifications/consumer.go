package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/internal/assignment"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	"github.com/osoriodev/vendelo-backend/pkg/logger"
	"github.com/osoriodev/vendelo-backend/pkg/outbox"
	"github.com/osoriodev/vendelo-backend/pkg/outbox/idempotency"
)

const leadNotificationConsumer = "lead-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// assignmentMarker records that the assignment's notification intent was delivered.
type assignmentMarker interface {
	MarkNotified(ctx context.Context, assignmentID uuid.UUID) error
}

// Consumer watches domain events and turns assignment transitions into
// in-app notifications for the receiving salesperson.
type Consumer struct {
	repo         repository
	marker       assignmentMarker
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a lead notification consumer.
func NewConsumer(repo repository, marker assignmentMarker, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if marker == nil {
		return nil, fmt.Errorf("assignment marker required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		marker:       marker,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	if eventType != enums.EventLeadAssigned && eventType != enums.EventLeadTransferred {
		c.logg.Info(logCtx, "skipping event without a notification recipient")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, leadNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handleEvent(ctx, eventType, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, leadNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func (c *Consumer) handleEvent(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage, logCtx context.Context) error {
	switch eventType {
	case enums.EventLeadAssigned:
		var payload assignment.LeadAssignedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse lead_assigned payload: %w", err)
		}
		return c.notifyAssigned(ctx, payload, logCtx)
	case enums.EventLeadTransferred:
		var payload assignment.LeadTransferredEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse lead_transferred payload: %w", err)
		}
		return c.notifyTransferred(ctx, payload, logCtx)
	default:
		return nil
	}
}

func (c *Consumer) notifyAssigned(ctx context.Context, payload assignment.LeadAssignedEvent, logCtx context.Context) error {
	if payload.VendorID == uuid.Nil || payload.ClientID == uuid.Nil {
		return fmt.Errorf("assigned payload missing vendor or client id")
	}

	title := "New lead assigned"
	message := fmt.Sprintf("Lead %s has been assigned to you.", payload.LeadID)
	if payload.DegradedTransfer {
		title = "Lead reassigned to you"
		message = fmt.Sprintf("Lead %s was transferred to you; the previous assignment was no longer active.", payload.LeadID)
	}

	notification := &models.Notification{
		ClientID: payload.ClientID,
		VendorID: payload.VendorID,
		Type:     enums.NotificationTypeLeadAssigned,
		Title:    title,
		Message:  message,
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	if err := c.marker.MarkNotified(ctx, payload.AssignmentID); err != nil {
		return err
	}

	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"lead_id":       payload.LeadID.String(),
		"vendor_id":     payload.VendorID.String(),
		"assignment_id": payload.AssignmentID.String(),
	}), "salesperson notified of assignment")
	return nil
}

func (c *Consumer) notifyTransferred(ctx context.Context, payload assignment.LeadTransferredEvent, logCtx context.Context) error {
	if payload.ToVendorID == uuid.Nil || payload.ClientID == uuid.Nil {
		return fmt.Errorf("transferred payload missing vendor or client id")
	}

	message := fmt.Sprintf("Lead %s has been transferred to you.", payload.LeadID)
	if payload.Reason != nil && *payload.Reason != "" {
		message = fmt.Sprintf("Lead %s has been transferred to you. Reason: %s", payload.LeadID, *payload.Reason)
	}

	notification := &models.Notification{
		ClientID: payload.ClientID,
		VendorID: payload.ToVendorID,
		Type:     enums.NotificationTypeLeadTransferred,
		Title:    "Lead transferred to you",
		Message:  message,
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	if err := c.marker.MarkNotified(ctx, payload.ToAssignmentID); err != nil {
		return err
	}

	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"lead_id":       payload.LeadID.String(),
		"vendor_id":     payload.ToVendorID.String(),
		"assignment_id": payload.ToAssignmentID.String(),
	}), "salesperson notified of transfer")
	return nil
}
