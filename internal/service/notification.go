package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carpool/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationOfferReceived      NotificationType = "OFFER_RECEIVED"
	NotificationOfferAccepted      NotificationType = "OFFER_ACCEPTED"
	NotificationOfferRejected      NotificationType = "OFFER_REJECTED"
	NotificationOfferWithdrawn     NotificationType = "OFFER_WITHDRAWN"
	NotificationRequestReceived    NotificationType = "REQUEST_RECEIVED"
	NotificationRequestAccepted    NotificationType = "REQUEST_ACCEPTED"
	NotificationRequestRejected    NotificationType = "REQUEST_REJECTED"
	NotificationRequestCanceled    NotificationType = "REQUEST_CANCELED"
	NotificationNegotiationExpired NotificationType = "NEGOTIATION_EXPIRED"
	NotificationBookingCanceled    NotificationType = "BOOKING_CANCELED"
)

// Notification represents a notification to be sent.
type Notification struct {
	ID          string
	Type        NotificationType
	RecipientID string
	Title       string
	Message     string
	Data        map[string]any
	CreatedAt   time.Time
}

// Sender hands a formatted notification to a user-facing channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// DedupState is what a Deduper knows about a message key.
type DedupState int

const (
	// DedupClaimed means the caller now holds the delivery.
	DedupClaimed DedupState = iota
	// DedupPending means another delivery holds the key and has not finished.
	DedupPending
	// DedupDone means the message was delivered before.
	DedupDone
)

// Deduper remembers which messages were delivered. Claim holds key for ttl;
// Complete records the delivery; Release drops the hold after a failure.
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (DedupState, error)
	Complete(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

const (
	// notificationPendingTTL bounds how long a crashed delivery blocks
	// redelivery of its message.
	notificationPendingTTL = time.Minute
	// notificationDedupTTL bounds how long a delivered message id is remembered.
	notificationDedupTTL = 7 * 24 * time.Hour
)

// NotificationService turns outbox messages into user notifications. It is
// a Publisher: duplicates of an already delivered message are dropped.
type NotificationService struct {
	sender Sender
	dedup  Deduper
	logger *zap.Logger
	now    func() time.Time
}

// NewNotificationService creates a new NotificationService. A nil sender
// logs notifications; a nil deduper disables deduplication.
func NewNotificationService(sender Sender, dedup Deduper, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = &LogSender{logger: logger}
	}
	return &NotificationService{
		sender: sender,
		dedup:  dedup,
		logger: logger,
		now:    time.Now,
	}
}

// Publish formats and sends the notifications for msg.
func (s *NotificationService) Publish(ctx context.Context, msg Message) error {
	notifications, err := s.build(msg)
	if err != nil {
		return err
	}

	dedupKey := "notified:" + msg.ID
	if s.dedup != nil {
		state, err := s.dedup.Claim(ctx, dedupKey, notificationPendingTTL)
		if err != nil {
			return fmt.Errorf("claim %s: %w", msg.ID, err)
		}
		switch state {
		case DedupDone:
			s.logger.Debug("duplicate outbox message dropped", zap.String("event_id", msg.ID))
			return nil
		case DedupPending:
			return fmt.Errorf("notify %s: %w", msg.ID, ErrDeliveryInFlight)
		}
	}

	for _, n := range notifications {
		if err := s.sender.Send(ctx, n); err != nil {
			if s.dedup != nil {
				// Let the retry deliver again.
				_ = s.dedup.Release(ctx, dedupKey)
			}
			return fmt.Errorf("send %s to %s: %w", n.Type, n.RecipientID, err)
		}
	}

	if s.dedup != nil {
		if err := s.dedup.Complete(ctx, dedupKey, notificationDedupTTL); err != nil {
			// Sent already; the pending marker expires and only a manual
			// requeue could resend.
			s.logger.Warn("record delivered message failed", zap.String("event_id", msg.ID), zap.Error(err))
		}
	}

	return nil
}

// build maps a message onto the notifications of its counterparty.
func (s *NotificationService) build(msg Message) ([]Notification, error) {
	now := s.now()
	note := func(t NotificationType, recipient, title, text string, data map[string]any) Notification {
		return Notification{
			ID:          msg.ID + ":" + recipient,
			Type:        t,
			RecipientID: recipient,
			Title:       title,
			Message:     text,
			Data:        data,
			CreatedAt:   now,
		}
	}

	switch msg.Topic {
	case domain.TopicOfferCreated, domain.TopicOfferAccepted, domain.TopicOfferRejected, domain.TopicOfferCanceled:
		var p OfferEvent
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		other := counterparty(p.ActorSide, p.PassengerID, p.DriverID)
		data := map[string]any{
			"offer_id":   p.OfferID,
			"request_id": p.RequestID,
			"trip_id":    p.TripID,
			"price":      p.Price,
			"currency":   p.Currency,
		}
		price := formatPrice(p.Price, p.Currency)

		switch msg.Topic {
		case domain.TopicOfferCreated:
			return []Notification{note(NotificationOfferReceived, other, "New Offer",
				fmt.Sprintf("The %s proposed %s", p.ProposerSide, price), data)}, nil
		case domain.TopicOfferAccepted:
			data["booking_id"] = p.BookingID
			return []Notification{note(NotificationOfferAccepted, other, "Offer Accepted",
				fmt.Sprintf("Your offer of %s was accepted. The seats are booked.", price), data)}, nil
		case domain.TopicOfferRejected:
			return []Notification{note(NotificationOfferRejected, other, "Offer Rejected",
				fmt.Sprintf("Your offer of %s was rejected", price), data)}, nil
		default:
			return []Notification{note(NotificationOfferWithdrawn, other, "Offer Withdrawn",
				fmt.Sprintf("The %s withdrew their offer of %s", p.ProposerSide, price), data)}, nil
		}

	case domain.TopicRequestCreated, domain.TopicRequestAccepted, domain.TopicRequestRejected, domain.TopicRequestCanceled:
		var p RequestEvent
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		data := map[string]any{
			"request_id": p.RequestID,
			"trip_id":    p.TripID,
			"seats":      p.Seats,
		}

		switch msg.Topic {
		case domain.TopicRequestCreated:
			return []Notification{note(NotificationRequestReceived, p.DriverID, "New Seat Request",
				fmt.Sprintf("A passenger asks for %d seat(s) at %s", p.Seats, formatPrice(p.Price, p.Currency)), data)}, nil
		case domain.TopicRequestAccepted:
			data["booking_id"] = p.BookingID
			return []Notification{note(NotificationRequestAccepted, p.PassengerID, "Request Accepted",
				"The driver accepted your request. The seats are booked.", data)}, nil
		case domain.TopicRequestRejected:
			data["reason"] = p.Reason
			return []Notification{note(NotificationRequestRejected, p.PassengerID, "Request Rejected",
				"The driver declined your request", data)}, nil
		default:
			return []Notification{
				note(NotificationRequestCanceled, p.DriverID, "Request Canceled", "A seat request was canceled", data),
				note(NotificationRequestCanceled, p.PassengerID, "Request Canceled", "Your seat request was canceled", data),
			}, nil
		}

	case domain.TopicNegotiationExpired:
		var p NegotiationExpiredEvent
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		data := map[string]any{"request_id": p.RequestID, "trip_id": p.TripID}
		text := fmt.Sprintf("The negotiation ended: the %s ran out of offers", p.ExhaustedSide)
		return []Notification{
			note(NotificationNegotiationExpired, p.PassengerID, "Negotiation Ended", text, data),
			note(NotificationNegotiationExpired, p.DriverID, "Negotiation Ended", text, data),
		}, nil

	case domain.TopicBookingCanceled:
		var p BookingEvent
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		data := map[string]any{
			"booking_id":       p.BookingID,
			"trip_id":          p.TripID,
			"reason":           p.Reason,
			"cancellation_fee": p.CancellationFee,
			"refund_amount":    p.RefundAmount,
		}
		other := counterparty(p.CanceledBy, p.PassengerID, p.DriverID)
		text := fmt.Sprintf("The %s canceled the booking of %d seat(s)", p.CanceledBy, p.Seats)
		if p.CanceledBy == domain.SideDriver {
			text += fmt.Sprintf("; %s will be refunded", formatPrice(p.RefundAmount, p.Currency))
		}
		return []Notification{note(NotificationBookingCanceled, other, "Booking Canceled", text, data)}, nil
	}

	// Topics without a user-facing notification are acknowledged.
	return nil, nil
}

// counterparty returns the participant on the other side of actorSide.
func counterparty(actorSide domain.Side, passengerID, driverID string) string {
	if actorSide == domain.SideDriver {
		return passengerID
	}
	return driverID
}

// formatPrice renders minor units as a decimal amount.
func formatPrice(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, currency)
}

// LogSender writes notifications to the log. It stands in for push, SMS
// and e-mail providers.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the notification.
func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		zap.String("type", string(n.Type)),
		zap.String("recipient_id", n.RecipientID),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	)
	return nil
}
