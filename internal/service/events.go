package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/labgrade-api/internal/observability"
)

// Event types fanned out after successful writes.
const (
	EventRecordSaved     = "record.saved"
	EventGradeCalculated = "grade.calculated"
)

// GradeEvent is the payload published to redis and NATS.
type GradeEvent struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	EnrollmentID    uint      `json:"enrollment_id"`
	CourseID        uint      `json:"course_id"`
	Week            int       `json:"week,omitempty"`
	LetterGrade     string    `json:"letter_grade,omitempty"`
	TotalPercentage float64   `json:"total_percentage,omitempty"`
	Mode            string    `json:"mode,omitempty"`
	BehaviorTag     string    `json:"behavior_tag,omitempty"`
	ActorID         uint      `json:"actor_id"`
	CorrelationID   string    `json:"correlation_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// EventPublisher announces record and grade changes to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, event GradeEvent) error
}

type brokerPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewEventPublisher publishes to "<channelBase>:events" on redis and
// "<channelBase>.events.<type>" on NATS. Either transport may be nil.
func NewEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	channelBase = strings.TrimSpace(channelBase)
	if channelBase == "" {
		channelBase = "labgrade"
	}

	return &brokerPublisher{
		redis:        redisClient,
		redisChannel: channelBase + ":events",
		nats:         natsConn,
		natsSubject:  strings.ReplaceAll(channelBase, ":", ".") + ".events",
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "event_publisher").Logger(),
		now:          time.Now,
	}
}

func (p *brokerPublisher) Publish(ctx context.Context, event GradeEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	if event.CorrelationID == "" {
		event.CorrelationID = observability.CorrelationID(ctx)
	}
	event.Source = p.nodeID

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.redis != nil {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if p.nats != nil {
		if err := p.nats.Publish(p.natsSubject+"."+event.Type, payload); err != nil {
			return err
		}
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("correlation_id", event.CorrelationID).
		Uint("enrollment_id", event.EnrollmentID).
		Msg("grade event published")

	return nil
}
