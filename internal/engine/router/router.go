package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"beacon/internal/engine/delivery"
	"beacon/internal/engine/dispatch"
	"beacon/internal/engine/inbound"
	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

// route binds a provider inner event type to at most one internal indexing
// event type and at most one outbound webhook event type.
type route struct {
	indexing string
	outbound string
}

// routes is the static routing table. Inner event types not listed here
// are accepted and ignored; new providers extend this table additively.
var routes = map[string]route{
	"gmail:message.added":   {indexing: "email.live_index", outbound: "email.received"},
	"slack:message":         {indexing: "slack.message.live_index", outbound: "slack.message.received"},
	"slack:reaction_added":  {outbound: "slack.reaction.added"},
	"slack:channel_created": {outbound: "slack.channel.created"},
}

// Router fans a normalized inbound event out to the indexing consumer and
// to webhook deliveries. Both paths run on the dispatch pool and are
// isolated from each other's failures.
type Router struct {
	subscriptions *repositories.SubscriptionRepository
	deliveries    *repositories.DeliveryRepository
	engine        *delivery.Engine
	pool          *dispatch.Pool
	indexer       IndexingConsumer
}

func New(subscriptions *repositories.SubscriptionRepository, deliveries *repositories.DeliveryRepository,
	engine *delivery.Engine, pool *dispatch.Pool, indexer IndexingConsumer) *Router {
	return &Router{
		subscriptions: subscriptions,
		deliveries:    deliveries,
		engine:        engine,
		pool:          pool,
		indexer:       indexer,
	}
}

// Route dispatches one normalized inbound event. It only enqueues work and
// returns immediately, keeping inbound handlers inside their response
// budget.
func (r *Router) Route(ev *inbound.NormalizedEvent) {
	rt, ok := routes[ev.Provider+":"+ev.InnerType]
	if !ok {
		log.Debug().Str("provider", ev.Provider).Str("inner_type", ev.InnerType).
			Msg("no route for inbound event")
		return
	}

	if rt.indexing != "" {
		idx := &IndexingEvent{
			Type:     rt.indexing,
			Provider: ev.Provider,
			UserID:   ev.UserID,
			Data:     ev.Data,
		}
		if !r.pool.Enqueue(func(ctx context.Context) {
			if err := r.indexer.Consume(ctx, idx); err != nil {
				// Indexing failures never block webhook delivery.
				log.Error().Err(err).Str("type", idx.Type).Msg("indexing dispatch failed")
			}
		}) {
			log.Error().Str("type", rt.indexing).Msg("dispatch queue full, indexing event dropped")
		}
	}

	if rt.outbound != "" {
		eventID := ev.DedupKey
		if eventID == "" {
			eventID = uuid.New().String()
		}
		eventType, userID, data := rt.outbound, ev.UserID, ev.Data
		if !r.pool.Enqueue(func(ctx context.Context) {
			if _, err := r.Publish(eventType, eventID, userID, data); err != nil {
				log.Error().Err(err).Str("event_type", eventType).Msg("webhook fan-out failed")
			}
		}) {
			log.Error().Str("event_type", eventType).Msg("dispatch queue full, webhook fan-out dropped")
		}
	}
}

// Publish creates one delivery per active subscription for the event type
// and hands each to the delivery engine asynchronously. It returns the
// number of deliveries created. The envelope is serialized once per
// delivery at creation time; the signature later covers those exact bytes.
func (r *Router) Publish(eventType, eventID, userID string, data interface{}) (int, error) {
	subs, err := r.subscriptions.ActiveForEvent(eventType)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	envelope := models.EventEnvelope{
		ID:        eventID,
		Event:     eventType,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
		Data:      data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, sub := range subs {
		d := &models.Delivery{
			SubscriptionID: sub.ID,
			EventType:      eventType,
			EventID:        eventID,
			Payload:        string(payload),
			MaxAttempts:    sub.RetryCount,
		}
		if err := r.deliveries.Create(d); err != nil {
			log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to create delivery")
			continue
		}
		created++

		id := d.ID
		if !r.pool.Enqueue(func(ctx context.Context) {
			if err := r.engine.Attempt(ctx, id); err != nil {
				log.Error().Err(err).Str("delivery_id", id).Msg("delivery attempt errored")
			}
		}) {
			// Still pending in the store; the retry sweeper picks up
			// stale pending deliveries.
			log.Warn().Str("delivery_id", id).Msg("dispatch queue full, delivery deferred to sweeper")
		}
	}
	return created, nil
}
