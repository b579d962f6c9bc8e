// api/events/mqtt.go
package events

import (
	"context"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/warden-net/warden/api/errors"
	logger "github.com/warden-net/warden/api/logging"
)

// Feed consumes external events from the MQTT broker and dispatches
// them to a bounded worker pool. The broker is the only coupling to
// the surrounding network stack; sniffer, DNS filter and anomaly
// detector all publish to the same topic tree.
type Feed struct {
	client      mqtt.Client
	topicPrefix string
	handler     *Handler
	workers     int
	queue       chan Envelope
}

func NewFeed(broker, clientID, topicPrefix string, handler *Handler, workers int) *Feed {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	opts.OnConnect = func(mqtt.Client) {
		logger.Info("Connected to event broker", zap.String("broker", broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("Event broker connection lost", zap.Error(err))
	}

	return &Feed{
		client:      mqtt.NewClient(opts),
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		handler:     handler,
		workers:     workers,
		queue:       make(chan Envelope, 256),
	}
}

// Start connects, subscribes to the topic tree and runs the worker
// pool until the context is cancelled.
func (f *Feed) Start(ctx context.Context) error {
	if token := f.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrFeedUnavailable, token.Error())
	}

	topic := f.topicPrefix + "/+"
	token := f.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		env := Envelope{
			Type:    strings.TrimPrefix(msg.Topic(), f.topicPrefix+"/"),
			Payload: msg.Payload(),
		}
		select {
		case f.queue <- env:
		default:
			// A full queue means the handlers are saturated. Dropping
			// is safe: every event is a reinforcement signal, not a
			// source of record.
			logger.Warn("Event queue full, dropping event", zap.String("type", env.Type))
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("%w: subscribing to %s: %v", apperrors.ErrFeedUnavailable, topic, token.Error())
	}
	logger.Info("Subscribed to event feed",
		zap.String("topic", topic), zap.Int("workers", f.workers))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < f.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case env := <-f.queue:
					if err := f.handler.Handle(gctx, env); err != nil {
						logger.Error("Event handling failed",
							zap.String("type", env.Type), zap.Error(err))
					}
				}
			}
		})
	}

	err := g.Wait()
	f.client.Disconnect(250)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
