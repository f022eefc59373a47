// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package eventbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
)

// goChannelTransport shares one in-process pub/sub between the publisher
// and every stage subscription.
func (b *Bus) goChannelTransport() (*transport, error) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: b.cfg.BufferSize,
	}, b.logger)

	return &transport{
		publisher: pubSub,
		subscribe: func(string) (message.Subscriber, error) { return pubSub, nil },
		close:     pubSub.Close,
	}, nil
}

// natsTransport connects to NATS without JetStream. Each stage subscribes
// under its own queue group so replicas of the same stage share the load.
func (b *Bus) natsTransport() (*transport, error) {
	opts := natsOptions(b.cfg.NATSURL, b.logger)

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         b.cfg.NATSURL,
		NatsOptions: opts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	var subs []message.Subscriber
	return &transport{
		publisher: pub,
		subscribe: func(stage string) (message.Subscriber, error) {
			sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
				URL:              b.cfg.NATSURL,
				QueueGroupPrefix: "hydra-" + stage,
				SubscribersCount: 1,
				AckWaitTimeout:   30 * time.Second,
				CloseTimeout:     b.cfg.CloseTimeout,
				NatsOptions:      opts,
				Unmarshaler:      &wmNats.NATSMarshaler{},
				JetStream:        wmNats.JetStreamConfig{Disabled: true},
			}, b.logger)
			if err != nil {
				return nil, fmt.Errorf("create nats subscriber: %w", err)
			}
			subs = append(subs, sub)
			return sub, nil
		},
		close: func() error {
			errs := []error{pub.Close()}
			for _, s := range subs {
				errs = append(errs, s.Close())
			}
			return errors.Join(errs...)
		},
	}, nil
}

func natsOptions(url string, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("hydra"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, watermill.LogFields{"url": url})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}
