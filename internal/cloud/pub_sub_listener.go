// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file defines the Pub/Sub listener that feeds the workflows. Each
// message runs the attached command in a fresh cor context; the outcome
// decides the acknowledgement:
//   - success: the result (if any) is published to the results topic and the
//     message is acked.
//   - shutdown or a transient upstream error: the message is nacked so
//     Pub/Sub redelivers it.
//   - any other failure: a "failed" envelope is published and the message
//     is acked, so a bad URL is not retried forever.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/cor"
	"github.com/jaycherian/gcp-go-content-extractor/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Status values of a ResultEnvelope.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ResultEnvelope is the JSON document published to a results topic.
type ResultEnvelope struct {
	Status string `json:"status"`
	Input  string `json:"input"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PubSubListener connects a subscription to a processing command.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	results      *pubsub.Topic // Optional.
	resultParam  string
	timeout      time.Duration
	command      cor.Command
}

func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches the command unless one is already set.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// SetResults publishes the value a run leaves under resultParam to topicID.
func (m *PubSubListener) SetResults(topicID string, resultParam string) {
	if topicID == "" {
		return
	}
	m.results = m.client.Topic(topicID)
	m.resultParam = resultParam
}

// SetTimeout bounds the processing time of one message.
func (m *PubSubListener) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// Listen receives messages in a background goroutine until ctx is done.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("msg", string(msg.Data)))

			msgCtx, cancel := spanCtx, context.CancelFunc(func() {})
			if m.timeout > 0 {
				msgCtx, cancel = context.WithTimeout(spanCtx, m.timeout)
			}
			defer cancel()

			if m.command == nil {
				slog.Error("no command attached to listener", "subscription", m.subscription.String())
				msg.Nack()
				return
			}
			envelope, redeliver := ProcessMessage(msgCtx, m.command, m.resultParam, msg.Data)
			if envelope.Status == StatusOK {
				span.SetStatus(codes.Ok, "success")
				m.publish(spanCtx, envelope)
				msg.Ack()
				return
			}
			span.SetStatus(codes.Error, envelope.Error)
			if redeliver || ctx.Err() != nil {
				slog.Warn("message will be redelivered", "error", envelope.Error)
				msg.Nack()
				return
			}
			slog.Error("message failed", "input", envelope.Input, "error", envelope.Error)
			m.publish(spanCtx, envelope)
			msg.Ack()
		})

		if err != nil {
			slog.Error("error receiving data", "error", err)
		}
	}()
}

// ProcessMessage runs command on one message body in a fresh context whose
// temp files are removed before returning. redeliver is set when the run was
// cancelled or failed transiently before the strategies were exhausted.
func ProcessMessage(ctx context.Context, command cor.Command, resultParam string, data []byte) (envelope ResultEnvelope, redeliver bool) {
	chainCtx := cor.NewBaseContextWith(ctx)
	defer chainCtx.Close()
	chainCtx.Add(cor.CtxIn, string(data))

	command.Execute(chainCtx)
	if !chainCtx.HasErrors() {
		return ResultEnvelope{Status: StatusOK, Input: string(data), Result: chainCtx.Get(resultParam)}, false
	}
	runErr := cor.JoinErrors(chainCtx)
	return ResultEnvelope{Status: StatusFailed, Input: string(data), Error: runErr.Error()}, shouldRedeliver(ctx, runErr)
}

// shouldRedeliver treats exhausted strategy chains and per-message timeouts
// as final, whatever transient errors the individual attempts reported.
func shouldRedeliver(ctx context.Context, err error) bool {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return true
	case ctx.Err() != nil, errors.Is(err, cor.ErrAllStrategiesFailed):
		return false
	}
	return errors.Is(err, model.ErrTransient) || errors.Is(err, context.Canceled)
}

func (m *PubSubListener) publish(ctx context.Context, envelope ResultEnvelope) {
	if m.results == nil {
		return
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		slog.Error("failed to encode result", "error", err)
		return
	}
	res := m.results.Publish(context.WithoutCancel(ctx), &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"status": envelope.Status},
	})
	if _, err := res.Get(context.WithoutCancel(ctx)); err != nil {
		slog.Error("failed to publish result", "topic", m.results.ID(), "error", err)
	}
}
