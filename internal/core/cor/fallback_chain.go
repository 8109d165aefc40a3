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

package cor

import (
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// FallbackAttemptsParam holds the []error collected from strategies that
	// failed or produced nothing before the winning one.
	FallbackAttemptsParam = "__fallback_attempts__"
	// FallbackWinnerParam holds the name of the strategy that produced the output.
	FallbackWinnerParam = "__fallback_winner__"
)

var (
	// ErrAllStrategiesFailed is recorded when no strategy produced an output.
	ErrAllStrategiesFailed = errors.New("all strategies failed")
	// ErrNoResult marks a strategy that ran cleanly but left no output.
	ErrNoResult = errors.New("strategy produced no result")
)

// QuietMiss is implemented by strategies for which leaving no output is an
// ordinary outcome, such as a cache miss, rather than a failed attempt.
type QuietMiss interface {
	QuietMiss() bool
}

func isQuietMiss(strategy Command) bool {
	quiet, ok := strategy.(QuietMiss)
	return ok && quiet.QuietMiss()
}

// FallbackChain runs alternative strategies in priority order and stops at
// the first one that leaves a non-empty value under the chain's output
// parameter. A failing strategy never aborts the chain: its errors are moved
// out of the Context into FallbackAttemptsParam. Only when every strategy has
// been tried without an output does the chain record an error of its own.
type FallbackChain struct {
	BaseCommand
	strategies []Command
}

// NewFallbackChain creates a fallback chain whose success is judged by the
// value stored under outputParam.
func NewFallbackChain(name string, outputParam string) *FallbackChain {
	out := &FallbackChain{BaseCommand: *NewBaseCommand(name)}
	out.OutputParamName = outputParam
	return out
}

// ContinueOnFailure is a no-op: a fallback chain always continues past failures.
func (c *FallbackChain) ContinueOnFailure(bool) Chain {
	return c
}

func (c *FallbackChain) AddCommand(command Command) Chain {
	c.strategies = append(c.strategies, command)
	return c
}

func (c *FallbackChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

// HasOutput reports whether the chain's output parameter holds a usable value.
func (c *FallbackChain) HasOutput(context Context) bool {
	switch v := context.Get(c.GetOutputParam()).(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case fmt.Stringer:
		return strings.TrimSpace(v.String()) != ""
	default:
		return true
	}
}

func (c *FallbackChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)

	attempts, _ := chCtx.Get(FallbackAttemptsParam).([]error)

	for _, strategy := range c.strategies {
		if c.HasOutput(chCtx) {
			break
		}
		if err := parentCtx.Err(); err != nil {
			attempts = append(attempts, fmt.Errorf("%s: %w", strategy.GetName(), err))
			break
		}

		strategyCtx, strategySpan := c.Tracer.Start(outerCtx, strategy.GetName())
		if !strategy.IsExecutable(chCtx) {
			strategySpan.AddEvent("strategy skipped: inputs not available")
			strategySpan.End()
			continue
		}

		before := make(map[string]struct{}, len(chCtx.GetErrors()))
		for key := range chCtx.GetErrors() {
			before[key] = struct{}{}
		}

		chCtx.SetContext(strategyCtx)
		strategy.Execute(chCtx)
		chCtx.SetContext(outerCtx)

		failures := make([]error, 0)
		for key, err := range chCtx.GetErrors() {
			if _, seen := before[key]; seen {
				continue
			}
			failures = append(failures, fmt.Errorf("%s: %w", key, err))
			chCtx.RemoveError(key)
		}
		attempts = append(attempts, failures...)

		switch {
		case c.HasOutput(chCtx):
			chCtx.Add(FallbackWinnerParam, strategy.GetName())
			strategySpan.SetAttributes(attribute.Bool("fallback.winner", true))
			strategySpan.SetStatus(codes.Ok, "strategy produced a result")
		case len(failures) > 0:
			strategySpan.SetStatus(codes.Error, errors.Join(failures...).Error())
		case isQuietMiss(strategy):
			strategySpan.AddEvent("strategy missed")
		default:
			attempts = append(attempts, fmt.Errorf("%s: %w", strategy.GetName(), ErrNoResult))
			strategySpan.SetStatus(codes.Error, ErrNoResult.Error())
		}
		strategySpan.End()
	}

	chCtx.Add(FallbackAttemptsParam, attempts)

	if c.HasOutput(chCtx) {
		c.Succeed(chCtx)
		chainSpan.SetStatus(codes.Ok, "fallback chain produced a result")
		return
	}

	err := ErrAllStrategiesFailed
	if len(attempts) > 0 {
		err = fmt.Errorf("%w: %w", ErrAllStrategiesFailed, errors.Join(attempts...))
	}
	c.Fail(chCtx, err)
	chainSpan.SetStatus(codes.Error, "all strategies failed")
}
