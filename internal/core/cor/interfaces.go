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

// Package cor implements the Chain of Responsibility used by every extraction
// workflow. A workflow is a Chain of Commands sharing one Context: commands
// read their inputs from the Context, write their outputs back to it and
// record failures against their own name.
//
// Two chain flavours exist:
//   - BaseChain runs every command in order and stops at the first error
//     (unless configured to continue).
//   - FallbackChain treats each command as an alternative strategy and stops
//     at the first one that produces an output.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CtxIn is the default key for the primary input of a command. BaseChain
	// moves the previous command's CtxOut value here before the next command.
	CtxIn = "__IN__"
	// CtxOut is the default key a command writes its primary output to.
	CtxOut = "__OUT__"
)

// Context is the property bag shared by all commands of a single workflow
// execution. It is not safe for concurrent use; each execution owns one.
type Context interface {
	// SetContext replaces the Go context carried for cancellation and tracing.
	SetContext(context context.Context)

	// GetContext returns the Go context carried for cancellation and tracing.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records err against key, normally the failing command's name.
	AddError(key string, err error)

	// RemoveError drops the error recorded against key, if any.
	RemoveError(key string)

	// GetErrors returns all recorded errors keyed by command name.
	GetErrors() map[string]error

	// Get returns the value stored under key or nil.
	Get(key string) interface{}

	// Remove deletes the value stored under key.
	Remove(key string)

	// HasErrors reports whether any error has been recorded.
	HasErrors() bool

	// AddTempFile registers a local file that must be deleted by Close.
	AddTempFile(file string)

	// GetTempFiles returns the registered temporary files.
	GetTempFiles() []string

	// Close deletes every registered temporary file. Callers defer it right
	// after creating the Context so cleanup happens on every exit path.
	Close()
}

// Executable is anything that can run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a named, instrumented unit of work in a chain.
type Command interface {
	Executable

	// GetName returns the name used for spans, counters and error keys.
	GetName() string

	// GetInputParam returns the Context key the command reads its input from.
	GetInputParam() string

	// GetOutputParam returns the Context key the command writes its output to.
	GetOutputParam() string

	// IsExecutable is the precondition check run by chains before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command composed of other commands.
type Chain interface {
	Command

	// ContinueOnFailure controls whether a failed command stops the chain.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the execution order.
	AddCommand(command Command) Chain
}
