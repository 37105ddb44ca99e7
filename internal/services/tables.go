// Package services - storage and tracing seams
//
// Services depend on Table, the read/write/update contract of one JSON
// document, rather than on the repo package directly. Tests swap in real
// tables over a temp dir.

package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Table is the persistence contract the services need from a JSON table.
// *repo.Table satisfies it.
type Table[T any] interface {
	Read(ctx context.Context) (T, error)
	Write(ctx context.Context, doc T) error
	Update(ctx context.Context, fn func(doc *T) error) error
}

func startSpan(ctx context.Context, service, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/"+service).Start(ctx, op, trace.WithAttributes(attrs...))
}
