package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every k7s tracer and meter.
const TracerName = "github.com/giantswarm/k7s"

// Span attribute keys.
const (
	SpanAttrContext      = "k7s.context"
	SpanAttrNamespace    = "k8s.namespace"
	SpanAttrResourceType = "k8s.resource_type"
	SpanAttrResourceName = "k8s.resource_name"
	SpanAttrOperation    = "k8s.operation"
	SpanAttrItemCount    = "k7s.item_count"
)

// K8sCall describes one call against the API server of a cluster. Empty
// fields are left off the span.
type K8sCall struct {
	Operation    string
	Context      string
	ResourceType string
	Namespace    string
	Name         string
}

func (c K8sCall) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(SpanAttrOperation, c.Operation)}
	for _, kv := range []struct{ key, value string }{
		{SpanAttrContext, c.Context},
		{SpanAttrResourceType, c.ResourceType},
		{SpanAttrNamespace, c.Namespace},
		{SpanAttrResourceName, c.Name},
	} {
		if kv.value != "" {
			attrs = append(attrs, attribute.String(kv.key, kv.value))
		}
	}
	return attrs
}

// StartK8sSpan starts a client span named "k8s.<operation>". The caller ends
// it.
func StartK8sSpan(ctx context.Context, call K8sCall) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "k8s."+call.Operation,
		trace.WithAttributes(call.attributes()...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// ItemCount is the span attribute for the number of items a call returned.
func ItemCount(n int) attribute.KeyValue {
	return attribute.Int(SpanAttrItemCount, n)
}

// SetSpanError records err on the span and marks it failed. A nil err is
// ignored.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks the span OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
