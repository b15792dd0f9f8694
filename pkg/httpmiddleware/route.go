package httpmiddleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Telemetry provides the tracer and meter providers, as *app.Telemetry does.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// route is filled by Labeler once the ServeMux has matched the request.
type route struct {
	pattern string
}

type routeKey struct{}

// RouteFromContext returns the matched ServeMux pattern, or "" before
// routing or when nothing matched.
func RouteFromContext(ctx context.Context) string {
	if rt, ok := ctx.Value(routeKey{}).(*route); ok {
		return rt.pattern
	}
	return ""
}

func withRoute(ctx context.Context) (context.Context, *route) {
	if rt, ok := ctx.Value(routeKey{}).(*route); ok {
		return ctx, rt
	}
	rt := &route{}
	return context.WithValue(ctx, routeKey{}, rt), rt
}

// Instrument records OpenTelemetry traces and HTTP server metrics.
func Instrument(service string, t Telemetry) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithTracerProvider(t.TracerProvider()),
			otelhttp.WithMeterProvider(t.MeterProvider()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method
			}),
		)
	}
}

// Labeler must wrap the ServeMux directly. After the mux has matched the
// request it renames the span after the route and adds the http.route
// attribute to the span and the otelhttp metrics.
func Labeler() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, rt := withRoute(r.Context())
			r = r.WithContext(ctx)
			next.ServeHTTP(w, r)

			if r.Pattern == "" {
				return
			}
			rt.pattern = r.Pattern
			attr := attribute.String("http.route", r.Pattern)

			span := trace.SpanFromContext(ctx)
			span.SetName(r.Pattern)
			span.SetAttributes(attr)
			if l, ok := otelhttp.LabelerFromContext(ctx); ok {
				l.Add(attr)
			}
		})
	}
}

// LogRequests writes one access log line per request. Server errors log at
// Error level, everything else at Info.
func LogRequests() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, rt := withRoute(r.Context())
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", rt.pattern),
				zap.Int("status", sw.code()),
				zap.Int("bytes", sw.bytes),
				zap.Duration("duration", time.Since(start)),
			}
			lg := zctx.From(ctx)
			if sw.code() >= http.StatusInternalServerError {
				lg.Error("Request failed", fields...)
				return
			}
			lg.Info("Request", fields...)
		})
	}
}
