package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingOptions customises the tracing middleware.
type TracingOptions struct {
	ServiceName    string
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
}

// Tracing starts a server span per request and extracts W3C trace context
// from incoming headers. Probe and scrape endpoints are not traced.
func Tracing(opts TracingOptions) gin.HandlerFunc {
	options := []otelgin.Option{
		otelgin.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				return false
			}
			return true
		}),
	}
	if opts.TracerProvider != nil {
		options = append(options, otelgin.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagators != nil {
		options = append(options, otelgin.WithPropagators(opts.Propagators))
	}

	name := opts.ServiceName
	if name == "" {
		name = "auth-service"
	}
	return otelgin.Middleware(name, options...)
}
