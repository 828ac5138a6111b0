// Package errorreporting wraps Sentry with PII scrubbing: email addresses,
// bearer tokens, secret/key/token/password key=value pairs and credentials
// embedded in proxy URLs are redacted from exception values, the message
// and string extras, and the Authorization/Proxy-Authorization headers and
// query string are dropped. Reddit usernames are not matched by any pattern.
package errorreporting

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_-]{15,}`),
	regexp.MustCompile(`(?i)(client[_-]?secret|api[_-]?key|token|password)["\s:=]+[a-zA-Z0-9_./-]{8,}`),
	regexp.MustCompile(`://[^:/@]+:[^@/]+@`), // credentials embedded in proxy URLs
}

// Init configures the global Sentry client. A missing SENTRY_DSN disables
// reporting without error — Sentry is optional infrastructure.
func Init(environment string) error {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	sampleRate := 1.0
	if environment == "production" {
		sampleRate = 0.1
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          os.Getenv("SERVICE_VERSION"),
		TracesSampleRate: sampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	return nil
}

func beforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = scrubPII(event.Exception[i].Value)
	}
	event.Message = scrubPII(event.Message)
	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = scrubPII(str)
		}
	}
	if event.Request != nil {
		if event.Request.Headers != nil {
			delete(event.Request.Headers, "Authorization")
			delete(event.Request.Headers, "Proxy-Authorization")
		}
		event.Request.QueryString = ""
	}
	return event
}

func scrubPII(text string) string {
	result := text
	for _, pattern := range piiPatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// CapturePanic reports a recovered panic value with the given component tag.
func CapturePanic(component string, recovered interface{}) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		sentry.CaptureException(fmt.Errorf("panic: %v", recovered))
	})
}

// CaptureError reports an error with optional tags (subreddit, instance
// handle, phase). The tags are attached as given; beforeSend scrubs the
// exception value, not the tags.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits for buffered events to be delivered, used on graceful shutdown.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}
