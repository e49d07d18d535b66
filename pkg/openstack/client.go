package openstack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/telemetry"
	"github.com/openfroyo/froyo-keystone/pkg/transports"
)

// DefaultBinary is the client executable.
const DefaultBinary = "openstack"

// Client invokes the openstack command line client.
type Client struct {
	binary     string
	runner     transports.Runner
	creds      *Credentials
	classifier *Classifier
	logger     zerolog.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBinary sets the client executable.
func WithBinary(binary string) ClientOption {
	return func(c *Client) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithClassifier sets the failure classifier.
func WithClassifier(classifier *Classifier) ClientOption {
	return func(c *Client) { c.classifier = classifier }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records call counters and latencies.
func WithMetrics(metrics *telemetry.Metrics) ClientOption {
	return func(c *Client) { c.metrics = metrics }
}

// WithTracer wraps each call in a span.
func WithTracer(tracer *telemetry.Tracer) ClientOption {
	return func(c *Client) { c.tracer = tracer }
}

// NewClient creates a client that runs commands through runner with the
// environment of creds.
func NewClient(runner transports.Runner, creds *Credentials, opts ...ClientOption) *Client {
	c := &Client{
		binary: DefaultBinary,
		runner: runner,
		creds:  creds,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.classifier == nil {
		c.classifier = MustNewClassifier()
	}
	return c
}

// Credentials returns the credentials the client authenticates with.
func (c *Client) Credentials() *Credentials {
	return c.creds
}

// WithCredentials returns a copy of the client using other credentials.
func (c *Client) WithCredentials(creds *Credentials) *Client {
	clone := *c
	clone.creds = creds
	return &clone
}

// Run executes `<binary> <noun> <verb> [--format F] args...`. A multi-word
// noun such as "role assignment" is split into separate arguments. A non-zero
// exit is classified into an AuthError, a NotFoundError or an
// ExecutionError carrying the verbatim client output.
func (c *Client) Run(ctx context.Context, noun, verb, format string, args *Args) (*Output, error) {
	argv := append(strings.Fields(noun), verb)
	shown := append(strings.Fields(noun), verb)
	if format != "" {
		argv = append(argv, "--format", format)
		shown = append(shown, "--format", format)
	}
	argv = append(argv, args.Strings()...)
	shown = append(shown, args.Redacted()...)
	command := c.binary + " " + strings.Join(shown, " ")

	ctx, span := c.tracer.StartCLISpan(ctx, noun, verb)

	log := c.loggerFor(ctx)
	log.Debug().Str("command", command).Msg("running openstack client")

	var env []string
	if c.creds != nil {
		env = c.creds.Env()
	}

	result, err := c.runner.Run(ctx, transports.Command{Path: c.binary, Args: argv, Env: env})
	if err != nil {
		err = engine.NewExecutionError(fmt.Sprintf("failed to run %s", c.binary), err).
			WithDetail("command", command)
		c.finish(log, noun, verb, "error", 0, err)
		telemetry.EndSpan(span, err)
		return nil, err
	}

	span.SetAttributes(telemetry.AttrExitCode.Int(result.ExitCode))

	if !result.Success() {
		err = c.classifier.Classify(result, command)
		c.finish(log, noun, verb, outcomeOf(err), result.Duration, err)
		telemetry.EndSpan(span, err)
		return nil, err
	}

	c.finish(log, noun, verb, "success", result.Duration, nil)
	telemetry.EndSpan(span, nil)

	return &Output{Format: format, Stdout: result.Stdout, Stderr: result.Stderr}, nil
}

// loggerFor prefers the per-resource logger of ctx over the client's own.
func (c *Client) loggerFor(ctx context.Context) zerolog.Logger {
	return telemetry.ContextLogger(ctx, c.logger).With().Str("component", "executor").Logger()
}

func (c *Client) finish(log zerolog.Logger, noun, verb, outcome string, duration time.Duration, err error) {
	c.metrics.RecordCLICall(noun, verb, outcome, duration)

	event := log.Debug()
	if err != nil && !engine.IsNotFound(err) {
		event = log.Warn().Err(err)
	}
	event.Str("noun", noun).Str("verb", verb).Str("outcome", outcome).
		Dur("duration", duration).Msg("openstack client finished")
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case engine.IsAuthError(err):
		return "auth_failed"
	case engine.IsNotFound(err):
		return "not_found"
	default:
		return "failed"
	}
}
