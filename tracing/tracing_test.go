package tracing

import (
	"context"
	"os"
	"testing"

	"github.com/opentracing/opentracing-go"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(TracingTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type TracingTestSuite struct {
	origTracer opentracing.Tracer
}

func (s *TracingTestSuite) SetUpTest(c *gc.C) {
	s.origTracer = opentracing.GlobalTracer()

	// Spans are reported to a local agent over UDP; nothing needs to be
	// listening for the test to pass.
	c.Assert(os.Setenv("JAEGER_AGENT_HOST", "127.0.0.1"), gc.IsNil)
}

func (s *TracingTestSuite) TearDownTest(c *gc.C) {
	opentracing.SetGlobalTracer(s.origTracer)
	_ = os.Unsetenv("JAEGER_AGENT_HOST")
}

func (s *TracingTestSuite) TestSetupInstallsGlobalTracer(c *gc.C) {
	closer, err := Setup("crawlrank-test")
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(closer.Close(), gc.IsNil) }()

	c.Assert(opentracing.IsGlobalTracerRegistered(), gc.Equals, true)

	span, ctx := opentracing.StartSpanFromContext(context.TODO(), "test")
	c.Assert(opentracing.SpanFromContext(ctx), gc.Equals, span)
	span.Finish()
}
