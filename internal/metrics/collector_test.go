package metrics

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_SameKeyReturnsSameCounter(t *testing.T) {
	c := NewRegistry()
	a := c.Counter("x_total", "x", "")
	b := c.Counter("x_total", "x", "")
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Fatalf("expected 3, got %d", a.Value())
	}
}

func TestRender_Stable(t *testing.T) {
	c := NewRegistry()
	c.Counter("b_total", "b", "").Inc()
	c.Counter("a_total", "a", `kind="quota"`).Add(4)
	c.Gauge("g", "gauge", "").Set(7)
	h := c.Histogram("lat_seconds", "latency", "", []float64{1, 5})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(10)

	out := c.Render()
	for _, want := range []string{
		`a_total{kind="quota"} 4`,
		"b_total 1",
		"g 7",
		`lat_seconds_bucket{le="1"} 1`,
		`lat_seconds_bucket{le="5"} 2`,
		`lat_seconds_bucket{le="+Inf"} 3`,
		"lat_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "a_total") > strings.Index(out, "b_total") {
		t.Fatal("counters should be rendered in key order")
	}
	if out != c.Render() {
		t.Fatal("render should be deterministic")
	}
}

func TestHandler(t *testing.T) {
	c := NewRegistry()
	c.Counter("checkin_test_total", "t", "").Inc()
	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "checkin_test_total 1") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestGenerationFailures_PerKind(t *testing.T) {
	GenerationFailures("quota").Inc()
	if GenerationFailures("quota") != GenerationFailures("quota") {
		t.Fatal("expected the same counter for the same kind")
	}
	if GenerationFailures("quota") == GenerationFailures("auth") {
		t.Fatal("expected distinct counters per kind")
	}
}

func TestHistogram_CumulativeBuckets(t *testing.T) {
	c := NewRegistry()
	h := c.Histogram("wait_seconds", "wait", `kind="x"`, []float64{5, 1, math.Inf(1)})
	for _, v := range []float64{1, 1, 4, 7} {
		h.Observe(v)
	}
	out := c.Render()
	for _, want := range []string{
		`wait_seconds_bucket{kind="x",le="1"} 2`,
		`wait_seconds_bucket{kind="x",le="5"} 3`,
		`wait_seconds_bucket{kind="x",le="+Inf"} 4`,
		`wait_seconds_count{kind="x"} 4`,
		`wait_seconds_sum{kind="x"} 13.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Count(out, `le="+Inf"`) != 1 {
		t.Fatalf("expected a single +Inf bucket:\n%s", out)
	}
}

func TestRender_HelpOncePerName(t *testing.T) {
	c := NewRegistry()
	c.Counter("fail_total", "failures", `kind="a"`).Inc()
	c.Counter("fail_total", "failures", `kind="b"`).Inc()
	out := c.Render()
	if n := strings.Count(out, "# TYPE fail_total counter"); n != 1 {
		t.Fatalf("expected one TYPE line, got %d:\n%s", n, out)
	}
}

func TestRegister_KindConflictPanics(t *testing.T) {
	c := NewRegistry()
	c.Counter("dup", "d", "")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering a gauge over a counter")
		}
	}()
	c.Gauge("dup", "d", "")
}
