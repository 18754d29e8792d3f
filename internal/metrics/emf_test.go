package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEmitter_ServiceDimension(t *testing.T) {
	e := NewEmitter("", "autocrop-web", &bytes.Buffer{})
	r := e.New()
	if r.emitter.namespace != DefaultNamespace {
		t.Errorf("expected namespace %s, got %s", DefaultNamespace, r.emitter.namespace)
	}
	if r.dimensions["Service"] != "autocrop-web" {
		t.Errorf("expected Service dimension autocrop-web, got %s", r.dimensions["Service"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter("AutoCropTest", "", &buf)

	rec := e.New()
	rec.Dimension("Route", "/process")
	rec.Metric("LatencyMs", 1234.5, UnitMilliseconds)
	rec.Metric("Requests", 1, UnitCount)
	rec.Property("batchId", "abc-123")
	rec.Flush()

	output := buf.String()
	if strings.Count(output, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", output)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != "AutoCropTest" {
		t.Errorf("expected namespace AutoCropTest, got %v", cw["Namespace"])
	}

	if doc["Route"] != "/process" {
		t.Errorf("expected Route=/process, got %v", doc["Route"])
	}
	if doc["LatencyMs"] != 1234.5 {
		t.Errorf("expected LatencyMs=1234.5, got %v", doc["LatencyMs"])
	}
	if doc["Requests"] != float64(1) {
		t.Errorf("expected Requests=1, got %v", doc["Requests"])
	}
	if doc["batchId"] != "abc-123" {
		t.Errorf("expected batchId=abc-123, got %v", doc["batchId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewEmitter("Test", "", &buf).New().Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestNilEmitter(t *testing.T) {
	var e *Emitter
	e.New().Count("Calls").Dimension("Op", "x").Flush()
	e.Request("/health", "GET", 200, time.Millisecond)
	e.Batch("sync", 1, 1, 0, time.Second)
}

func TestRecorder_Chaining(t *testing.T) {
	rec := NewEmitter("Test", "", &bytes.Buffer{}).New().
		Dimension("Op", "test").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Duration("Elapsed", 1500*time.Microsecond).
		Property("id", "xyz")

	if rec.dimensions["Op"] != "test" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != float64(1) {
		t.Error("chaining Count failed")
	}
	if rec.values["Elapsed"] != 1.5 {
		t.Errorf("chaining Duration = %v, want 1.5", rec.values["Elapsed"])
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}

func TestEmitter_Batch(t *testing.T) {
	var buf bytes.Buffer
	NewEmitter("AutoCrop", "autocrop-web", &buf).Batch("async", 3, 2, 1, 250*time.Millisecond)

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid EMF line: %v", err)
	}
	if doc["Mode"] != "async" || doc["Images"] != float64(3) || doc["ImagesFailed"] != float64(1) {
		t.Errorf("batch doc = %v", doc)
	}
	if doc["Service"] != "autocrop-web" {
		t.Errorf("Service = %v", doc["Service"])
	}
}
