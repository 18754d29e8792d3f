package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStartupLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()
	log.Logger = zerolog.New(writer("json", &buf))
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	NewStartupLogger("autocrop-web").
		Version("1.2.3").
		Dir("work", "/var/autocrop").
		Storage("s3Bucket", "crops").
		Feature("metrics", true).
		Config("port", "3000").
		Log()

	var evt map[string]any
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("startup event is not JSON: %v (%s)", err, buf.String())
	}
	process, _ := evt["process"].(map[string]any)
	if process["name"] != "autocrop-web" || process["version"] != "1.2.3" {
		t.Errorf("process = %v", process)
	}
	if dirs, _ := evt["dirs"].(map[string]any); dirs["work"] != "/var/autocrop" {
		t.Errorf("dirs = %v", evt["dirs"])
	}
	if features, _ := evt["features"].(map[string]any); features["metrics"] != true {
		t.Errorf("features = %v", evt["features"])
	}
	if evt["message"] != "Startup complete" {
		t.Errorf("message = %v", evt["message"])
	}
}
