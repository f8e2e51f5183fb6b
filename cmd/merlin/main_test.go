package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func zeros(n int) string {
	return "[" + strings.TrimSuffix(strings.Repeat("0,", n), ",") + "]"
}

func ones(n int) string {
	return "[" + strings.TrimSuffix(strings.Repeat("1,", n), ",") + "]"
}

func writeArtifact(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

// rfOnlyDir writes a random forest that always answers 0.62.
func rfOnlyDir(t *testing.T) string {
	dir := t.TempDir()
	writeArtifact(t, dir, "random_forest_model", `{"kind":"random_forest","n_features":13,"trees":[{"nodes":[{"leaf":true,"value":0.62}]}]}`)
	writeArtifact(t, dir, "scaler_rf", `{"kind":"standard_scaler","mean":`+zeros(13)+`,"scale":`+ones(13)+`}`)
	return dir
}

func runCLI(t *testing.T, input string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(input), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeOne(t *testing.T, out string) map[string]any {
	t.Helper()
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected exactly one line on stdout, got %q", out)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(out), &obj); err != nil {
		t.Fatalf("stdout is not a JSON object: %v", err)
	}
	return obj
}

const transferAtNight = `{"amount": 800, "day": 15, "type": "TRANSFER", "transaction_pair_code": "cc", "part_of_the_day": "night"}`

func TestRunRFOnly(t *testing.T) {
	t.Setenv("MERLIN_NEURAL", "false")

	code, stdout, stderr := runCLI(t, transferAtNight, "-models", rfOnlyDir(t))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s %s", code, stdout, stderr)
	}

	obj := decodeOne(t, stdout)
	if obj["isFraud"] != true || obj["probability"] != 0.62 || obj["riskScore"] != float64(62) {
		t.Errorf("unexpected decision: %v", obj)
	}
	if obj["predictionMethod"] != "rf_only" || obj["status"] != "fraud" {
		t.Errorf("unexpected method/status: %v", obj)
	}
	if stderr == "" {
		t.Error("expected diagnostics on stderr")
	}
}

func TestRunFullEnsemble(t *testing.T) {
	dir := rfOnlyDir(t)
	writeArtifact(t, dir, "xgboost_model", `{"kind":"gradient_boosting","n_features":13,"base_margin":0,"trees":[{"nodes":[{"leaf":true,"value":0}]}]}`)
	writeArtifact(t, dir, "scaler", `{"kind":"standard_scaler","mean":`+zeros(13)+`,"scale":`+ones(13)+`}`)

	weights := make([]string, 15)
	for i := range weights {
		weights[i] = "[0]"
	}
	writeArtifact(t, dir, "cnn_model", `{"kind":"sequential","layers":[
		{"type":"flatten"},
		{"type":"dense","weights":[`+strings.Join(weights, ",")+`],"bias":[0.3],"activation":"linear"}
	]}`)
	t.Setenv("MERLIN_NEURAL", "true")

	code, stdout, stderr := runCLI(t, transferAtNight, "-models", dir)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s %s", code, stdout, stderr)
	}

	obj := decodeOne(t, stdout)
	if obj["predictionMethod"] != "rf_major_ensemble" {
		t.Errorf("expected rf_major_ensemble, got %v", obj["predictionMethod"])
	}
	p := obj["probability"].(float64)
	if want := 0.7*0.62 + 0.2*0.5 + 0.1*0.3; p < want-1e-9 || p > want+1e-9 {
		t.Errorf("expected probability %v, got %v", want, p)
	}
	preds := obj["modelPredictions"].(map[string]any)
	if len(preds) != 3 {
		t.Errorf("expected 3 model predictions, got %v", preds)
	}
}

func TestRunErrors(t *testing.T) {
	t.Setenv("MERLIN_NEURAL", "false")
	missing := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name   string
		input  string
		models string
		want   string
	}{
		{"EmptyInput", "", rfOnlyDir(t), "Empty input received"},
		{"Day35", `{"amount": 10, "day": 35, "type": "PAYMENT", "transaction_pair_code": "cc", "part_of_the_day": "morning"}`, rfOnlyDir(t), "Day must be an integer between 1 and 31"},
		{"InputBeforeModels", `{"amount": 10}`, missing, "Missing field: day"},
		{"MissingModels", transferAtNight, t.TempDir(), "Model file not found: random_forest_model"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, stdout, _ := runCLI(t, tc.input, "-models", tc.models)
			if code != 1 {
				t.Errorf("expected exit 1, got %d", code)
			}
			obj := decodeOne(t, stdout)
			if obj["error"] != tc.want {
				t.Errorf("expected error %q, got %v", tc.want, obj["error"])
			}
		})
	}

	t.Run("UnreadableModelDir", func(t *testing.T) {
		code, stdout, _ := runCLI(t, transferAtNight, "-models", missing)
		if code != 1 {
			t.Errorf("expected exit 1, got %d", code)
		}
		obj := decodeOne(t, stdout)
		if msg, _ := obj["error"].(string); !strings.HasPrefix(msg, "Failed to load model random_forest_model") {
			t.Errorf("unexpected error: %v", obj["error"])
		}
	})
}

func TestRunVersion(t *testing.T) {
	code, stdout, stderr := runCLI(t, "", "-version")
	if code != 0 || !strings.HasPrefix(stderr, "merlin ") {
		t.Errorf("unexpected version output: %d %q", code, stderr)
	}
	if stdout != "" {
		t.Errorf("version must not write to stdout, got %q", stdout)
	}
}

func TestRunBadFlag(t *testing.T) {
	code, stdout, _ := runCLI(t, transferAtNight, "-bogus")
	if code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	obj := decodeOne(t, stdout)
	if msg, _ := obj["error"].(string); !strings.HasPrefix(msg, "Unexpected error: invalid arguments") {
		t.Errorf("unexpected error: %v", obj["error"])
	}
}

func TestRunWhitespaceInput(t *testing.T) {
	code, stdout, _ := runCLI(t, "   \n", "-models", rfOnlyDir(t))
	if code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	obj := decodeOne(t, stdout)
	if obj["error"] != "Invalid JSON input: EOF" {
		t.Errorf("unexpected error: %v", obj["error"])
	}
}
