package skillvet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/varalys/skillvet/internal/engine"
	"github.com/varalys/skillvet/internal/git"
	"github.com/varalys/skillvet/internal/types"
)

const uploadSchemaVersion = "1"

type uploadEnvelope struct {
	Tool     string               `json:"tool"`
	Version  string               `json:"version"`
	Schema   string               `json:"schema_version"`
	Repo     string               `json:"repo,omitempty"`
	Commit   string               `json:"commit,omitempty"`
	Branch   string               `json:"branch,omitempty"`
	Reports  []types.TargetReport `json:"reports"`
	Failures []types.ScanFailure  `json:"failures"`
}

func newUploadEnvelope(rootPath string, noMeta bool, b engine.Batch) uploadEnvelope {
	env := uploadEnvelope{
		Tool:     "skillvet",
		Version:  version,
		Schema:   uploadSchemaVersion,
		Reports:  b.Reports,
		Failures: b.Failures,
	}
	if env.Reports == nil {
		env.Reports = []types.TargetReport{}
	}
	if env.Failures == nil {
		env.Failures = []types.ScanFailure{}
	}
	if !noMeta {
		// Best-effort git metadata
		env.Repo, env.Commit, env.Branch = git.RepoMetadata(rootPath)
	}
	return env
}

func uploadReports(rootPath, url, token string, noMeta bool, b engine.Batch) error {
	if len(b.Reports)+len(b.Failures) == 0 {
		return nil
	}
	body, err := json.Marshal(newUploadEnvelope(rootPath, noMeta, b))
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload status %d", resp.StatusCode)
	}
	return nil
}
