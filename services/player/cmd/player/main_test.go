package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/progress"
	"github.com/example/course-platform/services/player/internal/progressapi"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestToken_IssuesVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	out, err := execute(t, "token", "--subject", "u1", "--role", "admin")
	require.NoError(t, err)

	claims, err := auth.JWTVerifier{Secret: []byte("s3cret")}.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestToken_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := execute(t, "token", "--subject", "u1")
	require.Error(t, err)
}

func TestProgressGet_PrintsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/progress/go-101", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		rec := progress.New("go-101")
		rec.Progress = 40
		_ = json.NewEncoder(w).Encode(map[string]any{"progress": rec})
	}))
	defer srv.Close()

	out, err := execute(t, "--api", srv.URL, "--token", "tok", "progress", "get", "go-101")
	require.NoError(t, err)

	var got progress.Record
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "go-101", got.CourseID)
	assert.Equal(t, 40, got.Progress)
}

func TestProgressList_PassesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"progress":[]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--api", srv.URL, "--token", "tok", "progress", "list", "--limit", "3")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestWatch_RequiresToken(t *testing.T) {
	path := t.TempDir() + "/session.yaml"
	writeFile(t, path, "course: go-101\nvideo: dQw4w9WgXcQ\nsteps:\n  - do: ready\n")

	_, err := execute(t, "--token", "", "watch", "--script", path)
	require.ErrorIs(t, err, progressapi.ErrMissingToken)
}

func TestWatch_RejectsBadScript(t *testing.T) {
	path := t.TempDir() + "/session.yaml"
	writeFile(t, path, "course: go-101\nsteps: []\n")

	_, err := execute(t, "--token", "tok", "watch", "--script", path)
	require.Error(t, err)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}
