package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClientWithOptions(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestListPaginatesAndMapsFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Query().Get("q"), "'folder1' in parents")
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"nextPageToken": "p2",
				"files": []map[string]any{
					{"id": "f1", "name": "a.pdf", "mimeType": "application/pdf", "modifiedTime": "2024-01-01T00:00:00Z", "md5Checksum": "m1"},
				},
			})
			return
		}
		writeJSON(w, map[string]any{
			"files": []map[string]any{
				{"id": "f2", "name": "Notes", "mimeType": "application/vnd.google-apps.document", "modifiedTime": "2024-01-02T00:00:00Z"},
			},
		})
	})

	entries, err := c.List(context.Background(), "https://drive.google.com/drive/folders/folder1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "m1", entries[0].Fingerprint)
	require.Equal(t, "application/vnd.google-apps.document", entries[1].MIMEType)
	require.Empty(t, entries[1].Fingerprint)
}

func TestListRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, map[string]any{"error": map[string]any{"code": 503, "message": "backend"}})
			return
		}
		writeJSON(w, map[string]any{"files": []map[string]any{}})
	})
	_, err := c.List(context.Background(), "folder1")
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestListGivesUpAsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		writeJSON(w, map[string]any{"error": map[string]any{"code": 429, "message": "slow down"}})
	})
	_, err := c.List(context.Background(), "folder1")
	require.True(t, errors.Is(err, outcome.ErrTransient))
}

func TestListDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"error": map[string]any{"code": 404, "message": "missing"}})
	})
	_, err := c.List(context.Background(), "folder1")
	require.Error(t, err)
	require.False(t, errors.Is(err, outcome.ErrTransient))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchExportsNativeDocuments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/files/doc1/export"), r.URL.Path)
		require.Equal(t, "application/pdf", r.URL.Query().Get("mimeType"))
		_, _ = io.WriteString(w, "%PDF")
	})
	rc, err := c.Fetch(context.Background(), gateway.Entry{ID: "doc1", Name: "Notes"}, "application/pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	require.Equal(t, "%PDF", string(body))
}

func TestReadPicksFormResponsesTab(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/values/") {
			require.Contains(t, r.URL.Path, "Form Responses 1")
			writeJSON(w, map[string]any{"values": [][]any{
				{"Timestamp", "Email", "Location"},
				{"1/2/2024 10:00:00", "a@x.com", "SiteA"},
			}})
			return
		}
		writeJSON(w, map[string]any{"sheets": []map[string]any{
			{"properties": map[string]any{"title": "Summary"}},
			{"properties": map[string]any{"title": "Form Responses 1"}},
		}})
	})
	table, err := c.Read(context.Background(), "https://docs.google.com/spreadsheets/d/sheet1/edit")
	require.NoError(t, err)
	require.Equal(t, []string{"Timestamp", "Email", "Location"}, table.Header)
	require.Equal(t, [][]string{{"1/2/2024 10:00:00", "a@x.com", "SiteA"}}, table.Rows)
}

func TestFormGetAndBatchUpdate(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.True(t, strings.HasSuffix(r.URL.Path, ":batchUpdate"), r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			writeJSON(w, map[string]any{})
			return
		}
		writeJSON(w, map[string]any{"formId": "form1", "items": []map[string]any{
			{"itemId": "i0", "title": "Name"},
			{"itemId": "i1", "title": "Location", "questionItem": map[string]any{"question": map[string]any{"questionId": "q1", "required": true}}},
		}})
	})
	form, err := c.Get(context.Background(), "form1")
	require.NoError(t, err)
	require.Len(t, form.Items, 2)
	require.Equal(t, "q1", form.Items[1].QuestionID)
	require.True(t, form.Items[1].Required)

	err = c.BatchUpdate(context.Background(), "form1", []gateway.ChoiceUpdate{{Item: form.Items[1], Choices: []string{"SiteA", "SiteB"}}})
	require.NoError(t, err)
	requests := captured["requests"].([]any)
	require.Len(t, requests, 1)
	update := requests[0].(map[string]any)["updateItem"].(map[string]any)
	require.Equal(t, "questionItem", update["updateMask"])
	require.Equal(t, float64(1), update["location"].(map[string]any)["index"])
	question := update["item"].(map[string]any)["questionItem"].(map[string]any)["question"].(map[string]any)
	require.Equal(t, "DROP_DOWN", question["choiceQuestion"].(map[string]any)["type"])
	require.Equal(t, true, question["required"])
}

func TestTokenSourceRequiresFiles(t *testing.T) {
	dir := t.TempDir()
	p := CredentialsProvider{CredentialsFile: filepath.Join(dir, "credentials.json"), TokenFile: filepath.Join(dir, "token.json")}
	_, err := p.TokenSource(context.Background())
	require.True(t, errors.Is(err, outcome.ErrCredential))

	creds := `{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	require.NoError(t, os.WriteFile(p.CredentialsFile, []byte(creds), 0o600))
	_, err = p.TokenSource(context.Background())
	require.True(t, errors.Is(err, outcome.ErrCredential))

	require.NoError(t, os.WriteFile(p.TokenFile, []byte(`{"token":"expired","expiry":"2000-01-01T00:00:00Z"}`), 0o600))
	_, err = p.TokenSource(context.Background())
	require.True(t, errors.Is(err, outcome.ErrCredential))
}

func TestTokenSourceAcceptsAuthorizedUserToken(t *testing.T) {
	dir := t.TempDir()
	p := CredentialsProvider{CredentialsFile: filepath.Join(dir, "credentials.json"), TokenFile: filepath.Join(dir, "token.json")}
	creds := `{"installed":{"client_id":"id","client_secret":"secret","token_uri":"https://oauth2.googleapis.com/token"}}`
	require.NoError(t, os.WriteFile(p.CredentialsFile, []byte(creds), 0o600))
	require.NoError(t, os.WriteFile(p.TokenFile, []byte(`{"token":"live","refresh_token":"r","expiry":"2999-01-01T00:00:00Z"}`), 0o600))

	ts, err := p.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, "live", tok.AccessToken)
}

func TestTokenSourceRefreshesFromAuthorizedUserFile(t *testing.T) {
	var refreshes atomic.Int32
	var grantType string
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		_ = r.ParseForm()
		grantType = r.Form.Get("grant_type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	dir := t.TempDir()
	p := CredentialsProvider{CredentialsFile: filepath.Join(dir, "credentials.json"), TokenFile: filepath.Join(dir, "token.json")}
	stored := `{"token":"stale","refresh_token":"r","expiry":"2000-01-01T00:00:00Z",` +
		`"client_id":"id","client_secret":"secret","token_uri":"` + tokenSrv.URL + `"}`
	require.NoError(t, os.WriteFile(p.TokenFile, []byte(stored), 0o600))

	ts, err := p.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, "fresh", tok.AccessToken)
	require.Equal(t, int32(1), refreshes.Load())
	require.Equal(t, "refresh_token", grantType)

	var persisted map[string]any
	data, err := os.ReadFile(p.TokenFile)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Equal(t, "fresh", persisted["access_token"])
	require.Equal(t, "r", persisted["refresh_token"])
	require.Equal(t, "id", persisted["client_id"])
	require.Equal(t, tokenSrv.URL, persisted["token_uri"])
}

func TestTokenSourceNeedsClientIdentity(t *testing.T) {
	dir := t.TempDir()
	p := CredentialsProvider{CredentialsFile: filepath.Join(dir, "credentials.json"), TokenFile: filepath.Join(dir, "token.json")}
	require.NoError(t, os.WriteFile(p.TokenFile, []byte(`{"token":"live","refresh_token":"r","expiry":"2999-01-01T00:00:00Z"}`), 0o600))
	_, err := p.TokenSource(context.Background())
	require.ErrorIs(t, err, outcome.ErrCredential)
	require.ErrorContains(t, err, "client id")

	require.NoError(t, os.WriteFile(p.CredentialsFile, []byte(`{"other":{}}`), 0o600))
	_, err = p.TokenSource(context.Background())
	require.ErrorIs(t, err, outcome.ErrCredential)
}
