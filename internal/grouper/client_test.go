package grouper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/groupsync/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newTestClient(srv *httptest.Server) *Client {
	var buf bytes.Buffer
	return NewClient(srv.Client(), newTestLogger(&buf), srv.URL, "gc-user", "gc-pass")
}

func TestClient_ReplaceMembers_SendsExpectedRequest(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotUser, gotPass string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotUser, gotPass, _ = r.BasicAuth()
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"WsAddMemberResults":{"resultMetadata":{"resultCode":"SUCCESS"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	members := []model.Member{
		{Identifier: "alice@berkeley.edu", Kind: model.SubjectIdentifier},
		{Identifier: "12345", Kind: model.SubjectID},
	}

	err := c.ReplaceMembers(context.Background(), "edu:berkeley:app:datahub:datahub-users", members, true)
	if err != nil {
		t.Fatalf("ReplaceMembers() がエラーを返した: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("メソッド = %q, want %q", gotMethod, http.MethodPut)
	}
	if gotPath != "/groups/edu:berkeley:app:datahub:datahub-users/members" {
		t.Errorf("パス = %q, want %q", gotPath, "/groups/edu:berkeley:app:datahub:datahub-users/members")
	}
	if gotContentType != "text/x-json" {
		t.Errorf("Content-Type = %q, want %q", gotContentType, "text/x-json")
	}
	if gotUser != "gc-user" || gotPass != "gc-pass" {
		t.Errorf("Basic認証 = (%q, %q), want (gc-user, gc-pass)", gotUser, gotPass)
	}

	var payload struct {
		WsRestAddMemberRequest struct {
			ReplaceAllExisting string              `json:"replaceAllExisting"`
			SubjectLookups     []map[string]string `json:"subjectLookups"`
		} `json:"WsRestAddMemberRequest"`
	}
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("リクエストボディの解析に失敗した: %v (%s)", err, gotBody)
	}

	req := payload.WsRestAddMemberRequest
	if req.ReplaceAllExisting != "T" {
		t.Errorf("replaceAllExisting = %q, want %q", req.ReplaceAllExisting, "T")
	}
	if len(req.SubjectLookups) != 2 {
		t.Fatalf("subjectLookups数 = %d, want 2", len(req.SubjectLookups))
	}
	if req.SubjectLookups[0]["subjectIdentifier"] != "alice@berkeley.edu" {
		t.Errorf("subjectLookups[0] = %v, want subjectIdentifier=alice@berkeley.edu", req.SubjectLookups[0])
	}
	if req.SubjectLookups[1]["subjectId"] != "12345" {
		t.Errorf("subjectLookups[1] = %v, want subjectId=12345", req.SubjectLookups[1])
	}
}

func TestClient_ReplaceMembers_ReplaceAllFalse(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"WsAddMemberResults":{}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	err := c.ReplaceMembers(context.Background(), "g", nil, false)
	if err != nil {
		t.Fatalf("ReplaceMembers() がエラーを返した: %v", err)
	}

	var payload map[string]map[string]json.RawMessage
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("リクエストボディの解析に失敗した: %v", err)
	}
	if string(payload["WsRestAddMemberRequest"]["replaceAllExisting"]) != `"F"` {
		t.Errorf("replaceAllExisting = %s, want \"F\"", payload["WsRestAddMemberRequest"]["replaceAllExisting"])
	}
}

func TestClient_ReplaceMembers_EmptyMembers(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"WsAddMemberResults":{}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	// メンバー0件は空集合への置換として有効なリクエスト
	err := c.ReplaceMembers(context.Background(), "g", nil, true)
	if err != nil {
		t.Fatalf("ReplaceMembers() がエラーを返した: %v", err)
	}

	var payload struct {
		WsRestAddMemberRequest struct {
			SubjectLookups []map[string]string `json:"subjectLookups"`
		} `json:"WsRestAddMemberRequest"`
	}
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("リクエストボディの解析に失敗した: %v", err)
	}
	if payload.WsRestAddMemberRequest.SubjectLookups == nil {
		t.Error("subjectLookupsはnullではなく空配列であるべき")
	}
	if len(payload.WsRestAddMemberRequest.SubjectLookups) != 0 {
		t.Errorf("subjectLookups数 = %d, want 0", len(payload.WsRestAddMemberRequest.SubjectLookups))
	}
}

func TestClient_ReplaceMembers_ProblemResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"WsRestResultProblem":{"resultMetadata":{"resultCode":"INVALID_QUERY","resultMessage":"bad group"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	err := c.ReplaceMembers(context.Background(), "g", nil, true)
	if err == nil {
		t.Fatal("問題インジケータを含むレスポンスではエラーが返るべき")
	}
	if !model.IsSyncErrorCode(err, model.ErrCodeDirectoryProblem) {
		t.Fatalf("エラーコード = %v, want %s", err, model.ErrCodeDirectoryProblem)
	}

	// ディレクトリ側の結果メタデータが保持されること
	var se *model.SyncError
	if !errors.As(err, &se) {
		t.Fatalf("SyncErrorであるべき: %v", err)
	}
	if se.Meta["resultCode"] != "INVALID_QUERY" {
		t.Errorf("Meta[resultCode] = %v, want INVALID_QUERY", se.Meta["resultCode"])
	}
}

func TestClient_ReplaceMembers_InvalidJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>error</html>`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	err := c.ReplaceMembers(context.Background(), "g", nil, true)
	if err == nil {
		t.Fatal("不正なJSONレスポンスではエラーが返るべき")
	}
	if !model.IsSyncErrorCode(err, model.ErrCodeParse) {
		t.Errorf("エラーコード = %v, want %s", err, model.ErrCodeParse)
	}
}

func TestClient_ReplaceMembers_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 即座に停止して接続失敗を発生させる

	var buf bytes.Buffer
	c := NewClient(&http.Client{Timeout: time.Second}, newTestLogger(&buf), srv.URL, "u", "p")

	err := c.ReplaceMembers(context.Background(), "g", nil, true)
	if err == nil {
		t.Fatal("接続失敗時にはエラーが返るべき")
	}
	if !model.IsSyncErrorCode(err, model.ErrCodeTransport) {
		t.Errorf("エラーコード = %v, want %s", err, model.ErrCodeTransport)
	}
}

func TestBoolString(t *testing.T) {
	if boolString(true) != "T" {
		t.Errorf("boolString(true) = %q, want %q", boolString(true), "T")
	}
	if boolString(false) != "F" {
		t.Errorf("boolString(false) = %q, want %q", boolString(false), "F")
	}
}
