package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/lightauth/internal/models"
	"github.com/starford/lightauth/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	svc := testutil.Unlocked(t)
	ctx := context.Background()
	for _, a := range []models.Account{
		{Name: "alice", Issuer: "GitHub", Secret: "JBSWY3DPEHPK3PXP"},
		{Name: "rfc", Secret: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"},
	} {
		if _, err := svc.Add(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	srv := New(svc, "test")
	srv.now = func() time.Time { return time.Unix(59, 0) }
	return srv
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_accounts":
		result, err = srv.listAccounts(ctx, req)
	case "get_code":
		result, err = srv.getCode(ctx, req)
	case "parse_otp_uri":
		result, err = srv.parseURI(ctx, req)
	case "generate_secret":
		result, err = srv.generateSecret(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListAccounts(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "list_accounts", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	text := resultText(r)
	if strings.Contains(text, "JBSWY3DPEHPK3PXP") {
		t.Error("list_accounts leaks a secret")
	}
	var got []accountEntry
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "alice" || got[1].Index != 1 {
		t.Errorf("accounts = %+v", got)
	}
}

func TestGetCode(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_code", map[string]interface{}{"index": "1"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var got struct {
		Code             string `json:"code"`
		RemainingSeconds int    `json:"remaining_seconds"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.Code != "287082" || got.RemainingSeconds != 1 {
		t.Errorf("code = %+v", got)
	}
}

func TestGetCode_BadIndex(t *testing.T) {
	srv := testServer(t)
	for _, idx := range []string{"x", "5", "-1"} {
		r := callTool(t, srv, "get_code", map[string]interface{}{"index": idx})
		if !r.IsError {
			t.Errorf("index %q: expected error", idx)
		}
	}
	if r := callTool(t, srv, "get_code", map[string]interface{}{}); !r.IsError {
		t.Error("missing index: expected error")
	}
}

func TestGetCode_Locked(t *testing.T) {
	srv := testServer(t)
	srv.svc.Lock()
	r := callTool(t, srv, "list_accounts", map[string]interface{}{})
	if !r.IsError || !strings.Contains(resultText(r), "locked") {
		t.Errorf("locked list = %q", resultText(r))
	}
}

func TestParseURI(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "parse_otp_uri", map[string]interface{}{
		"uri": "otpauth://totp/ACME%20Co:john@example.com?secret=HXDMVJECJJWSRB3HWIZR4IFUGFTMXBOZ&issuer=ACME%20Co",
	})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var key struct {
		Type, Name, Issuer, Secret string
	}
	if err := json.Unmarshal([]byte(resultText(r)), &key); err != nil {
		t.Fatal(err)
	}
	if key.Type != "totp" || key.Name != "john@example.com" || key.Issuer != "ACME Co" {
		t.Errorf("key = %+v", key)
	}

	r = callTool(t, srv, "parse_otp_uri", map[string]interface{}{"uri": "https://example.com"})
	if !r.IsError {
		t.Error("expected error for foreign scheme")
	}
}

func TestGenerateSecret(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "generate_secret", map[string]interface{}{})
	if got := resultText(r); len(got) != 32 || strings.Trim(got, "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567") != "" {
		t.Errorf("secret = %q", got)
	}
}

func TestURIFormatResource(t *testing.T) {
	srv := testServer(t)
	contents, err := srv.readURIFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, "otpauth://totp/") {
		t.Errorf("resource = %+v", contents)
	}
}
