package pgstmt

import (
	"context"
	"testing"
	"time"
)

func TestConnectCapturesBackendKeyData(t *testing.T) {
	conn, _ := connectFake(t, nil)
	if conn.engine.Meta().PID != 4242 {
		t.Errorf("PID = %d, want 4242", conn.engine.Meta().PID)
	}
}

func TestGetParameterStatusReflectsStartup(t *testing.T) {
	conn, _ := connectFake(t, nil)
	// No ParameterStatus frames were scripted in startupFrames, so an
	// unreported GUC simply reports absent rather than panicking.
	if _, ok := conn.GetParameterStatus("server_version"); ok {
		t.Error("expected server_version to be unreported by this fake handshake")
	}
}

func TestNewStatementInheritsConnConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultFetchSize = 500
	cfg.QueryTimeout = 30 * time.Second
	conn, _ := connectFake(t, cfg)
	stmt := conn.NewStatement()
	if stmt.fetchSize != 500 {
		t.Errorf("fetchSize = %d, want 500", stmt.fetchSize)
	}
	if stmt.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", stmt.timeout)
	}
}

func TestStatementCloseIsIdempotent(t *testing.T) {
	conn, _ := connectFake(t, nil)
	stmt := conn.NewStatement()
	if err := stmt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := stmt.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := stmt.ExecuteText(context.Background(), "SELECT 1"); err == nil {
		t.Error("expected an error executing on a closed statement")
	}
}
