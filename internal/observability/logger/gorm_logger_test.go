package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{`SELECT * FROM "products" WHERE price_ref = $1`, "SELECT", "products"},
		{"  insert into `checkout_sessions` (id) values (1)", "INSERT", "checkout_sessions"},
		{"UPDATE products SET stock_quantity = 1", "UPDATE", "products"},
		{"(DELETE FROM products)", "DELETE", "products"},
		{"", "UNKNOWN", "unknown"},
		{"VACUUM", "UNKNOWN", "unknown"},
	}
	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		if op != tc.op || table != tc.table {
			t.Fatalf("describeSQL(%q) = (%q, %q), want (%q, %q)", tc.sql, op, table, tc.op, tc.table)
		}
	}
}

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestTraceSkipsRecordNotFoundByDefault(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(DefaultGormLoggerConfig())

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM products WHERE price_ref = ?", 0
	}, gormlogger.ErrRecordNotFound)

	if logs.Len() != 0 {
		t.Fatalf("expected no log entries, got %d", logs.Len())
	}
}

func TestTraceLogsFailuresAndSlowQueries(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: time.Millisecond})

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT INTO checkout_sessions (id) VALUES (?)", 0
	}, errors.New("unique constraint"))
	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT COUNT(*) FROM products", 1
	}, nil)
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel || entries[0].ContextMap()["table"] != "checkout_sessions" {
		t.Fatalf("unexpected failure entry: %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected slow query at warn, got %s", entries[1].Level)
	}
}

func TestLogModeDoesNotMutateReceiver(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	_ = l.LogMode(gormlogger.Info)
	if l.cfg.Level != gormlogger.Warn {
		t.Fatalf("expected receiver level to stay warn, got %v", l.cfg.Level)
	}
}
