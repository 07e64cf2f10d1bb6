package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarkoPoloResearchLab/cafestock/internal/metrics"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

func TestLogOperation(test *testing.T) {
	date, err := inventory.ParseBusinessDate("2026-03-14")
	if err != nil {
		test.Fatalf("parse date: %v", err)
	}
	upc, err := inventory.NewUPC("MILK")
	if err != nil {
		test.Fatalf("upc: %v", err)
	}
	testCases := []struct {
		name        string
		entry       inventory.OperationLog
		wantLevel   zapcore.Level
		wantStatus  string
		wantFields  []string
		absentField string
	}{
		{
			name: "success",
			entry: inventory.OperationLog{
				Operation:    "oplog_test_usage",
				BusinessDate: date,
				Mode:         inventory.WriteModeReplace,
				RowsWritten:  3,
				Warnings:     2,
			},
			wantLevel:   zapcore.InfoLevel,
			wantStatus:  statusOK,
			wantFields:  []string{"business_date", "mode", "rows_written", "warnings"},
			absentField: "error",
		},
		{
			name: "failure",
			entry: inventory.OperationLog{
				Operation: "oplog_test_action",
				UPC:       upc,
				Action:    inventory.ActionDismissed,
				Error:     errors.New("boom"),
			},
			wantLevel:   zapcore.ErrorLevel,
			wantStatus:  statusError,
			wantFields:  []string{"upc", "action", "error"},
			absentField: "business_date",
		},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			logger := New(zap.New(core))
			before := testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(testCase.entry.Operation, testCase.wantStatus))

			logger.LogOperation(context.Background(), testCase.entry)

			entries := recorded.All()
			if len(entries) != 1 {
				test.Fatalf("expected one log entry, got %d", len(entries))
			}
			if entries[0].Level != testCase.wantLevel {
				test.Fatalf("expected level %s, got %s", testCase.wantLevel, entries[0].Level)
			}
			fields := entries[0].ContextMap()
			if fields["status"] != testCase.wantStatus {
				test.Fatalf("expected status %s, got %v", testCase.wantStatus, fields["status"])
			}
			for _, key := range testCase.wantFields {
				if _, ok := fields[key]; !ok {
					test.Fatalf("expected field %s in %v", key, fields)
				}
			}
			if _, ok := fields[testCase.absentField]; ok {
				test.Fatalf("unexpected field %s in %v", testCase.absentField, fields)
			}
			after := testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(testCase.entry.Operation, testCase.wantStatus))
			if after != before+1 {
				test.Fatalf("expected counter to advance by one, got %v -> %v", before, after)
			}
		})
	}
}

func TestNewFallsBackToNop(test *testing.T) {
	test.Parallel()
	New(nil).LogOperation(context.Background(), inventory.OperationLog{Operation: "oplog_test_nop"})
}
