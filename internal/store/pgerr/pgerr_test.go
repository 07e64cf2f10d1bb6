package pgerr

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, transient: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, transient: true},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, transient: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "08003"}, transient: true},
		{name: "undefined table", err: &pgconn.PgError{Code: "42P01"}, transient: false},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, transient: false},
		{name: "canceled", err: context.Canceled, transient: false},
		{name: "plain", err: errors.New("boom"), transient: false},
	}
	for _, testCase := range testCases {
		if got := inventory.IsTransient(Classify(testCase.err)); got != testCase.transient {
			test.Fatalf("%s: expected transient=%t, got %t", testCase.name, testCase.transient, got)
		}
	}
	if Classify(nil) != nil {
		test.Fatalf("nil must stay nil")
	}
}

func TestClassifyAppliesExtraChecks(test *testing.T) {
	test.Parallel()
	busy := errors.New("database is locked")
	isBusy := func(err error) bool { return errors.Is(err, busy) }
	if !inventory.IsTransient(Classify(busy, isBusy)) {
		test.Fatalf("extra check must mark the error transient")
	}
	if inventory.IsTransient(Classify(busy)) {
		test.Fatalf("without the extra check the error stays fatal")
	}
}
