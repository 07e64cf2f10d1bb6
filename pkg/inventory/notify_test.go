package inventory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEvaluateNotificationGuard(test *testing.T) {
	test.Parallel()
	today := mustDate(test, "2026-02-06")
	recent := []EmailLogRow{{Timestamp: fixedNow.Add(-30 * time.Minute), BusinessDate: today}}
	earlierToday := []EmailLogRow{{Timestamp: fixedNow.Add(-3 * time.Hour), BusinessDate: today}}
	yesterday := []EmailLogRow{{Timestamp: fixedNow.Add(-26 * time.Hour), BusinessDate: mustDate(test, "2026-02-05")}}

	testCases := []struct {
		name   string
		force  ForceLevel
		sends  []EmailLogRow
		ok     bool
		reason NotificationReason
	}{
		{name: "no prior sends", force: ForceNone, ok: true, reason: ReasonOK},
		{name: "cooldown refuses", force: ForceNone, sends: recent, ok: false, reason: ReasonCooldown},
		{name: "force daily still in cooldown", force: ForceDaily, sends: recent, ok: false, reason: ReasonCooldown},
		{name: "force cooldown bypasses both", force: ForceCooldown, sends: recent, ok: true, reason: ReasonOK},
		{name: "daily cap refuses", force: ForceNone, sends: earlierToday, ok: false, reason: ReasonAlreadySentToday},
		{name: "force daily bypasses cap", force: ForceDaily, sends: earlierToday, ok: true, reason: ReasonOK},
		{name: "yesterday send allows", force: ForceNone, sends: yesterday, ok: true, reason: ReasonOK},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			decision := EvaluateNotificationGuard(fixedNow, today, 60*time.Minute, testCase.force, testCase.sends)
			if decision.OK != testCase.ok || decision.Reason != testCase.reason {
				test.Fatalf("expected ok=%t reason=%s, got %+v", testCase.ok, testCase.reason, decision)
			}
		})
	}
}

func TestNewForceLevel(test *testing.T) {
	test.Parallel()
	for _, raw := range []int{0, 1, 2} {
		if _, err := NewForceLevel(raw); err != nil {
			test.Fatalf("force %d: %v", raw, err)
		}
	}
	for _, raw := range []int{-1, 3} {
		if _, err := NewForceLevel(raw); !errors.Is(err, ErrInvalidForceLevel) {
			test.Fatalf("force %d: expected ErrInvalidForceLevel, got %v", raw, err)
		}
	}
}

func TestItemsHashIgnoresOrder(test *testing.T) {
	test.Parallel()
	first := []ShoppingRow{
		{UPC: mustUPC(test, "MILK"), QtyToOrder: mustDecimal(test, "12")},
		{UPC: mustUPC(test, "OAT"), QtyToOrder: mustDecimal(test, "4")},
	}
	second := []ShoppingRow{first[1], first[0]}
	if ItemsHash(first) != ItemsHash(second) {
		test.Fatalf("hash must not depend on row order")
	}
	changed := []ShoppingRow{first[0], {UPC: mustUPC(test, "OAT"), QtyToOrder: mustDecimal(test, "5")}}
	if ItemsHash(first) == ItemsHash(changed) {
		test.Fatalf("hash must change with quantities")
	}
}

func newNotifyService(test *testing.T, store *stubStore, notifier *recordingNotifier) *Service {
	test.Helper()
	store.seed(DefaultTables().ReorderTable(),
		Row{ColumnUPC: "MILK", ColumnQtyToOrder: "12"},
		Row{ColumnUPC: "OAT", ColumnQtyToOrder: "4"},
	)
	return mustNewService(test, store, WithNotifier(notifier), WithRequestIDs(func() string { return "req-1" }))
}

func TestSendReorderNotificationRecordsSend(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	notifier := &recordingNotifier{}
	service := newNotifyService(test, store, notifier)
	ctx := context.Background()

	result, err := service.SendReorderNotification(ctx, NotificationRequest{
		Actor:      "scheduler",
		Recipients: []string{"owner@cafe.test", " OWNER@cafe.test ", "", "buyer@cafe.test"},
		Cooldown:   time.Hour,
	})
	if err != nil {
		test.Fatalf("send: %v", err)
	}
	if !result.Sent || result.Items != 2 || result.Recipients != 2 || result.RequestID != "req-1" {
		test.Fatalf("unexpected result: %+v", result)
	}
	if len(notifier.messages) != 1 || len(notifier.messages[0].Recipients) != 2 {
		test.Fatalf("unexpected notifier messages: %+v", notifier.messages)
	}
	log := store.rows(DefaultTables().EmailLogTable())
	if len(log) != 1 {
		test.Fatalf("expected one email log row, got %v", log)
	}
	if log[0][ColumnBusinessDate] != "2026-02-06" || log[0][ColumnItems] != "2" || log[0][ColumnItemsHash] != result.ItemsHash {
		test.Fatalf("unexpected email log row: %v", log[0])
	}

	again, err := service.SendReorderNotification(ctx, NotificationRequest{Recipients: []string{"owner@cafe.test"}, Cooldown: time.Hour})
	if err != nil {
		test.Fatalf("second send: %v", err)
	}
	if again.Sent || again.Decision.Reason != ReasonCooldown {
		test.Fatalf("expected cooldown refusal, got %+v", again)
	}
	if len(notifier.messages) != 1 || len(store.rows(DefaultTables().EmailLogTable())) != 1 {
		test.Fatalf("refused send must not notify or log")
	}
}

func TestSendReorderNotificationForcedThroughCooldown(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seed(DefaultTables().EmailLogTable(), Row{ColumnTimestamp: "2026-02-06T14:30:00Z", ColumnBusinessDate: "2026-02-06"})
	notifier := &recordingNotifier{}
	service := newNotifyService(test, store, notifier)

	refused, err := service.SendReorderNotification(context.Background(), NotificationRequest{Recipients: []string{"owner@cafe.test"}, Cooldown: time.Hour})
	if err != nil || refused.Sent || refused.Decision.Reason != ReasonCooldown {
		test.Fatalf("expected cooldown refusal, got %+v err=%v", refused, err)
	}
	forced, err := service.SendReorderNotification(context.Background(), NotificationRequest{Recipients: []string{"owner@cafe.test"}, Cooldown: time.Hour, Force: ForceCooldown})
	if err != nil || !forced.Sent {
		test.Fatalf("expected forced send, got %+v err=%v", forced, err)
	}
}

func TestSendReorderNotificationSkipsEmptyList(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	notifier := &recordingNotifier{}
	service := mustNewService(test, store, WithNotifier(notifier))
	result, err := service.SendReorderNotification(context.Background(), NotificationRequest{Recipients: []string{"owner@cafe.test"}})
	if err != nil {
		test.Fatalf("send: %v", err)
	}
	if result.Sent || !result.Decision.OK || len(notifier.messages) != 0 || store.appendCalls != 0 {
		test.Fatalf("empty list must not send: %+v", result)
	}
}

func TestSendReorderNotificationValidation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	withoutNotifier := mustNewService(test, store)
	if _, err := withoutNotifier.SendReorderNotification(context.Background(), NotificationRequest{Recipients: []string{"a@b.test"}}); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
	service := mustNewService(test, store, WithNotifier(&recordingNotifier{}))
	testCases := []struct {
		name    string
		request NotificationRequest
		want    error
	}{
		{name: "force", request: NotificationRequest{Recipients: []string{"a@b.test"}, Force: 3}, want: ErrInvalidForceLevel},
		{name: "cooldown", request: NotificationRequest{Recipients: []string{"a@b.test"}, Cooldown: -time.Minute}, want: ErrInvalidCooldown},
		{name: "recipients", request: NotificationRequest{Recipients: []string{" "}}, want: ErrInvalidRecipients},
	}
	for _, testCase := range testCases {
		if _, err := service.SendReorderNotification(context.Background(), testCase.request); !errors.Is(err, testCase.want) {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.want, err)
		}
	}
}

func TestSendReorderNotificationNotifierFailureSkipsLog(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	notifier := &recordingNotifier{err: errStoreFailure}
	service := newNotifyService(test, store, notifier)
	if _, err := service.SendReorderNotification(context.Background(), NotificationRequest{Recipients: []string{"owner@cafe.test"}}); !errors.Is(err, errStoreFailure) {
		test.Fatalf("expected notifier error, got %v", err)
	}
	if len(store.rows(DefaultTables().EmailLogTable())) != 0 {
		test.Fatalf("failed send must not be logged")
	}
}

func TestSendReorderNotificationDatesMalformedLogRowsFromTimestamp(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		timestamp string
		reason    NotificationReason
	}{
		{name: "recent send still cools down", timestamp: fixedNow.Add(-10 * time.Minute).Format(time.RFC3339), reason: ReasonCooldown},
		{name: "earlier send still caps the day", timestamp: fixedNow.Add(-3 * time.Hour).Format(time.RFC3339), reason: ReasonAlreadySentToday},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			store.seed(DefaultTables().EmailLogTable(), Row{ColumnTimestamp: testCase.timestamp, ColumnBusinessDate: "02/06/2026"})
			notifier := &recordingNotifier{}
			service := newNotifyService(test, store, notifier)

			result, err := service.SendReorderNotification(context.Background(), NotificationRequest{Recipients: []string{"owner@cafe.test"}, Cooldown: time.Hour})
			if err != nil {
				test.Fatalf("send: %v", err)
			}
			if result.Sent || result.Decision.Reason != testCase.reason {
				test.Fatalf("expected refusal with %s, got %+v", testCase.reason, result)
			}
			if len(notifier.messages) != 0 {
				test.Fatalf("refused send must not notify")
			}
			if len(result.InvalidRows) != 1 {
				test.Fatalf("expected the malformed date to be reported, got %v", result.InvalidRows)
			}
		})
	}
}

func TestSendReorderNotificationDropsUnreadableLogRows(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seed(DefaultTables().EmailLogTable(), Row{ColumnTimestamp: "yesterday-ish", ColumnBusinessDate: "02/06/2026"})
	notifier := &recordingNotifier{}
	service := newNotifyService(test, store, notifier)

	result, err := service.SendReorderNotification(context.Background(), NotificationRequest{Recipients: []string{"owner@cafe.test"}, Cooldown: time.Hour})
	if err != nil {
		test.Fatalf("send: %v", err)
	}
	if !result.Sent || len(result.InvalidRows) != 1 {
		test.Fatalf("expected send with one reported row, got %+v", result)
	}
}
