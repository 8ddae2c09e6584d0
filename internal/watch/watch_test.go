package watch_test

import (
	"testing"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/internal/store"
	"hliquity_mirror/internal/watch"
	"hliquity_mirror/pkg/quant"
)

func stateAt(price int64, collateral, debt int64, status domain.TroveStatus) store.State[store.BlockState] {
	var s store.State[store.BlockState]
	s.Price = quant.FromInt(price)
	s.Trove = domain.Position{
		Owner:  "0xabc",
		Status: status,
		Trove:  domain.Trove{Collateral: quant.FromInt(collateral), Debt: quant.FromInt(debt)},
	}
	return s
}

func TestCollateralWatch(t *testing.T) {
	// Threshold 1.5; trove 10 collateral / 1000 debt
	w := watch.NewCollateralWatch(quant.MustParse("1.5"))

	push := func(price int64) []watch.Alert {
		return w.OnState(stateAt(price, 10, 1000, domain.StatusActive))
	}

	// T1: price 200 -> ratio 2.0 (above). First observation, no alert
	if alerts := push(200); len(alerts) != 0 {
		t.Errorf("T1: Expected no alerts, got %v", alerts)
	}

	// T2: price 160 -> ratio 1.6, still above
	if alerts := push(160); len(alerts) != 0 {
		t.Errorf("T2: Expected no alerts, got %v", alerts)
	}

	// T3: price 140 -> ratio 1.4 => BELOW
	alerts := push(140)
	if len(alerts) != 1 {
		t.Fatalf("T3: Expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Type != watch.AlertRatioBelowThreshold {
		t.Errorf("T3: Expected RATIO_BELOW_THRESHOLD, got %s", alerts[0].Type)
	}
	if !alerts[0].Ratio.Eq(quant.MustParse("1.4")) || alerts[0].Owner != "0xabc" {
		t.Errorf("T3: unexpected alert %+v", alerts[0])
	}

	// T4: price 120 -> still below, no repeat
	if alerts := push(120); len(alerts) != 0 {
		t.Errorf("T4: Expected no alerts, got %v", alerts)
	}

	// T5: price 150 -> ratio 1.5 exactly, not below => RESTORED
	alerts = push(150)
	if len(alerts) != 1 || alerts[0].Type != watch.AlertRatioRestored {
		t.Fatalf("T5: Expected RATIO_RESTORED, got %v", alerts)
	}
}

func TestCollateralWatch_StartsBelow(t *testing.T) {
	w := watch.NewCollateralWatch(quant.MustParse("1.1"))

	alerts := w.OnState(stateAt(100, 10, 1000, domain.StatusActive)) // ratio 1.0
	if len(alerts) != 1 || alerts[0].Type != watch.AlertRatioBelowThreshold {
		t.Fatalf("Expected an immediate alert for an at-risk trove, got %v", alerts)
	}
}

func TestCollateralWatch_ClosedTroveResets(t *testing.T) {
	w := watch.NewCollateralWatch(quant.MustParse("1.5"))

	w.OnState(stateAt(100, 10, 1000, domain.StatusActive)) // below
	if alerts := w.OnState(stateAt(100, 0, 0, domain.StatusClosedByLiquidation)); len(alerts) != 0 {
		t.Errorf("Closed trove should not alert, got %v", alerts)
	}

	// Reopened above the threshold: fresh first observation
	if alerts := w.OnState(stateAt(200, 10, 1000, domain.StatusActive)); len(alerts) != 0 {
		t.Errorf("Reopened trove above threshold should not alert, got %v", alerts)
	}
}

func TestRecoveryModeWatch(t *testing.T) {
	w := watch.NewRecoveryModeWatch()
	fees := domain.NewFees(quant.Zero, quant.MustParse("0.999"), quant.FromInt(2), timeZero, timeZero, false, domain.DefaultParams())

	push := func(recovery bool) []watch.Alert {
		var s store.State[store.BlockState]
		s.Fees = fees.SetRecoveryMode(recovery)
		return w.OnState(s)
	}

	if alerts := push(false); len(alerts) != 0 {
		t.Errorf("Starting in normal mode should not alert, got %v", alerts)
	}
	if alerts := push(true); len(alerts) != 1 || alerts[0].Type != watch.AlertRecoveryModeEntered {
		t.Errorf("Expected RECOVERY_MODE_ENTERED, got %v", alerts)
	}
	if alerts := push(true); len(alerts) != 0 {
		t.Errorf("Expected no repeat, got %v", alerts)
	}
	if alerts := push(false); len(alerts) != 1 || alerts[0].Type != watch.AlertRecoveryModeExited {
		t.Errorf("Expected RECOVERY_MODE_EXITED, got %v", alerts)
	}
}

func TestListener(t *testing.T) {
	var got []watch.Alert
	listener := watch.Listener(func(a watch.Alert) { got = append(got, a) },
		watch.NewCollateralWatch(quant.MustParse("1.5")),
		watch.NewRecoveryModeWatch(),
	)

	listener(store.Notification[store.BlockState]{NewState: stateAt(100, 10, 1000, domain.StatusActive)})
	if len(got) != 1 || got[0].Type != watch.AlertRatioBelowThreshold {
		t.Errorf("Expected one collateral alert, got %v", got)
	}
}

func TestAlertType_String(t *testing.T) {
	if watch.AlertType(0).String() != "UNKNOWN" {
		t.Error("zero AlertType should be UNKNOWN")
	}
	text, _ := watch.AlertRecoveryModeEntered.MarshalText()
	if string(text) != "RECOVERY_MODE_ENTERED" {
		t.Errorf("unexpected text %q", text)
	}
}
