package quota

import (
	"errors"
	"testing"
	"time"
)

// TestBucketsAt проверяет календарное выравнивание ключей корзин (UTC).
func TestBucketsAt(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	hourBucket, dayBucket := bucketsAt(ts)

	if hourBucket != "2026-03-14T15" {
		t.Errorf("hourBucket = %q, ожидался 2026-03-14T15", hourBucket)
	}
	if dayBucket != "2026-03-14" {
		t.Errorf("dayBucket = %q, ожидался 2026-03-14", dayBucket)
	}
}

// TestBucketsAt_UTCNormalization проверяет приведение к UTC:
// момент в другой зоне попадает в UTC-корзину.
func TestBucketsAt_UTCNormalization(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	ts := time.Date(2026, 3, 15, 1, 30, 0, 0, msk) // 2026-03-14 22:30 UTC

	hourBucket, dayBucket := bucketsAt(ts)
	if hourBucket != "2026-03-14T22" {
		t.Errorf("hourBucket = %q, ожидался 2026-03-14T22", hourBucket)
	}
	if dayBucket != "2026-03-14" {
		t.Errorf("dayBucket = %q, ожидался 2026-03-14", dayBucket)
	}
}

// TestBucketsAt_BoundaryRollover фиксирует границу корзин: запросы по
// обе стороны полуночи попадают в разные суточные корзины, даже если
// между ними две минуты. Принятая неточность bucketed-схемы.
func TestBucketsAt_BoundaryRollover(t *testing.T) {
	before := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	after := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)

	_, dayBefore := bucketsAt(before)
	_, dayAfter := bucketsAt(after)
	if dayBefore == dayAfter {
		t.Error("моменты по разные стороны полуночи должны давать разные суточные корзины")
	}
}

// TestBucketKey проверяет формат ключа счётчика.
func TestBucketKey(t *testing.T) {
	got := bucketKey("abcdef0123456789", "files", "2026-03-14T15")
	want := "quota:abcdef0123456789:files:2026-03-14T15"
	if got != want {
		t.Errorf("bucketKey = %q, ожидалось %q", got, want)
	}
}

// TestBucketKeys_KindSeparation проверяет, что счётчики файлов и байт
// одного identity живут под разными ключами.
func TestBucketKeys_KindSeparation(t *testing.T) {
	hourBucket, _ := bucketsAt(time.Now())
	if bucketKey("id", "files", hourBucket) == bucketKey("id", "bytes", hourBucket) {
		t.Error("ключи счётчиков files и bytes не должны совпадать")
	}
}

// --- Тесты decisionFromReply ---

var bucketTestLimits = Limits{
	HourFiles: 100,
	DayFiles:  1000,
	HourBytes: 1 << 30,
	DayBytes:  10 << 30,
}

// TestDecisionFromReply_Allowed проверяет разрешающий ответ скрипта.
func TestDecisionFromReply_Allowed(t *testing.T) {
	d, err := decisionFromReply([]any{int64(1), int64(0), int64(0)}, bucketTestLimits)
	if err != nil {
		t.Fatalf("decisionFromReply вернул ошибку: %v", err)
	}
	if !d.Allowed {
		t.Error("Allowed = false, ожидался true")
	}
}

// TestDecisionFromReply_Predicates проверяет соответствие номера
// предиката виду потолка, окну и потолку в Decision. Порядок
// предикатов фиксирован: файлы/час, файлы/сутки, байты/час, байты/сутки.
func TestDecisionFromReply_Predicates(t *testing.T) {
	tests := []struct {
		name       string
		predicate  int64
		current    int64
		wantReason Reason
		wantWindow Window
		wantMax    int64
	}{
		{"файлы за час", 1, 100, ReasonFileCount, WindowHour, bucketTestLimits.HourFiles},
		{"файлы за сутки", 2, 1000, ReasonFileCount, WindowDay, bucketTestLimits.DayFiles},
		{"байты за час", 3, 1 << 29, ReasonByteTotal, WindowHour, bucketTestLimits.HourBytes},
		{"байты за сутки", 4, 9 << 30, ReasonByteTotal, WindowDay, bucketTestLimits.DayBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decisionFromReply([]any{int64(0), tt.predicate, tt.current}, bucketTestLimits)
			if err != nil {
				t.Fatalf("decisionFromReply вернул ошибку: %v", err)
			}
			if d.Allowed {
				t.Fatal("Allowed = true, ожидался отказ")
			}
			if d.Reason != tt.wantReason {
				t.Errorf("Reason = %q, ожидался %q", d.Reason, tt.wantReason)
			}
			if d.Window != tt.wantWindow {
				t.Errorf("Window = %q, ожидалось %q", d.Window, tt.wantWindow)
			}
			if d.Current != tt.current {
				t.Errorf("Current = %d, ожидалось %d", d.Current, tt.current)
			}
			if d.Max != tt.wantMax {
				t.Errorf("Max = %d, ожидался %d", d.Max, tt.wantMax)
			}
		})
	}
}

// TestDecisionFromReply_Malformed проверяет, что ответ неожиданной
// формы даёт ErrLedgerUnavailable, а не молчаливое разрешение.
func TestDecisionFromReply_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []any
	}{
		{"пустой ответ", []any{}},
		{"два элемента", []any{int64(0), int64(1)}},
		{"четыре элемента", []any{int64(0), int64(1), int64(2), int64(3)}},
		{"неизвестный предикат", []any{int64(0), int64(7), int64(42)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decisionFromReply(tt.raw, bucketTestLimits)
			if !errors.Is(err, ErrLedgerUnavailable) {
				t.Errorf("err = %v, ожидался ErrLedgerUnavailable", err)
			}
			if d != nil {
				t.Errorf("Decision = %+v, ожидался nil", d)
			}
		})
	}
}
