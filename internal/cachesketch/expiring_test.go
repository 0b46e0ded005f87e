package cachesketch

import (
	"testing"
	"time"

	"bloomsketch/internal/bloom"
)

func newTestExpiringFilter(t *testing.T) *ExpiringFilter {
	t.Helper()
	filter, err := NewExpiringFilter(&bloom.FilterBuilder{ExpectedElements: 100, FalsePositiveRate: 0.01})
	if err != nil {
		t.Fatalf("NewExpiringFilter failed: %v", err)
	}
	t.Cleanup(filter.Close)
	return filter
}

func TestWriteToCachedElementIsReported(t *testing.T) {
	filter := newTestExpiringFilter(t)
	element := []byte("page-1")

	filter.ReportRead(element, 100*time.Millisecond)
	if !filter.IsCached(element) {
		t.Fatal("element not cached after ReportRead")
	}

	filter.ReportWrite(element)
	if !filter.Contains(element) {
		t.Error("write to cached element not contained")
	}

	// After the TTL the scheduled decrement must have fired.
	time.Sleep(200 * time.Millisecond)
	if filter.Contains(element) {
		t.Error("element still contained after expiry")
	}
	if filter.IsCached(element) {
		t.Error("element still cached after expiry")
	}
}

func TestWriteToUncachedElementIsIgnored(t *testing.T) {
	filter := newTestExpiringFilter(t)
	element := []byte("never-read")

	filter.ReportWrite(element)
	if filter.Contains(element) {
		t.Error("write to uncached element entered the filter")
	}
	if !filter.IsEmpty() {
		t.Error("filter not empty after ignored write")
	}
}

func TestReportReadIsMonotonic(t *testing.T) {
	filter := newTestExpiringFilter(t)
	element := []byte("long-lived")

	filter.ReportRead(element, time.Hour)
	filter.ReportRead(element, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if !filter.IsCached(element) {
		t.Error("shorter TTL reported later shrank the freshness window")
	}
}

func TestEachWriteExpiresExactlyOnce(t *testing.T) {
	filter := newTestExpiringFilter(t)
	element := []byte("multi-write")

	filter.ReportRead(element, 80*time.Millisecond)
	writes := int64(3)
	for i := int64(0); i < writes; i++ {
		filter.ReportWrite(element)
	}
	if count := filter.GetEstimatedCount(element); count != writes {
		t.Errorf("count after %d writes = %d", writes, count)
	}

	time.Sleep(200 * time.Millisecond)
	if count := filter.GetEstimatedCount(element); count != 0 {
		t.Errorf("count after expiry = %d, expected 0", count)
	}
	if !filter.IsEmpty() {
		t.Error("filter not empty after all writes expired")
	}
}

func TestLaterExtensionDoesNotStretchEarlierWrites(t *testing.T) {
	filter := newTestExpiringFilter(t)
	element := []byte("extended")

	filter.ReportRead(element, 60*time.Millisecond)
	filter.ReportWrite(element)
	// Extending the cache TTL must not delay the invalidation window the
	// write was enqueued with.
	filter.ReportRead(element, 10*time.Second)

	time.Sleep(200 * time.Millisecond)
	if filter.Contains(element) {
		t.Error("decrement for the earlier write did not fire at its snapshot expiry")
	}
	if !filter.IsCached(element) {
		t.Error("extended element no longer cached")
	}
}

func TestWriteAfterExpiryIsIgnored(t *testing.T) {
	filter := newTestExpiringFilter(t)
	element := []byte("stale")

	filter.ReportRead(element, 30*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	if filter.IsCached(element) {
		t.Fatal("element still cached after TTL")
	}
	filter.ReportWrite(element)
	if filter.Contains(element) {
		t.Error("write after expiry entered the filter")
	}
}

func TestCloseDropsPendingExpirations(t *testing.T) {
	filter := newTestExpiringFilter(t)
	element := []byte("orphaned")

	filter.ReportRead(element, 50*time.Millisecond)
	filter.ReportWrite(element)
	filter.Close()

	time.Sleep(150 * time.Millisecond)
	if !filter.Contains(element) {
		t.Error("queued expiration applied after Close")
	}
}

func TestStringHelpers(t *testing.T) {
	filter := newTestExpiringFilter(t)

	filter.ReportReadString("seite", 200*time.Millisecond)
	if !filter.IsCachedString("seite") {
		t.Error("string element not cached")
	}
	filter.ReportWriteString("seite")
	if !filter.ContainsString("seite") {
		t.Error("string element not contained after write")
	}
}
