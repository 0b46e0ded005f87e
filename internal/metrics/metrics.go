package metrics

import (
	"runtime"
	"sync/atomic"
	"time"
)

// SystemMetricsRegistry holds the atomic counters for the filter service.
type SystemMetricsRegistry struct {
	AddOperations           int64
	ContainsOperations      int64
	RemoveOperations        int64
	ReportedReads           int64
	ReportedWrites          int64
	ExpiredElements         int64
	RedisTransactionRetries int64
	SysMemAlloc             uint64
	Goroutines              int64
}

var Global SystemMetricsRegistry

func IncrementAddOperation()      { atomic.AddInt64(&Global.AddOperations, 1) }
func IncrementContainsOperation() { atomic.AddInt64(&Global.ContainsOperations, 1) }
func IncrementRemoveOperation()   { atomic.AddInt64(&Global.RemoveOperations, 1) }
func IncrementReportedRead()      { atomic.AddInt64(&Global.ReportedReads, 1) }
func IncrementReportedWrite()     { atomic.AddInt64(&Global.ReportedWrites, 1) }
func IncrementExpiredElement()    { atomic.AddInt64(&Global.ExpiredElements, 1) }

func IncrementRedisTransactionRetry() { atomic.AddInt64(&Global.RedisTransactionRetries, 1) }

// Snapshot returns a copy of all counters for the metrics endpoint.
func Snapshot() map[string]int64 {
	return map[string]int64{
		"add_operations":            atomic.LoadInt64(&Global.AddOperations),
		"contains_operations":       atomic.LoadInt64(&Global.ContainsOperations),
		"remove_operations":         atomic.LoadInt64(&Global.RemoveOperations),
		"reported_reads":            atomic.LoadInt64(&Global.ReportedReads),
		"reported_writes":           atomic.LoadInt64(&Global.ReportedWrites),
		"expired_elements":          atomic.LoadInt64(&Global.ExpiredElements),
		"redis_transaction_retries": atomic.LoadInt64(&Global.RedisTransactionRetries),
		"system_memory_alloc":       int64(atomic.LoadUint64(&Global.SysMemAlloc)),
		"goroutines":                atomic.LoadInt64(&Global.Goroutines),
	}
}

// StartSystemMonitor samples runtime statistics in the background.
func StartSystemMonitor() {
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		for range ticker.C {
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			atomic.StoreUint64(&Global.SysMemAlloc, memStats.Alloc)
			atomic.StoreInt64(&Global.Goroutines, int64(runtime.NumGoroutine()))
		}
	}()
}
