package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type topicStat struct {
	messages int64
	bytes    int64
}

var (
	errorsStream   int64
	errorsRequest  int64
	warnsStream    int64
	warnsRequest   int64
	streamEvents   int64
	droppedFrames  int64
	reconnects     int64
	requestsSent   int64
	requestsFailed int64
	topics         sync.Map // map[string]*topicStat
)

func recordWarn(component string) {
	if strings.Contains(component, "stream") || strings.Contains(component, "registry") {
		atomic.AddInt64(&warnsStream, 1)
	} else if strings.Contains(component, "client") {
		atomic.AddInt64(&warnsRequest, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "stream") || strings.Contains(component, "registry") {
		atomic.AddInt64(&errorsStream, 1)
	} else if strings.Contains(component, "client") {
		atomic.AddInt64(&errorsRequest, 1)
	}
}

// IncrementStreamEvent records one decoded event delivered to listeners.
func IncrementStreamEvent(topic string, size int) {
	atomic.AddInt64(&streamEvents, 1)
	recordTopic(topic, size)
}

// IncrementDroppedFrame records an inbound frame that failed to decode.
func IncrementDroppedFrame() {
	atomic.AddInt64(&droppedFrames, 1)
}

// IncrementReconnect records one reconnect attempt.
func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

// IncrementRequest records one outbound API request and whether it failed.
func IncrementRequest(failed bool) {
	atomic.AddInt64(&requestsSent, 1)
	if failed {
		atomic.AddInt64(&requestsFailed, 1)
	}
}

func recordTopic(name string, size int) {
	v, _ := topics.LoadOrStore(name, &topicStat{})
	ts := v.(*topicStat)
	atomic.AddInt64(&ts.messages, 1)
	atomic.AddInt64(&ts.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and stream statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	netStats, _ := gnet.IOCounters(false)
	topicData := map[string]map[string]int64{}
	topics.Range(func(k, v any) bool {
		name := k.(string)
		ts := v.(*topicStat)
		topicData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&ts.messages),
			"bytes":    atomic.LoadInt64(&ts.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_stream":   atomic.LoadInt64(&errorsStream),
		"errors_request":  atomic.LoadInt64(&errorsRequest),
		"warns_stream":    atomic.LoadInt64(&warnsStream),
		"warns_request":   atomic.LoadInt64(&warnsRequest),
		"stream_events":   atomic.LoadInt64(&streamEvents),
		"dropped_frames":  atomic.LoadInt64(&droppedFrames),
		"reconnects":      atomic.LoadInt64(&reconnects),
		"requests_sent":   atomic.LoadInt64(&requestsSent),
		"requests_failed": atomic.LoadInt64(&requestsFailed),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"topics":          topicData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
