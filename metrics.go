package batdev

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Metrics tracks serial traffic and protocol activity for one session.
type Metrics struct {
	// Connection Statistics
	ConnectionAttempts  atomic.Int64 // Total open attempts
	ConnectionFailures  atomic.Int64 // Failed opens
	ConnectionStartTime atomic.Int64 // When the link was opened (ns)
	TotalUptime         atomic.Int64 // Total connected time in nanoseconds

	// Read Operations
	ReadOperations atomic.Int64 // Reads that returned data
	IdleReads      atomic.Int64 // Reads that returned nothing
	ReadErrors     atomic.Int64
	BytesRead      atomic.Int64
	MaxReadTime    atomic.Int64 // Slowest read operation (ns)

	// Write Operations
	WriteOperations atomic.Int64
	WriteErrors     atomic.Int64
	BytesWritten    atomic.Int64
	MaxWriteTime    atomic.Int64 // Slowest write operation (ns)

	// Protocol
	ConsoleLines       atomic.Int64 // Console lines forwarded to the device
	ScriptLines        atomic.Int64 // Script lines uploaded
	ScriptUploads      atomic.Int64
	CapacityInjections atomic.Int64
	EscapeCodes        atomic.Int64
	HexDumps           atomic.Int64
	HexDumpFailures    atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Timestamp          time.Time
	Uptime             time.Duration
	BytesRead          int64
	BytesWritten       int64
	ReadErrors         int64
	WriteErrors        int64
	MaxReadLatency     time.Duration
	MaxWriteLatency    time.Duration
	ConsoleLines       int64
	ScriptLines        int64
	ScriptUploads      int64
	CapacityInjections int64
	EscapeCodes        int64
	HexDumps           int64
	HexDumpFailures    int64
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	now := time.Now()
	s := MetricsSnapshot{
		Timestamp:          now,
		BytesRead:          m.BytesRead.Load(),
		BytesWritten:       m.BytesWritten.Load(),
		ReadErrors:         m.ReadErrors.Load(),
		WriteErrors:        m.WriteErrors.Load(),
		MaxReadLatency:     time.Duration(m.MaxReadTime.Load()),
		MaxWriteLatency:    time.Duration(m.MaxWriteTime.Load()),
		ConsoleLines:       m.ConsoleLines.Load(),
		ScriptLines:        m.ScriptLines.Load(),
		ScriptUploads:      m.ScriptUploads.Load(),
		CapacityInjections: m.CapacityInjections.Load(),
		EscapeCodes:        m.EscapeCodes.Load(),
		HexDumps:           m.HexDumps.Load(),
		HexDumpFailures:    m.HexDumpFailures.Load(),
	}
	s.Uptime = time.Duration(m.TotalUptime.Load())
	if s.Uptime == 0 {
		if start := m.ConnectionStartTime.Load(); start > 0 {
			s.Uptime = time.Duration(now.UnixNano() - start)
		}
	}
	return s
}

// String renders the one-line status summary printed when the monitor exits.
func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("up %s, rx %d bytes, tx %d bytes, %d lines, %d script lines in %d uploads, %d capacity injections, %d dumps (%d failed), %d errors",
		s.Uptime.Round(time.Second), s.BytesRead, s.BytesWritten, s.ConsoleLines,
		s.ScriptLines, s.ScriptUploads, s.CapacityInjections, s.HexDumps,
		s.HexDumpFailures, s.ReadErrors+s.WriteErrors)
}

func (m *Metrics) recordRead(n int, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if err != nil {
		m.ReadErrors.Add(1)
		return
	}
	if n == 0 {
		m.IdleReads.Add(1)
		return
	}
	m.ReadOperations.Add(1)
	m.BytesRead.Add(int64(n))
	storeMax(&m.MaxReadTime, duration.Nanoseconds())
}

func (m *Metrics) recordWrite(n int, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.WriteOperations.Add(1)
	m.BytesWritten.Add(int64(n))
	if err != nil {
		m.WriteErrors.Add(1)
	}
	storeMax(&m.MaxWriteTime, duration.Nanoseconds())
}

func storeMax(v *atomic.Int64, candidate int64) {
	for {
		current := v.Load()
		if candidate <= current {
			return
		}
		if v.CompareAndSwap(current, candidate) {
			return
		}
	}
}
