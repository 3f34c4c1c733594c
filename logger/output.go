package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - User-facing output only: results, errors with hints
//	1 (-v)      - + Progress, startup info, stream lifecycle
//	2 (-vv)     - + timing, config loaded, online-state transitions
//	3 (-vvv)    - + gRPC frame traffic, internal FSM flow
//	4 (-vvvv)   - + SQL queries, full wire envelopes, data dumps

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // command output
	OutputErrors                           // errors with hints and resolution steps
	OutputUserStatus                       // final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress      // progress indicators (e.g. pipeline fill progress)
	OutputStartup       // startup banners, config summary
	OutputStreamLifecycle // watch/write stream start/stop/interruption
	OutputOperationInfo // high-level operation summaries

	// Level 2 (-vv) - Detailed
	OutputTiming          // operation timing
	OutputConfig          // config values loaded/applied
	OutputOnlineState     // online-state transitions
	OutputDBStats         // SQLite connection/WAL stats

	// Level 3 (-vvv) - Debug
	OutputGRPCMethod   // gRPC method calls (method name, timing)
	OutputGRPCStatus   // gRPC response status
	OutputInternalFlow // stream FSM state transitions

	// Level 4 (-vvvv) - Full dump
	OutputSQLQueries // full SQL statements executed against the local store
	OutputSQLResults // SQL query result summaries
	OutputGRPCBody   // full gRPC envelope contents
	OutputDataDump   // full data structure contents
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	OutputProgress:         VerbosityInfo,
	OutputStartup:          VerbosityInfo,
	OutputStreamLifecycle:  VerbosityInfo,
	OutputOperationInfo:    VerbosityInfo,

	OutputTiming:      VerbosityDebug,
	OutputConfig:      VerbosityDebug,
	OutputOnlineState: VerbosityDebug,
	OutputDBStats:     VerbosityDebug,

	OutputGRPCMethod:   VerbosityTrace,
	OutputGRPCStatus:   VerbosityTrace,
	OutputInternalFlow: VerbosityTrace,

	OutputSQLQueries: VerbosityAll,
	OutputSQLResults: VerbosityAll,
	OutputGRPCBody:   VerbosityAll,
	OutputDataDump:   VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

// categoryNames provides human-readable names for output categories
var categoryNames = map[OutputCategory]string{
	OutputResults:         "results",
	OutputErrors:          "errors",
	OutputUserStatus:      "status",
	OutputProgress:        "progress",
	OutputStartup:         "startup",
	OutputStreamLifecycle: "stream-lifecycle",
	OutputOperationInfo:   "operation-info",
	OutputTiming:          "timing",
	OutputConfig:          "config",
	OutputOnlineState:     "online-state",
	OutputDBStats:         "db-stats",
	OutputGRPCMethod:      "grpc-method",
	OutputGRPCStatus:      "grpc-status",
	OutputInternalFlow:    "internal-flow",
	OutputSQLQueries:      "sql-queries",
	OutputSQLResults:      "sql-results",
	OutputGRPCBody:        "grpc-body",
	OutputDataDump:        "data-dump",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// EnabledCategories returns all output categories enabled at the given verbosity
func EnabledCategories(verbosity int) []OutputCategory {
	var enabled []OutputCategory
	for cat, minLevel := range categoryLevels {
		if verbosity >= minLevel {
			enabled = append(enabled, cat)
		}
	}
	return enabled
}

// VerbosityDescription returns a description of what's shown at each level
func VerbosityDescription(verbosity int) string {
	switch verbosity {
	case VerbosityUser:
		return "results and errors only"
	case VerbosityInfo:
		return "results, errors, progress, stream lifecycle"
	case VerbosityDebug:
		return "above + timing, config, online-state"
	case VerbosityTrace:
		return "above + gRPC calls, FSM flow"
	case VerbosityAll:
		return "above + SQL queries, full envelopes"
	default:
		if verbosity > VerbosityAll {
			return "maximum verbosity"
		}
		return "unknown verbosity level"
	}
}

// Timing helpers

// SlowThresholdMS is the threshold in milliseconds above which timing is always shown
const SlowThresholdMS = 100

// ShouldShowTiming returns true if timing info should be displayed.
// Shows if: verbosity >= 2 (-vv) OR operation exceeded slow threshold.
func ShouldShowTiming(verbosity int, durationMS int64) bool {
	if durationMS >= SlowThresholdMS {
		return true
	}
	return ShouldOutput(verbosity, OutputTiming)
}

// ShouldShowTimingAlways returns true if timing should always be shown (slow operation)
func ShouldShowTimingAlways(durationMS int64) bool {
	return durationMS >= SlowThresholdMS
}
