package exitcode

const (
	Success         = 0
	UsageError      = 1
	ValidationError = 2
	DBConnError     = 3
	ImportError     = 4
	AnalysisError   = 5
	ExportError     = 6
	ServeError      = 7
)
