package ziptree

// ProgressEvent reports progress during Pack and Unpack.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the entry currently being processed, if applicable.
	Path string

	// BytesDone is the number of payload bytes completed so far.
	BytesDone uint64

	// FilesDone is the number of files completed so far.
	FilesDone int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StageClearing indicates the unpack destination is being removed.
	StageClearing ProgressStage = iota

	// StagePacking indicates files are being written into the container.
	StagePacking

	// StageUnpacking indicates entries are being extracted.
	StageUnpacking

	// StageFinalizing indicates the container is being finished or released.
	StageFinalizing
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageClearing:
		return "clearing"
	case StagePacking:
		return "packing"
	case StageUnpacking:
		return "unpacking"
	case StageFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates. It is called synchronously from
// the goroutine running the operation.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) report(stage ProgressStage, path string, bytesDone uint64, filesDone int) {
	if f == nil {
		return
	}
	f(ProgressEvent{
		Stage:     stage,
		Path:      path,
		BytesDone: bytesDone,
		FilesDone: filesDone,
	})
}
