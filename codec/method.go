package codec

// Method identifies how an entry's payload is compressed.
type Method uint8

const (
	// MethodDefault lets the codec pick its configured method when writing.
	// Readers report it for methods they do not recognize.
	MethodDefault Method = iota

	// MethodStore keeps the payload uncompressed.
	MethodStore

	// MethodDeflate compresses with Deflate (ZIP method 8).
	MethodDeflate

	// MethodZstd compresses with Zstandard (ZIP method 93).
	MethodZstd
)

// String returns the human-readable name of the method.
func (m Method) String() string {
	switch m {
	case MethodDefault:
		return "default"
	case MethodStore:
		return "store"
	case MethodDeflate:
		return "deflate"
	case MethodZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseMethod returns the Method named s. The empty string is MethodDefault.
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "", "default":
		return MethodDefault, true
	case "store", "none":
		return MethodStore, true
	case "deflate":
		return MethodDeflate, true
	case "zstd":
		return MethodZstd, true
	default:
		return MethodDefault, false
	}
}
