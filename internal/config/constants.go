package config

// Version is the current Flux version.
// Set at build time via -ldflags or by writing to this file.
var Version = "0.3.0"

const SourceFileExt = ".flux"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".flux"}

// TrimSourceExt removes any recognized source extension from a filename.
// Returns the original string if no extension matches.
func TrimSourceExt(name string) string {
	for _, ext := range SourceFileExtensions {
		if len(name) >= len(ext) && name[len(name)-len(ext):] == ext {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// HasSourceExt returns true if the path ends with any recognized source extension.
func HasSourceExt(path string) bool {
	for _, ext := range SourceFileExtensions {
		if len(path) >= len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}

// EnvName is the hidden argument that carries a closure's captured variables.
const EnvName = "env"

// ClassKey is the table key consulted for prototype-chain lookups.
const ClassKey = "__class__"

// InitMethodName is the constructor looked up by the `new` native.
const InitMethodName = "init"

// StdlibRoot is the leading import segment that resolves to the bundled lib.
const StdlibRoot = "std"

// Compiler limits. Constant indices are a single byte, jump offsets a signed
// byte, so chunks are bounded the same way the instruction operands are.
const (
	MaxConstants = 255
	MaxJump      = 127
	MaxTupleLen  = 255
	MaxCallArgs  = 255
	MaxTableInit = 65535
)

// NativeNames lists the prelude bindings in registration order. The analyzer
// seeds its outermost scope from this list, and every new chunk's constant
// pool starts with these names so GetGlobal works for the prelude without a
// pool round-trip.
var NativeNames = []string{
	"print",
	"println",
	"readline",
	"int",
	"number",
	"assert",
	"new",
	"for_each",
	"arity",
}
