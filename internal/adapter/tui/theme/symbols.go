package theme

import (
	"os"
	"strings"
)

// SymbolSet is one family of glyphs used by the UI.
type SymbolSet struct {
	Success  string
	Error    string
	Warning  string
	Info     string
	Stopped  string
	ArrowR   string
	Bullet   string
	Ellipsis string
	User     string
	Agent    string
}

var unicodeSymbols = SymbolSet{
	Success:  "✓",
	Error:    "✗",
	Warning:  "⚠",
	Info:     "●",
	Stopped:  "■",
	ArrowR:   "→",
	Bullet:   "•",
	Ellipsis: "…",
	User:     "You",
	Agent:    "Agent",
}

var asciiSymbols = SymbolSet{
	Success:  "[OK]",
	Error:    "[ERR]",
	Warning:  "[!]",
	Info:     "[*]",
	Stopped:  "[-]",
	ArrowR:   "->",
	Bullet:   "*",
	Ellipsis: "...",
	User:     "You",
	Agent:    "Agent",
}

// Active glyphs, set by InitSymbols.
var (
	SymbolSuccess  string
	SymbolError    string
	SymbolWarning  string
	SymbolInfo     string
	SymbolStopped  string
	SymbolArrowR   string
	SymbolBullet   string
	SymbolEllipsis string
	SymbolUser     string
	SymbolAgent    string
)

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// DEVSPACE_ASCII_SYMBOLS=1 forces the ASCII set.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("DEVSPACE_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return true
		}
	}
	return true
}

// InitSymbols selects the active symbol set. Tests call it again after
// changing the environment.
func InitSymbols() {
	UseSymbols(CurrentSet())
}

// CurrentSet returns the set InitSymbols would pick.
func CurrentSet() SymbolSet {
	if DetectUnicodeSupport() {
		return unicodeSymbols
	}
	return asciiSymbols
}

// UseSymbols installs set as the active glyphs.
func UseSymbols(set SymbolSet) {
	SymbolSuccess = set.Success
	SymbolError = set.Error
	SymbolWarning = set.Warning
	SymbolInfo = set.Info
	SymbolStopped = set.Stopped
	SymbolArrowR = set.ArrowR
	SymbolBullet = set.Bullet
	SymbolEllipsis = set.Ellipsis
	SymbolUser = set.User
	SymbolAgent = set.Agent
}

func init() {
	InitSymbols()
}
