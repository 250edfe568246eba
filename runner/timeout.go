package runner

import (
	"regexp"
	"runtime"
	"strings"
	"time"
)

// DefaultTimeout is the base per-test timeout before scaling
const DefaultTimeout = 120 * time.Second

// timeoutScaleFactor multiplies the base timeout per guessed architecture and build mode
var timeoutScaleFactor = map[string]map[string]int{
	"armv6": {"debug": 12, "release": 3}, // The ARM buildbots are slow.
	"arm":   {"debug": 8, "release": 2},
	"ia32":  {"debug": 4, "release": 1},
	"ppc":   {"debug": 4, "release": 1},
	"s390":  {"debug": 4, "release": 1},
}

// suiteScaleFactor applies on top of the architecture factor for suites known to run long
var suiteScaleFactor = map[string]int{
	"pummel":    6,
	"benchmark": 6,
	// all WPT subsets of a run share one process using workers
	"wpt": 12,
}

var x86Machine = regexp.MustCompile(`^(x|i[3-6])86$`)

// GuessArchitecture maps a machine name (uname -m or GOARCH) to the key used
// by the timeout table. It returns "" for machines it does not know.
func GuessArchitecture(machine string) string {
	id := strings.ToLower(machine)
	switch {
	case strings.HasPrefix(id, "armv6"):
		return "armv6"
	case strings.HasPrefix(id, "arm") || id == "aarch64":
		return "arm"
	case id == "" || x86Machine.MatchString(id):
		return "ia32"
	case id == "i86pc" || id == "x86_64" || id == "amd64" || id == "386":
		return "ia32"
	case id == "s390x":
		return "s390"
	case strings.HasPrefix(id, "ppc"):
		return "ppc"
	default:
		return ""
	}
}

// ArchGuess is the timeout-table key for the running machine
var ArchGuess = GuessArchitecture(runtime.GOARCH)

// GetTimeout scales base for the given build mode and suite
func GetTimeout(base time.Duration, archGuess, mode, suite string) time.Duration {
	factors, ok := timeoutScaleFactor[archGuess]
	if !ok {
		factors = timeoutScaleFactor["ia32"]
	}
	factor, ok := factors[mode]
	if !ok {
		factor = factors["release"]
	}
	timeout := base * time.Duration(factor)
	if m, ok := suiteScaleFactor[suite]; ok {
		timeout *= time.Duration(m)
	}
	return timeout
}
