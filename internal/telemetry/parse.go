package telemetry

import (
	"strconv"
	"strings"
	"time"
)

var (
	awakeMarkers = []string{"mWakefulness=Awake", "mAwake=true", "mInteractive=true", "mScreenOn=true"}
	saverMarkers = []string{"mBatterySaverEnabled=true", "mBatterySaverState=ON", "Battery Saver: ON"}
)

// ParsePowerState reads `dumpsys power` output
func ParsePowerState(dump string) PowerState {
	return PowerState{
		ScreenAwake:  containsAny(dump, awakeMarkers),
		BatterySaver: containsAny(dump, saverMarkers),
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}

// ParseForeground reads `dumpsys activity activities` output. A
// ResumedActivity record wins; mCurrentFocus is the fallback.
func ParseForeground(dump string) string {
	var fallback string
	for _, line := range strings.Split(dump, "\n") {
		if strings.Contains(line, "ResumedActivity") {
			if pkg := pkgFromActivityLine(line); pkg != "" {
				return pkg
			}
		}
		if fallback == "" && strings.Contains(line, "mCurrentFocus") {
			fallback = pkgFromWindowLine(line)
		}
	}

	return fallback
}

// "mResumedActivity: ActivityRecord{2f1 u0 com.foo/.Main t12}"
func pkgFromActivityLine(line string) string {
	_, rest, ok := strings.Cut(line, "u0 ")
	if !ok {
		return ""
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}

	return packageOf(fields[0])
}

// "mCurrentFocus=Window{8c2 u0 com.foo/com.foo.Main}"
func pkgFromWindowLine(line string) string {
	for _, tok := range strings.Fields(strings.ReplaceAll(line, "{", " ")) {
		if strings.Contains(tok, "/") {
			return packageOf(strings.TrimSuffix(tok, "}"))
		}
	}

	return ""
}

func packageOf(component string) string {
	pkg, _, _ := strings.Cut(component, "/")
	if !strings.Contains(pkg, ".") {
		return ""
	}

	return pkg
}

// ParseVisiblePIDs extracts pids from VisibleActivityProcess records,
// e.g. "VisibleActivityProcess:[ ProcessRecord{5e1 12345:com.foo/u0a211}]".
func ParseVisiblePIDs(dump string) []int {
	var pids []int
	for _, line := range strings.Split(dump, "\n") {
		if !strings.Contains(line, "VisibleActivityProcess") {
			continue
		}
		rest := line
		for {
			_, after, ok := strings.Cut(rest, "ProcessRecord{")
			if !ok {
				break
			}
			rest = after
			_, tail, ok := strings.Cut(after, " ")
			if !ok {
				break
			}
			num, _, ok := strings.Cut(tail, ":")
			if !ok {
				break
			}
			if pid, err := strconv.Atoi(strings.TrimSpace(num)); err == nil && pid > 0 {
				pids = append(pids, pid)
			}
		}
	}

	return pids
}

// CmdlineMatches reports whether a /proc/<pid>/cmdline belongs to pkg.
// Secondary processes ("pkg:remote") count as the package.
func CmdlineMatches(cmdline []byte, pkg string) bool {
	s := string(cmdline)
	if i := strings.IndexAny(s, "\x00:"); i >= 0 {
		s = s[:i]
	}

	return s == pkg || strings.Contains(s, pkg)
}

// ParseLayer picks the game's SurfaceView layer from `dumpsys SurfaceFlinger --list`
func ParseLayer(list, pkg string) string {
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, pkg) || !strings.Contains(line, "SurfaceView") || strings.Contains(line, "Background") {
			continue
		}
		if _, rest, ok := strings.Cut(line, "RequestedLayerState{"); ok {
			line = rest
			for _, sep := range []string{" parentId=", " z=", " "} {
				if i := strings.Index(line, sep); i >= 0 {
					line = line[:i]
					break
				}
			}
		}
		return strings.TrimSpace(line)
	}

	return ""
}

// ParseLatency returns the interval between the last two presented frames
// in `dumpsys SurfaceFlinger --latency` output. ok is false when there are
// fewer than two frames or the interval looks like a stall.
func ParseLatency(dump string) (time.Duration, bool) {
	lines := strings.Split(strings.TrimSpace(dump), "\n")
	if len(lines) < 3 {
		return 0, false
	}

	var presents []int64
	for _, l := range lines[1:] {
		f := strings.Fields(l)
		if len(f) < 3 {
			continue
		}
		v, err := strconv.ParseInt(f[1], 10, 64)
		if err != nil || v <= 0 || v == int64(^uint64(0)>>1) {
			continue
		}
		presents = append(presents, v)
	}
	if len(presents) < 2 {
		return 0, false
	}

	d := time.Duration(presents[len(presents)-1] - presents[len(presents)-2])
	if d <= 0 || d >= maxFrameInterval {
		return 0, false
	}

	return d, true
}

// ParseSupportedModes extracts fps values from appsSupportedModes in `dumpsys display`
func ParseSupportedModes(dump string) []float64 {
	const marker = "appsSupportedModes ["
	i := strings.Index(dump, marker)
	if i < 0 {
		return nil
	}
	rest := dump[i+len(marker):]

	depth := 1
	end := -1
	for j, c := range rest {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
		}
		if depth == 0 {
			end = j
			break
		}
	}
	if end < 0 {
		return nil
	}

	var rates []float64
	for _, chunk := range strings.Split(rest[:end], "}") {
		_, body, ok := strings.Cut(chunk, "{")
		if !ok {
			continue
		}
		var id int
		var fps float64
		for _, kv := range strings.Split(body, ", ") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			switch strings.TrimSpace(k) {
			case "id":
				id, _ = strconv.Atoi(v)
			case "fps":
				fps, _ = strconv.ParseFloat(v, 64)
			}
		}
		if id != 0 && fps > 0 {
			rates = append(rates, fps)
		}
	}

	return rates
}
