package cpu

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelc4/auriya/internal/errors"
)

const (
	// Cores below this are never big, whatever the median says.
	bigFloorKHz = 1_000_000

	maxCPUs = 64
)

// Mask is a CPU affinity bitmask, bit n is cpu n.
type Mask uint64

// All returns a mask covering cpus 0..n-1.
func All(n int) Mask {
	if n <= 0 {
		n = 1
	}
	if n >= maxCPUs {
		return ^Mask(0)
	}

	return Mask(1)<<uint(n) - 1
}

func MaskOf(cpus ...int) Mask {
	var m Mask
	for _, c := range cpus {
		if c >= 0 && c < maxCPUs {
			m |= 1 << uint(c)
		}
	}

	return m
}

func (m Mask) Has(cpu int) bool {
	return cpu >= 0 && cpu < maxCPUs && m&(1<<uint(cpu)) != 0
}

func (m Mask) CPUs() []int {
	var out []int
	for i := 0; i < maxCPUs; i++ {
		if m.Has(i) {
			out = append(out, i)
		}
	}

	return out
}

func (m Mask) Count() int {
	return len(m.CPUs())
}

// String renders the mask in sysfs list form, e.g. "0-3,6".
func (m Mask) String() string {
	cpus := m.CPUs()
	if len(cpus) == 0 {
		return ""
	}

	var parts []string
	start, prev := cpus[0], cpus[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, c := range cpus[1:] {
		if c == prev+1 {
			prev = c
			continue
		}
		flush()
		start, prev = c, c
	}
	flush()

	return strings.Join(parts, ",")
}

// ParseList parses a sysfs cpu list such as "0-3,5,7-8".
func ParseList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("cpu list %q: %w", s, err)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("cpu list %q: %w", s, err)
			}
		}
		if b < a {
			return nil, fmt.Errorf("cpu list %q: descending range", s)
		}
		for c := a; c <= b; c++ {
			out = append(out, c)
		}
	}

	return out, nil
}

// Core is one online cpu and its maximum frequency in kHz (0 if unknown).
type Core struct {
	ID         int
	MaxFreqKHz uint64
}

// Topology groups online cores by capacity. Known is false when sysfs
// could not be read, in which case every mask is the full cpu set.
type Topology struct {
	Online Mask
	Little Mask
	Big    Mask
	Prime  Mask
	Known  bool
}

// Classify splits cores into prime, big and little. The single fastest core
// is prime; of the rest, cores at or above the median frequency and at least
// 1 GHz are big, everything else is little. Without frequency data all cores
// are treated as big.
func Classify(cores []Core) Topology {
	t := Topology{Known: len(cores) > 0}
	if len(cores) == 0 {
		return t
	}

	sorted := append([]Core(nil), cores...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].MaxFreqKHz != sorted[j].MaxFreqKHz {
			return sorted[i].MaxFreqKHz > sorted[j].MaxFreqKHz
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, c := range sorted {
		t.Online |= MaskOf(c.ID)
	}

	if sorted[0].MaxFreqKHz == 0 {
		t.Big = t.Online
		return t
	}

	t.Prime = MaskOf(sorted[0].ID)

	rest := sorted[1:]
	median := medianKHz(rest)
	for _, c := range rest {
		if c.MaxFreqKHz >= median && c.MaxFreqKHz >= bigFloorKHz {
			t.Big |= MaskOf(c.ID)
		} else {
			t.Little |= MaskOf(c.ID)
		}
	}

	return t
}

// medianKHz expects cores sorted by descending frequency.
func medianKHz(cores []Core) uint64 {
	n := len(cores)
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return cores[n/2].MaxFreqKHz
	default:
		return (cores[n/2-1].MaxFreqKHz + cores[n/2].MaxFreqKHz) / 2
	}
}

// ReadTopology reads online cores and their max frequencies below sysRoot
// (normally "/sys").
func ReadTopology(sysRoot string) (Topology, error) {
	errFactory := errors.New()
	base := filepath.Join(sysRoot, "devices", "system", "cpu")

	raw, err := os.ReadFile(filepath.Join(base, "online"))
	if err != nil {
		return Topology{}, errFactory.Wrap(errors.ErrTelemetryUnavailable, err)
	}
	ids, err := ParseList(string(raw))
	if err != nil {
		return Topology{}, errFactory.Wrap(errors.ErrTelemetryUnavailable, err)
	}
	if len(ids) == 0 {
		return Topology{}, errFactory.WithMessage(errors.ErrTelemetryUnavailable, "no online cpus")
	}

	cores := make([]Core, 0, len(ids))
	for _, id := range ids {
		cores = append(cores, Core{ID: id, MaxFreqKHz: readMaxFreq(base, id)})
	}

	return Classify(cores), nil
}

func readMaxFreq(base string, id int) uint64 {
	dir := filepath.Join(base, "cpu"+strconv.Itoa(id), "cpufreq")
	for _, name := range []string{"cpuinfo_max_freq", "scaling_max_freq"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64); err == nil {
			return v
		}
	}

	return 0
}

// Detect reads the topology and falls back to every cpu when it cannot.
func Detect(sysRoot string) Topology {
	t, err := ReadTopology(sysRoot)
	if err != nil {
		return Topology{Online: All(runtime.NumCPU())}
	}

	return t
}

// Select returns the union of the requested classes, or every online cpu
// when the topology is unknown or the union is empty.
func (t Topology) Select(little, big, prime bool) Mask {
	all := t.Online
	if all == 0 {
		all = All(runtime.NumCPU())
	}
	if !t.Known {
		return all
	}

	var m Mask
	if little {
		m |= t.Little
	}
	if big {
		m |= t.Big
	}
	if prime {
		m |= t.Prime
	}
	if m == 0 {
		return all
	}

	return m
}
