package daemon

import (
	"github.com/pavelc4/auriya/internal/config"
	"github.com/pavelc4/auriya/internal/profile"
)

const performanceGovernor = "performance"

// defaultProfile is the baseline applied outside managed games
func defaultProfile(s config.Settings) profile.Profile {
	if p, ok := profile.Parse(s.FAS.DefaultMode); ok {
		return p
	}

	return profile.Balance
}

func baselineTarget(s config.Settings) profile.Target {
	return profileTarget(s, defaultProfile(s))
}

// profileTarget builds a target for p from global settings only
func profileTarget(s config.Settings, p profile.Profile) profile.Target {
	switch p {
	case profile.Performance:
		return profile.PerformanceTarget(performanceGovernor, s.DND.DefaultEnable, 0)
	case profile.Powersave:
		return profile.PowersaveTarget()
	default:
		return profile.BalanceTarget(s.CPU.DefaultGovernor)
	}
}

func gameGovernor(g config.GameProfile) string {
	if g.CPUGovernor != "" {
		return g.CPUGovernor
	}

	return performanceGovernor
}

// gameTarget picks the profile a managed game asks for. An unset or
// unknown mode means Performance.
func gameTarget(s config.Settings, g config.GameProfile, pid int) profile.Target {
	mode, ok := profile.Parse(g.Mode)
	if !ok {
		mode = profile.Performance
	}

	switch mode {
	case profile.Balance:
		gov := g.CPUGovernor
		if gov == "" {
			gov = s.CPU.DefaultGovernor
		}
		return profile.BalanceTarget(gov)
	case profile.Powersave:
		return profile.PowersaveTarget()
	default:
		return profile.PerformanceTarget(gameGovernor(g), g.EnableDND, pid)
	}
}
