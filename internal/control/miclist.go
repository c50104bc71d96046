package control

import (
	"fmt"
	"io"

	"iris/internal/asr"

	jsoniter "github.com/json-iterator/go"
)

type micInfo struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	LatencyMs float64 `json:"latency_ms"`
	Default   bool    `json:"default"`
	// Selected marks the device a call opens with the current config.
	Selected bool `json:"selected"`
}

// markSelected follows the recognizer's pick: the first name matching the
// configured device, then the system default, then the first input. It
// reports whether the configured name matched anything.
func markSelected(mics []micInfo, preferred string) bool {
	pick := -1
	for i, m := range mics {
		if asr.DeviceMatches(m.Name, preferred) {
			pick = i
			break
		}
	}
	matched := pick >= 0
	if !matched {
		for i, m := range mics {
			if m.Default {
				pick = i
				break
			}
		}
	}
	if pick < 0 && len(mics) > 0 {
		pick = 0
	}
	for i := range mics {
		mics[i].Selected = i == pick
	}
	return matched
}

func writeMicList(w io.Writer, mics []micInfo, preferred string, jsonOut bool) error {
	matched := markSelected(mics, preferred)
	if jsonOut {
		return jsoniter.NewEncoder(w).Encode(struct {
			Configured string    `json:"configured"`
			Matched    bool      `json:"matched"`
			Devices    []micInfo `json:"devices"`
		}{preferred, matched, mics})
	}
	for _, m := range mics {
		line := fmt.Sprintf("[%d] %s (in %d ch, latency %.2fms)", m.Index, m.Name, m.Channels, m.LatencyMs)
		if m.Default {
			line += dimStyle.Render(" default")
		}
		if m.Selected {
			_, _ = fmt.Fprintln(w, okStyle.Render("* "+line))
			continue
		}
		_, _ = fmt.Fprintln(w, "  "+line)
	}
	if preferred != "" && !matched {
		_, _ = fmt.Fprintln(w, errStyle.Render(fmt.Sprintf("audio.device_name %q matches no input; calls use the marked device", preferred)))
	}
	return nil
}
