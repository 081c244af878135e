package shell

import (
	"strconv"

	"rfmatch/diag"
)

var f6 = diag.FormatFixed6

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ackWord(run bool) string {
	if run {
		return "RUN"
	}
	return "STOP"
}

// parseMotorIndex parses the 0/1 motor selector shared by every m* opcode.
func parseMotorIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return idx, nil
}
