package campaign

import "time"

// DelayFor returns the pacing delay in seconds for the contact at the given
// absolute row index. The pattern cycles across batch boundaries.
func DelayFor(index int, pattern []int) int {
	if len(pattern) == 0 || index < 0 {
		return 0
	}
	return pattern[index%len(pattern)]
}

// Delay is DelayFor as a time.Duration.
func Delay(index int, pattern []int) time.Duration {
	return time.Duration(DelayFor(index, pattern)) * time.Second
}
