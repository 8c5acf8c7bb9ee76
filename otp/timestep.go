package otp

// DefaultPeriod is the RFC 6238 default time step in seconds.
const DefaultPeriod = 30

// CounterFromTime returns floor(nowUnix / step). A zero step is treated as
// DefaultPeriod.
func CounterFromTime(nowUnix uint64, step uint32) uint64 {
	if step == 0 {
		step = DefaultPeriod
	}
	return nowUnix / uint64(step)
}
