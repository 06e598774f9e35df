package script

// Counters is the named-counter store behind count()/setcount(). It is
// owned by the compilation (not a process global) and mutated only during
// pre-typecheck passes, which fixes counter values in source order.
type Counters struct {
	vals map[string]int32
}

func NewCounters() *Counters {
	return &Counters{vals: make(map[string]int32)}
}

// Get returns the counter's current value; unknown counters read as zero.
func (c *Counters) Get(id string) int32 {
	return c.vals[id]
}

func (c *Counters) Set(id string, val int32) {
	c.vals[id] = val
}
