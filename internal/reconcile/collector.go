package reconcile

import "fmt"

// Collector accumulates diagnostic messages over one reconciliation cycle.
// Entries are never removed or deduplicated; order of collection is kept.
type Collector struct {
	msgs []string
}

// Addf appends a formatted message.
func (c *Collector) Addf(format string, args ...any) {
	c.msgs = append(c.msgs, fmt.Sprintf(format, args...))
}

// Add appends a message.
func (c *Collector) Add(msg string) {
	c.msgs = append(c.msgs, msg)
}

// Messages returns the collected messages in insertion order.
func (c *Collector) Messages() []string {
	return c.msgs
}
