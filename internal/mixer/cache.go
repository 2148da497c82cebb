package mixer

// Cache holds the latest value seen for each whitelisted desk address.
//
// Thread Safety:
//   - Not safe for concurrent use. The engine loop owns the cache; other
//     goroutines read it through Engine.Exec.
type Cache struct {
	entries map[string]Message
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Message)}
}

// Put stores msg if its address is whitelisted, replacing any previous value.
// It reports whether the message was stored.
func (c *Cache) Put(msg Message) bool {
	if !Cacheable(msg.Address) {
		return false
	}
	c.entries[msg.Address] = msg.Clone()
	return true
}

// Get returns a copy of the cached message for address.
func (c *Cache) Get(address string) (Message, bool) {
	msg, ok := c.entries[address]
	if !ok {
		return Message{}, false
	}
	return msg.Clone(), true
}

// Has reports whether address is cached.
func (c *Cache) Has(address string) bool {
	_, ok := c.entries[address]
	return ok
}

// Clear drops every entry.
func (c *Cache) Clear() {
	clear(c.entries)
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Int returns the first argument of the cached message as an int.
func (c *Cache) Int(address string) (int, bool) {
	msg, ok := c.entries[address]
	if !ok {
		return 0, false
	}
	return msg.Int(0)
}

// Text returns the first argument of the cached message as a string.
func (c *Cache) Text(address string) (string, bool) {
	msg, ok := c.entries[address]
	if !ok {
		return "", false
	}
	return msg.Text(0)
}

// channelCount is the number of input channels reported by the desk.
func (c *Cache) channelCount() (int, bool) {
	return c.Int(ChannelCountPattern.String())
}

// auxModes is the per-bus mode vector; 2 means stereo.
func (c *Cache) auxModes() ([]any, bool) {
	msg, ok := c.entries[AuxModesPattern.String()]
	if !ok {
		return nil, false
	}
	return msg.Args, true
}
