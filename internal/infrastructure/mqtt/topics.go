package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "webmixer"

// Topics builds the topic names under one prefix.
//
// Control addresses map onto topics with their leading slash removed:
//
//	Topics{Prefix: "webmixer"}.State("/Input_Channels/1/Aux_Send/1/send_level")
//	// webmixer/state/Input_Channels/1/Aux_Send/1/send_level
type Topics struct {
	Prefix string
}

// NewTopics returns Topics for prefix, falling back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// State is the retained topic carrying the current value of address.
func (t Topics) State(address string) string {
	return t.Prefix + "/state/" + strings.TrimPrefix(address, "/")
}

// Command is the topic a controller publishes to for address.
func (t Topics) Command(address string) string {
	return t.Prefix + "/command/" + strings.TrimPrefix(address, "/")
}

// AllCommands matches every command topic.
func (t Topics) AllCommands() string {
	return t.Prefix + "/command/#"
}

// Status is the retained online/offline topic, also used as the will.
func (t Topics) Status() string {
	return t.Prefix + "/system/status"
}

// CommandAddress recovers the control address from a command topic.
// It reports false for topics outside the command tree or with no address.
func (t Topics) CommandAddress(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !ok || rest == "" {
		return "", false
	}
	return "/" + rest, true
}
