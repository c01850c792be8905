package frame

import "strconv"

// Type tags a wire message. Commands flow client->server; RESULT,
// DATA_FRAME and MAC_REPLY flow server->client.
type Type uint32

const (
	TypeResult     Type = 1
	TypeGetChannel Type = 2
	TypeSetChannel Type = 3
	TypeWriteFrame Type = 4
	TypeDataFrame  Type = 5
	TypeGetMAC     Type = 6
	TypeMACReply   Type = 7
	TypeGetMonitor Type = 8
	TypeGetRate    Type = 9
	TypeSetRate    Type = 10
)

var typeNames = map[Type]string{
	TypeResult:     "result",
	TypeGetChannel: "get_channel",
	TypeSetChannel: "set_channel",
	TypeWriteFrame: "write_frame",
	TypeDataFrame:  "data_frame",
	TypeGetMAC:     "get_mac",
	TypeMACReply:   "mac_reply",
	TypeGetMonitor: "get_monitor",
	TypeGetRate:    "get_rate",
	TypeSetRate:    "set_rate",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "type(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// IsReply reports whether t answers a command.
func (t Type) IsReply() bool {
	return t == TypeResult || t == TypeMACReply
}

// IsCommand reports whether t is sent by the client.
func (t Type) IsCommand() bool {
	switch t {
	case TypeGetChannel, TypeSetChannel, TypeWriteFrame, TypeGetMAC,
		TypeGetMonitor, TypeGetRate, TypeSetRate:
		return true
	}
	return false
}
