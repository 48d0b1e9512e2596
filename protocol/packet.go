package protocol

// Packet is the decoded form of one dongle link frame. Command packs the
// class byte and id byte as (class<<8 | id). For an ordinary packet,
// Payload holds the frame's data bytes. For AsyncAck, Payload is unused;
// the echoed command is carried in AckOf instead.
type Packet struct {
	Command uint16
	Payload []byte
	AckOf   uint16
}

// Class returns the packet's class byte (ClassSync or ClassAsync).
func (p Packet) Class() byte {
	return Class(p.Command)
}

// ID returns the packet's id byte.
func (p Packet) ID() byte {
	return ID(p.Command)
}

// IsAsyncAck reports whether this packet is the distinguished ack packet.
func (p Packet) IsAsyncAck() bool {
	return p.Command == AsyncAck
}

// NewAck builds an ASYNC_ACK packet acknowledging the given command.
func NewAck(command uint16) Packet {
	return Packet{Command: AsyncAck, AckOf: command}
}
