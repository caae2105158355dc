package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/vKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasStore byte = 1 << 0
	hasNames byte = 1 << 1
	hasValue byte = 1 << 2
	hasOk    byte = 1 << 3
	hasErr   byte = 1 << 4
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Allocate the full size up front, fields are appended
	result := make([]byte, 2, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Handle Store
	if msg.Store != "" {
		flags |= hasStore
		result = appendBytes(result, []byte(msg.Store))
	}

	// Handle Names (count followed by length prefixed names)
	if msg.Names != nil {
		flags |= hasNames
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Names)))
		for _, name := range msg.Names {
			result = appendBytes(result, []byte(name))
		}
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue
		result = appendBytes(result, msg.Value)
	}

	// Handle Ok
	if msg.Ok {
		flags |= hasOk
		result = append(result, 1)
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		result = appendBytes(result, []byte(msg.Err))
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := data[1]

	r := reader{data: data, pos: 2}

	// Read Store if present
	msg.Store = ""
	if flags&hasStore != 0 {
		store, err := r.bytes("store")
		if err != nil {
			return err
		}
		msg.Store = string(store)
	}

	// Read Names if present
	msg.Names = nil
	if flags&hasNames != 0 {
		count, err := r.uint32("names count")
		if err != nil {
			return err
		}
		// every name needs at least its length field
		if uint64(count)*4 > uint64(len(data)-r.pos) {
			return fmt.Errorf("names count %d exceeds data", count)
		}
		msg.Names = make([]string, 0, count)
		for i := uint32(0); i < count; i++ {
			name, err := r.bytes("name")
			if err != nil {
				return err
			}
			msg.Names = append(msg.Names, string(name))
		}
	}

	// Read Value if present - create an empty slice (not nil) if length is 0
	msg.Value = nil
	if flags&hasValue != 0 {
		value, err := r.bytes("value")
		if err != nil {
			return err
		}
		msg.Value = make([]byte, len(value))
		copy(msg.Value, value)
	}

	// Read Ok if present
	msg.Ok = false
	if flags&hasOk != 0 {
		if r.pos+1 > len(data) {
			return fmt.Errorf("data too short for Ok flag")
		}
		msg.Ok = data[r.pos] != 0
		r.pos++
	}

	// Read Err if present
	msg.Err = ""
	if flags&hasErr != 0 {
		errBytes, err := r.bytes("error")
		if err != nil {
			return err
		}
		msg.Err = string(errBytes)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	// Add sizes for fields that require length encoding
	if msg.Store != "" {
		size += 4 + len(msg.Store)
	}
	if msg.Names != nil {
		size += 4
		for _, name := range msg.Names {
			size += 4 + len(name)
		}
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Ok {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}

// appendBytes appends a uint32 length followed by b
func appendBytes(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// reader reads length prefixed fields from a buffer
type reader struct {
	data []byte
	pos  int
}

func (r *reader) uint32(field string) (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s length", field)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(field string) ([]byte, error) {
	n, err := r.uint32(field)
	if err != nil {
		return nil, err
	}
	if uint64(r.pos)+uint64(n) > uint64(len(r.data)) {
		return nil, fmt.Errorf("data too short for %s data", field)
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}
