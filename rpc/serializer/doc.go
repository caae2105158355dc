// Package serializer encodes the messages of the admin channel. The store protocol
// does not use it, its byte layout is fixed (see package protocol).
//
// Implementations:
//
//   - NewBinarySerializer: compact hand-written format. A type byte and a flag byte
//     are followed only by the fields that are set. It is the default of the server
//     and the CLI.
//
//   - NewJSONSerializer: one json object per message with the message type as a
//     string. Useful to inspect frames or to write clients in other languages.
//
//   - NewGOBSerializer: Go's gob format. Every frame carries its own type
//     description, so it is the largest of the three.
//
// ByName maps the "serializer" config value to an implementation.
//
// Client and server must use the same serializer, a mismatch shows up as a
// decode error on the first frame.
//
// All implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	ser, err := serializer.ByName("binary")
//	if err != nil {
//		return err
//	}
//	data, err := ser.Serialize(*common.NewListStoresRequest())
//	// ... send data as one frame ...
//	var resp common.Message
//	err = ser.Deserialize(frame, &resp)
package serializer
