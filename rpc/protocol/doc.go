/*
Package protocol implements the binary request/response protocol of the vKV store server.

A client sends a sequence of requests on one connection, the server answers every request
in order before it reads the next one. All integers are big-endian.

# Requests

Every request starts with the same header:

	uint8   opcode        (1 = GET, 2 = PUT, 3 = DELETE)
	uint16  name length
	[]byte  store name    (UTF-8)
	uint32  key length
	[]byte  key

followed by an opcode specific body:

	GET     nothing
	PUT     uint32 length, versioned value (clock followed by the value bytes)
	DELETE  uint16 length, vector clock

# Responses

Every response starts with a uint16 status code (see store.RetCode). A nonzero code is
followed by a uint16 length prefixed UTF-8 message and nothing else. Successful responses carry:

	GET     uint32 count, then count times uint32 length + versioned value
	PUT     nothing
	DELETE  uint8 (1 if something was deleted)

# Errors

Store level errors (unknown store, malformed or obsolete versions, backend failures) are sent
to the client and the session continues. Unknown opcodes, truncated frames and length fields
above the configured limit are framing errors: the session ends with ErrProtocolFraming and the
connection is closed by the caller.

# Usage

Server side, one session per connection:

	session := protocol.NewSession(conn, manager.Registry(), protocol.SessionOptions{
		MaxRequestBytes: cfg.MaxRequestBytes,
		Metrics:         protocol.NewMetrics(set),
	})
	err := session.Serve(ctx)

Client side, the Reader and Writer provide the request and response framing:

	w := protocol.NewWriter(conn)
	r := protocol.NewReader(conn, 0)
	if err := w.WriteGetRequest("users", key); err != nil { ... }
	versions, err := r.ReadGetResponse()
*/
package protocol
