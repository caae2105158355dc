package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message of the admin channel used for both requests
// and responses. Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Store string   `json:"store,omitempty"` // Used for: OpenStore, StoreStats
	Names []string `json:"names,omitempty"` // Used for: ListStores (response)
	Value []byte   `json:"value,omitempty"` // Used for: StoreStats, ServerStats (response, json encoded stats)

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Used for: OpenStore (true if the store was created), Sync responses
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message
}

// ServerStats is the payload of a ServerStats response
type ServerStats struct {
	UptimeSec           int64  `json:"uptime_sec"`
	Stores              int    `json:"stores"`
	Environments        int    `json:"environments"`
	Engine              string `json:"engine"`
	ActiveConnections   int64  `json:"active_connections"`
	AcceptedConnections uint64 `json:"accepted_connections"`
	RejectedConnections uint64 `json:"rejected_connections"`
	Requests            uint64 `json:"requests"`
	RequestErrors       uint64 `json:"request_errors"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewErrorResponse creates a response that only carries an error
func NewErrorResponse(err error) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err.Error(),
	}
}

// errorString returns the message of err or "" for nil
func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewListStoresRequest creates a new ListStores request
func NewListStoresRequest() *Message {
	return &Message{MsgType: MsgTListStores}
}

// NewListStoresResponse creates a new ListStores response
func NewListStoresResponse(names []string, err error) *Message {
	return &Message{
		MsgType: MsgTListStores,
		Names:   names,
		Err:     errorString(err),
	}
}

// NewOpenStoreRequest creates a new OpenStore request
func NewOpenStoreRequest(name string) *Message {
	return &Message{
		MsgType: MsgTOpenStore,
		Store:   name,
	}
}

// NewOpenStoreResponse creates a new OpenStore response
func NewOpenStoreResponse(created bool, err error) *Message {
	return &Message{
		MsgType: MsgTOpenStore,
		Ok:      created,
		Err:     errorString(err),
	}
}

// NewStoreStatsRequest creates a new StoreStats request
func NewStoreStatsRequest(name string) *Message {
	return &Message{
		MsgType: MsgTStoreStats,
		Store:   name,
	}
}

// NewServerStatsRequest creates a new ServerStats request
func NewServerStatsRequest() *Message {
	return &Message{MsgType: MsgTServerStats}
}

// NewStatsResponse creates a StoreStats or ServerStats response with the stats encoded as json
func NewStatsResponse(msgType MessageType, stats any, err error) *Message {
	msg := &Message{MsgType: msgType, Err: errorString(err)}
	if err != nil {
		return msg
	}
	payload, jsonErr := json.Marshal(stats)
	if jsonErr != nil {
		msg.Err = fmt.Sprintf("failed to encode stats: %s", jsonErr)
		return msg
	}
	msg.Value = payload
	return msg
}

// NewSyncRequest creates a new Sync request
func NewSyncRequest() *Message {
	return &Message{MsgType: MsgTSync}
}

// NewSyncResponse creates a new Sync response
func NewSyncResponse(err error) *Message {
	return &Message{
		MsgType: MsgTSync,
		Ok:      err == nil,
		Err:     errorString(err),
	}
}

// --------------------------------------------------------------------------
// Message Type
// --------------------------------------------------------------------------

// MessageType is the type of admin message
type MessageType byte

// String returns the string representation of the MessageType
func (t MessageType) String() string {
	switch t {
	case MsgTListStores:
		return "listStores"
	case MsgTOpenStore:
		return "openStore"
	case MsgTStoreStats:
		return "storeStats"
	case MsgTServerStats:
		return "serverStats"
	case MsgTSync:
		return "sync"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "listStores":
		*t = MsgTListStores
	case "openStore":
		*t = MsgTOpenStore
	case "storeStats":
		*t = MsgTStoreStats
	case "serverStats":
		*t = MsgTServerStats
	case "sync":
		*t = MsgTSync
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Admin operations

	MsgTListStores  // List the names of all open stores
	MsgTOpenStore   // Open (creating if needed) a store
	MsgTStoreStats  // Metrics of one store
	MsgTServerStats // Connection and request counters of the server
	MsgTSync        // Flush all environments to stable storage
)
