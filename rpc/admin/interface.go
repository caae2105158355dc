package admin

import (
	"github.com/ValentinKolb/vKV/rpc/common"
)

// IAdminAdapter handles the requests of the admin channel
type IAdminAdapter interface {
	// Handle handles a request and returns a response.
	// If an error occurs, it is set in the response.
	Handle(req *common.Message) (resp *common.Message)
}

// StatsFunc returns the current server counters
type StatsFunc func() common.ServerStats
