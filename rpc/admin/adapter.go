package admin

import (
	"github.com/ValentinKolb/vKV/lib/storage"
	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/cockroachdb/errors"
)

// NewAdminAdapter creates the adapter of the admin requests on top of a storage manager.
// stats may be nil, SERVER_STATS then only reports the storage side.
func NewAdminAdapter(manager *storage.EnvironmentManager, stats StatsFunc) IAdminAdapter {
	return &adminAdapterImpl{manager: manager, stats: stats}
}

type adminAdapterImpl struct {
	manager *storage.EnvironmentManager
	stats   StatsFunc
}

func (a *adminAdapterImpl) Handle(req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTListStores:
		return common.NewListStoresResponse(a.manager.Registry().Names(), nil)

	case common.MsgTOpenStore:
		_, existed := a.manager.Registry().Get(req.Store)
		if _, err := a.manager.GetOrCreateStore(req.Store); err != nil {
			log.Warningf("open store %q failed: %v", req.Store, err)
			return common.NewOpenStoreResponse(false, err)
		}
		return common.NewOpenStoreResponse(!existed, nil)

	case common.MsgTStoreStats:
		stats, err := a.manager.Registry().Stats(req.Store)
		return common.NewStatsResponse(common.MsgTStoreStats, stats, err)

	case common.MsgTServerStats:
		var stats common.ServerStats
		if a.stats != nil {
			stats = a.stats()
		}
		stats.Stores = a.manager.Registry().Len()
		stats.Environments = a.manager.Environments()
		return common.NewStatsResponse(common.MsgTServerStats, stats, nil)

	case common.MsgTSync:
		err := a.manager.Sync()
		if err != nil {
			log.Errorf("sync failed: %v", err)
		}
		return common.NewSyncResponse(err)

	default:
		return common.NewErrorResponse(errors.Newf("unsupported admin message type: %s", req.MsgType))
	}
}
