package memcache_fx

import (
	"go.uber.org/fx"

	"finmodel/internal/models/db_models"
	mem "finmodel/pkg/memcache"
)

var Module = fx.Provide(providePlanCache)

func providePlanCache() mem.Store[db_models.Plan] {
	return mem.NewTTLStore[db_models.Plan]()
}
