package route

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// RouterLoader mounts a plugin's routes on a gin engine.
type RouterLoader func(r *gin.Engine) error

// RouteType says which listener a plugin's routes belong on.
type RouteType int

const (
	// RouteTypeMain routes serve the sync API.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement routes serve health, readiness, and metrics.
	// Without a dedicated management port they fall back to the main
	// listener.
	RouteTypeManagement
)

// Plugin is one registered route mounter. Order fixes the mount sequence
// within a route type.
type Plugin struct {
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var registered = map[RouteType][]Plugin{}

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	registered[p.Type] = append(registered[p.Type], p)
}

func loaders(t RouteType) []RouterLoader {
	plugins := make([]Plugin, len(registered[t]))
	copy(plugins, registered[t])
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })

	out := make([]RouterLoader, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, p.Loader)
	}
	return out
}

// MainRouteLoaders returns the sync API route loaders in mount order.
func MainRouteLoaders() []RouterLoader {
	return loaders(RouteTypeMain)
}

// ManagementRouteLoaders returns the management route loaders in mount order.
func ManagementRouteLoaders() []RouterLoader {
	return loaders(RouteTypeManagement)
}
