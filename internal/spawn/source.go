package spawn

import "context"

// StaticSource serves spawn content held in memory (catalog files, tests).
type StaticSource struct {
	Groups []Group
	Spawns []Data
	Links  []LinkedRespawn
	Pools  []Pool
}

// LoadSpawnGroups returns the static groups.
func (s *StaticSource) LoadSpawnGroups(_ context.Context) ([]Group, error) {
	return s.Groups, nil
}

// LoadSpawns returns the static spawns.
func (s *StaticSource) LoadSpawns(_ context.Context) ([]Data, error) {
	return s.Spawns, nil
}

// LoadLinkedRespawns returns the static respawn links.
func (s *StaticSource) LoadLinkedRespawns(_ context.Context) ([]LinkedRespawn, error) {
	return s.Links, nil
}

// LoadPools returns the static pools.
func (s *StaticSource) LoadPools(_ context.Context) ([]Pool, error) {
	return s.Pools, nil
}
