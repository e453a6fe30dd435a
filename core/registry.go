package core

import (
	"fmt"
	"sort"
	"sync"
)

type platformRegistry struct {
	mu        sync.RWMutex
	platforms map[PlatformType]Platform
}

func NewPlatformRegistry() PlatformRegistry {
	return &platformRegistry{platforms: make(map[PlatformType]Platform)}
}

func (r *platformRegistry) Register(platform Platform) error {
	if platform == nil {
		return fmt.Errorf("core: platform is nil")
	}
	platformType, err := ParsePlatformType(string(platform.Type()))
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.platforms[platformType]; exists {
		return fmt.Errorf("core: platform already registered: %s", platformType)
	}
	r.platforms[platformType] = platform
	return nil
}

func (r *platformRegistry) Get(platformType PlatformType) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	platform, ok := r.platforms[platformType]
	return platform, ok
}

func (r *platformRegistry) List() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.platforms))
	for platformType := range r.platforms {
		keys = append(keys, string(platformType))
	}
	sort.Strings(keys)
	out := make([]Platform, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.platforms[PlatformType(key)])
	}
	return out
}
